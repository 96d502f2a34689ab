package web

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"smartsolve/auth"
	"smartsolve/contract"
	"smartsolve/errors"
)

var (
	errInternal           = stderrors.New("internal error")
	errGateUnavailable    = stderrors.New("authentication unavailable")
	errMissingPermissions = fmt.Errorf("%w: missing role", errors.ErrForbidden)
)

// AuthMiddleware authenticates the bearer credential through the gate and
// stores the user identity and roles in the request context.
func AuthMiddleware(gate contract.IGate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := gate.Identify(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				status := errors.MapToHTTPStatus(err)
				if status == http.StatusInternalServerError {
					_ = writeResponse(w, nil, http.StatusServiceUnavailable, errGateUnavailable)
					return
				}
				_ = writeResponse(w, nil, status, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole lets the request through only if the caller holds one of roles.
// It must run behind AuthMiddleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFrom(r.Context())
			if !ok {
				_ = writeResponse(w, nil, http.StatusUnauthorized, errors.ErrUnauthenticated)
				return
			}
			if !identity.HasAnyRole(roles...) {
				_ = writeResponse(w, nil, http.StatusForbidden, errMissingPermissions)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS allows the configured origins. An empty list or "*" allows any origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && originAllowed(allowedOrigins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowedOrigins []string, origin string) bool {
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		return true
	}
	return slices.ContainsFunc(allowedOrigins, func(allowed string) bool {
		return strings.EqualFold(allowed, origin)
	})
}
