package auth

import (
	"context"

	"smartsolve/domain"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	RolesKey  contextKey = "roles"
)

func WithUser(ctx context.Context, userID domain.UserID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithIdentity stores the user and its roles.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(WithUser(ctx, identity.UserID), RolesKey, identity.Roles)
}

// UserFrom returns the authenticated user stored by WithUser.
func UserFrom(ctx context.Context) (domain.UserID, bool) {
	userID, ok := ctx.Value(UserIDKey).(domain.UserID)
	return userID, ok && userID != ""
}

func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	userID, ok := UserFrom(ctx)
	if !ok {
		return domain.Identity{}, false
	}
	roles, _ := ctx.Value(RolesKey).([]string)
	return domain.Identity{UserID: userID, Roles: roles}, true
}
