package auth

import (
	"context"
	stderrors "errors"

	"smartsolve/contract"
	"smartsolve/errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Methods that do not require a credential.
var publicMethods = map[string]struct{}{
	grpc_health_v1.Health_Check_FullMethodName: {},
}

// UnaryInterceptor authenticates incoming gRPC calls through the gate and
// injects the user identity into the context.
func UnaryInterceptor(gate contract.IGate) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if isPublicMethod(info.FullMethod) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "metadata is missing")
		}
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "authorization token is missing")
		}

		userID, err := gate.Authenticate(ctx, values[0])
		switch {
		case stderrors.Is(err, errors.ErrForbidden):
			return nil, status.Error(codes.PermissionDenied, "user is banned")
		case stderrors.Is(err, errors.ErrUnauthenticated):
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		case err != nil:
			return nil, status.Error(codes.Unavailable, "identity check failed")
		}
		return handler(WithUser(ctx, userID), req)
	}
}

func isPublicMethod(method string) bool {
	_, ok := publicMethods[method]
	return ok
}
