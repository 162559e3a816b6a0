package interceptor

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/patric-chuzhbe/beerich/internal/auth"
	"github.com/patric-chuzhbe/beerich/internal/logger"
	"github.com/patric-chuzhbe/beerich/internal/models"
)

// AuthorizationKey is the metadata key carrying the session token in both directions.
const AuthorizationKey = "authorization"

type identityResolver interface {
	RequireIdentity(ctx context.Context, tokenString string) (*models.Identity, error)
}

type AuthInterceptor struct {
	auth identityResolver
}

func NewAuthInterceptor(theAuth identityResolver) *AuthInterceptor {
	return &AuthInterceptor{auth: theAuth}
}

// TokenFromMetadata returns the session token of the incoming call, with an
// optional "Bearer " prefix removed. It is empty when none was sent.
func TokenFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	values := md.Get(AuthorizationKey)
	if len(values) == 0 {
		return ""
	}

	token := strings.TrimSpace(values[0])
	if len(token) > len("bearer ") && strings.EqualFold(token[:len("bearer ")], "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}

	return token
}

// UnaryAuthInterceptor resolves the session of calls to protectedMethods and
// attaches the identity to the context. Calls without a valid session fail
// with codes.Unauthenticated before reaching the handler.
func (a *AuthInterceptor) UnaryAuthInterceptor(protectedMethods []string) grpc.UnaryServerInterceptor {
	protected := make(map[string]struct{}, len(protectedMethods))
	for _, m := range protectedMethods {
		protected[m] = struct{}{}
	}

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if _, ok := protected[info.FullMethod]; !ok {
			return handler(ctx, req)
		}

		identity, err := a.auth.RequireIdentity(ctx, TokenFromMetadata(ctx))
		if errors.Is(err, models.ErrUnauthenticated) {
			return nil, status.Error(codes.Unauthenticated, models.ErrUnauthenticated.Error())
		}
		if err != nil {
			logger.Log.Debugln("Error calling the `a.auth.RequireIdentity()`: ", zap.Error(err))
			return nil, status.Error(codes.Internal, "internal error")
		}

		return handler(auth.WithIdentity(ctx, identity), req)
	}
}
