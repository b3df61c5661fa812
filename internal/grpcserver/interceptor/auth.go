package interceptor

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/patric-chuzhbe/userapi/internal/auth"
	"github.com/patric-chuzhbe/userapi/internal/logger"
)

type authenticator interface {
	Enabled() bool
	GetSubjectFromToken(tokenString string) (string, error)
}

type AuthInterceptor struct {
	auth authenticator
}

func NewAuthInterceptor(auth authenticator) *AuthInterceptor {
	return &AuthInterceptor{auth: auth}
}

// UnaryAuthInterceptor checks the bearer token from the authorization metadata
// and attaches its subject to the context. Disabled authentication lets every call through.
func (a *AuthInterceptor) UnaryAuthInterceptor(allowedMethods []string) grpc.UnaryServerInterceptor {
	allowed := make(map[string]struct{}, len(allowedMethods))
	for _, m := range allowedMethods {
		allowed[m] = struct{}{}
	}

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if _, ok := allowed[info.FullMethod]; !ok || !a.auth.Enabled() {
			return handler(ctx, req)
		}

		var tokenString string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if authHeader := md.Get("authorization"); len(authHeader) > 0 {
				tokenString = strings.TrimSpace(strings.TrimPrefix(authHeader[0], "Bearer "))
			}
		}

		subject, err := a.auth.GetSubjectFromToken(tokenString)
		if err != nil {
			logger.Log.Debugln("Error calling the `a.auth.GetSubjectFromToken()`: ", zap.Error(err))
			return nil, status.Error(codes.Unauthenticated, "missing or invalid token")
		}

		return handler(context.WithValue(ctx, auth.SubjectKey, subject), req)
	}
}
