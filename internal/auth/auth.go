// Package auth provides optional JWT bearer authentication for HTTP requests.
// Tokens are read from the Authorization header or from a cookie.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/userapi/internal/logger"
)

// ErrInvalidToken is returned for a missing, malformed, expired or wrongly signed token.
var ErrInvalidToken = errors.New("invalid token or JWT parsing error")

// Auth verifies HS256 tokens. With an empty signing key it is disabled
// and lets every request through.
type Auth struct {
	// authCookieName is the name of the cookie that may carry the JWT.
	authCookieName string

	// signingKey is the key used to sign and verify JWTs.
	signingKey []byte
}

// Claims represents the JWT claims used by the service.
type Claims struct {
	jwt.RegisteredClaims
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// SubjectKey is the context key holding the authenticated token subject.
const SubjectKey ContextKey = "subject"

// New creates an Auth with the given cookie name and signing key.
func New(authCookieName string, signingKey []byte) *Auth {
	return &Auth{
		authCookieName: authCookieName,
		signingKey:     signingKey,
	}
}

// Enabled reports whether requests are checked at all.
func (a *Auth) Enabled() bool {
	return len(a.signingKey) > 0
}

// Authenticate is an HTTP middleware that rejects requests without a valid token
// with 401 Unauthorized and stores the token subject in the request context.
func (a *Auth) Authenticate(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		if !a.Enabled() {
			h.ServeHTTP(response, request)
			return
		}

		subject, err := a.GetSubjectFromToken(a.getTokenString(request))
		if err != nil {
			logger.Log.Debugln("Error calling the `a.GetSubjectFromToken()`: ", zap.Error(err))
			response.Header().Set("WWW-Authenticate", `Bearer realm="userapi"`)
			response.WriteHeader(http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(request.Context(), SubjectKey, subject)
		h.ServeHTTP(response, request.WithContext(ctx))
	}

	return http.HandlerFunc(middleware)
}

func (a *Auth) getTokenString(request *http.Request) string {
	if header := request.Header.Get("Authorization"); header != "" {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := request.Cookie(a.authCookieName); err == nil {
		return cookie.Value
	}

	return ""
}

// GetSubjectFromToken verifies tokenString and returns its subject claim.
func (a *Auth) GetSubjectFromToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.signingKey, nil
		},
	)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return claims.Subject, nil
}

// BuildJWTString issues a signed token for subject valid for ttl.
func (a *Auth) BuildJWTString(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}
