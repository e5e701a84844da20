// internal/auth/middleware.go
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dgrijalva/jwt-go"

	"quiz-battle/internal/apperr"
)

type contextKey string

const userIDKey contextKey = "user_id"

// APIKeyHeader carries the shared secret on request-triggered endpoints.
const APIKeyHeader = "X-API-Key"

// UserIDFromContext returns the authenticated caller, "" when there is none.
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

// WithUserID returns a context carrying userID as the authenticated caller.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// JWTMiddleware is the identity gate: requests without a valid bearer token
// never reach the wrapped handler.
func JWTMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := ParseToken(jwtSecret, bearerToken(r))
			if err != nil {
				apperr.Write(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// ParseToken validates an HS256 token and returns its user_id claim.
func ParseToken(jwtSecret, tokenString string) (string, error) {
	if tokenString == "" {
		return "", apperr.New(apperr.Unauthenticated, "User must be signed in to call this function.")
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return "", apperr.Wrap(err, apperr.Unauthenticated, "Invalid token.")
	}

	claims, ok := token.Claims.(*jwt.MapClaims)
	if !ok || !token.Valid {
		return "", apperr.New(apperr.Unauthenticated, "Invalid token claims.")
	}

	userID, ok := (*claims)["user_id"].(string)
	if !ok || userID == "" {
		return "", apperr.New(apperr.Unauthenticated, "Invalid user ID in token.")
	}
	return userID, nil
}

// CheckAPIKey is the shared-secret gate for callable operations, where the
// caller key is optional but must match when given. A server without a key
// is misconfigured.
func CheckAPIKey(serverKey, callerKey string) error {
	if serverKey == "" {
		return apperr.Configuration("Missing PRIVATE_API_KEY in environment.")
	}
	if callerKey != "" && !keysEqual(callerKey, serverKey) {
		return apperr.New(apperr.PermissionDenied, "Invalid API key.")
	}
	return nil
}

// APIKeyMiddleware is the shared-secret gate for request-triggered endpoints,
// where the key is mandatory.
func APIKeyMiddleware(serverKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if serverKey == "" {
				apperr.Write(w, apperr.Configuration("Missing PRIVATE_API_KEY in environment."))
				return
			}
			if !keysEqual(r.Header.Get(APIKeyHeader), serverKey) {
				apperr.Write(w, apperr.New(apperr.PermissionDenied, "Forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func keysEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
