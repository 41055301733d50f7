package middleware

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"markdraft/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// OwnerIDKey holds the authenticated owner's id in the request context.
// Handlers must never operate without it.
const OwnerIDKey contextKey = "ownerID"

// OwnerID extracts the authenticated owner from the request context.
// Empty means the middleware did not run.
func OwnerID(r *http.Request) string {
	id, _ := r.Context().Value(OwnerIDKey).(string)
	return id
}

// AuthMiddleware validates the bearer token and stores the subject claim as
// the owner id. The token may arrive in the query string because the
// browser's WebSocket API cannot set headers.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.URL.Query().Get("token")

		// Fallback to the Authorization header for regular API calls.
		if tokenString == "" {
			authHeader := r.Header.Get("Authorization")
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			http.Error(w, "Unauthorized: No token provided", http.StatusUnauthorized)
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			jwtSecret := os.Getenv("JWT_SECRET")
			if jwtSecret == "" {
				logger.Sugar.Error("FATAL: JWT_SECRET environment variable not set.")
				return nil, fmt.Errorf("server is not configured to validate JWTs")
			}
			return []byte(jwtSecret), nil
		})

		if err != nil || !token.Valid {
			logger.Sugar.Infof("Invalid token: %v", err)
			http.Error(w, "Unauthorized: Invalid or expired token", http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			http.Error(w, "Unauthorized: Could not parse token claims", http.StatusUnauthorized)
			return
		}
		ownerID, ok := claims["sub"].(string)
		if !ok || ownerID == "" {
			http.Error(w, "Unauthorized: Owner ID (sub) claim is missing or invalid", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), OwnerIDKey, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
