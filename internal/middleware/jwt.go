package myMiddleware

import (
	"context"
	"net/http"
	"strings"
)

// 1. Define Context Keys (Exported so other packages can read them)
type contextKey string

const (
	IdentityKey    contextKey = "identity_code"
	DisplayNameKey contextKey = "display_name"
)

// 2. Define what we need from the User Service
// This interface decouples 'middleware' from 'user'
type TokenValidator interface {
	ValidateToken(tokenString string) (string, string, error)
}

// 3. The Middleware Structure
type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// 4. The actual Handler
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		// Check Authorization Header
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 {
				tokenString = parts[1]
			}
		}

		// Fallback: Check Query Param (websocket dials can't set headers from the browser)
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		// Validate using the interface
		code, displayName, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// Inject into Context
		ctx := context.WithValue(r.Context(), IdentityKey, code)
		ctx = context.WithValue(ctx, DisplayNameKey, displayName)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
