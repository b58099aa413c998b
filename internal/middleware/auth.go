package middleware

import (
	"context"
	"net/http"
	"strings"

	"absence-api/internal/model"
)

type tokenValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (*model.AuthClaims, error)
}

type contextKey string

const authClaimsContextKey contextKey = "auth_claims"

type AuthMiddleware struct {
	validator tokenValidator
}

func NewAuthMiddleware(validator tokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// RequireAuth authenticates the bearer token and puts the claims on the
// request context. Validation includes the revocation ledger, so a logged
// out token fails here even before its expiry.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeAuthError(w, "UNAUTHORIZED", "missing or invalid authorization header")
			return
		}

		claims, err := m.validator.ValidateToken(r.Context(), strings.TrimSpace(header[7:]))
		if err != nil {
			writeAuthError(w, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), authClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles passes requests whose actor holds any of the given roles.
func (m *AuthMiddleware) RequireRoles(roles ...model.Role) func(http.Handler) http.Handler {
	required := model.NewRoleSet(roles...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeAuthError(w, "UNAUTHORIZED", "authentication required")
				return
			}

			if claims.Roles&required == 0 {
				writeAuthError(w, "FORBIDDEN", "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*model.AuthClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*model.AuthClaims)
	return claims, ok
}

func writeAuthError(w http.ResponseWriter, code string, message string) {
	status := http.StatusUnauthorized
	if code == "FORBIDDEN" {
		status = http.StatusForbidden
	}
	writeJSONError(w, status, code, message)
}
