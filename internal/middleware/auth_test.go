package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"absence-api/internal/model"
	"absence-api/pkg/apierror"
)

type stubValidator struct {
	claims *model.AuthClaims
}

func (s *stubValidator) ValidateToken(_ context.Context, token string) (*model.AuthClaims, error) {
	if s.claims != nil && token == s.claims.RawToken {
		return s.claims, nil
	}
	return nil, apierror.Unauthorized("invalid token")
}

func studentClaims() *model.AuthClaims {
	return &model.AuthClaims{
		UserID:   "user-1",
		FullName: "Ada Lovelace",
		Roles:    model.NewRoleSet(model.RoleStudent),
		RawToken: "good-token",
	}
}

func TestRequireAuth(t *testing.T) {
	mw := NewAuthMiddleware(&stubValidator{claims: studentClaims()})

	var seen *model.AuthClaims
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic good-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer forged")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token reaches the handler with claims", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "user-1", seen.UserID)
	})
}

func TestRequireRoles(t *testing.T) {
	mw := NewAuthMiddleware(&stubValidator{claims: studentClaims()})

	gate := mw.RequireRoles(model.RoleDeanOffice, model.RoleAdmin)
	protected := mw.RequireAuth(gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	t.Run("student is refused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("dean passes", func(t *testing.T) {
		deanMW := NewAuthMiddleware(&stubValidator{claims: &model.AuthClaims{
			UserID:   "dean-1",
			Roles:    model.NewRoleSet(model.RoleDeanOffice),
			RawToken: "dean-token",
		}})
		chain := deanMW.RequireAuth(deanMW.RequireRoles(model.RoleDeanOffice)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer dean-token")
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing claims short circuits", func(t *testing.T) {
		rec := httptest.NewRecorder()
		gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
