package middleware

import (
	"net/http"
	"strings"

	"github.com/baharkarakas/transferflow/internal/api/httpx"
	"github.com/baharkarakas/transferflow/internal/auth"
)

type AuthMiddleware struct {
	Verifier auth.Verifier
}

func NewAuthMiddleware(v auth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{Verifier: v}
}

// BearerToken extracts the token from "Authorization: Bearer <t>".
func BearerToken(r *http.Request) (string, bool) {
	ah := r.Header.Get("Authorization")
	if len(ah) < len("bearer ") || !strings.EqualFold(ah[:len("bearer ")], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(ah[len("bearer "):])
	return token, token != ""
}

func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
			return
		}
		id, err := m.Verifier.Verify(token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid access token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}
