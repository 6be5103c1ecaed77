package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const tokenContextKey contextKey = "neuroinfer_token"

func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

func TokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenContextKey).(string)
	return t, ok
}

// TokenFromRequest looks for the session token in the query string, then
// an Authorization: Bearer header, then the form body. The body is only
// read when neither of the first two carries a token.
func TokenFromRequest(r *http.Request) string {
	if t := TokenOutsideBody(r); t != "" {
		return t
	}
	return r.FormValue("token")
}

// TokenOutsideBody returns a token from the query string or a Bearer
// header without touching the request body.
func TokenOutsideBody(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// SessionMiddleware rejects requests without a token (400) or with an
// unknown one (401).
func SessionMiddleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				writeDetail(w, http.StatusBadRequest, "Missing token")
				return
			}
			if err := svc.Verify(token); err != nil {
				writeDetail(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
		})
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
