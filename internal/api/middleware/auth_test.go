package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sublate/backend/internal/auth"
)

func authedRouter(t *testing.T) (*auth.JWTService, http.Handler) {
	t.Helper()
	svc := auth.NewJWTService("test-secret", time.Hour)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaims(r)
		if claims == nil {
			t.Error("claims missing inside protected handler")
		}
		w.WriteHeader(http.StatusOK)
	})
	return svc, AuthMiddleware(svc)(inner)
}

func TestAuthMiddleware(t *testing.T) {
	svc, handler := authedRouter(t)
	token, err := svc.GenerateToken(1, "alice", "editor")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"bearer header", "Bearer " + token, "", http.StatusOK},
		{"query token", "", token, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"malformed header", "Token " + token, "", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", "", http.StatusUnauthorized},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			if c.query != "" {
				q := req.URL.Query()
				q.Set("token", c.query)
				req.URL.RawQuery = q.Encode()
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != c.want {
				t.Errorf("status = %d, want %d", rec.Code, c.want)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	svc := auth.NewJWTService("test-secret", time.Hour)
	handler := AuthMiddleware(svc)(RequireRole("admin")(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
	)))

	for _, c := range []struct {
		role string
		want int
	}{
		{"admin", http.StatusOK},
		{"editor", http.StatusForbidden},
		{"viewer", http.StatusForbidden},
	} {
		token, _ := svc.GenerateToken(1, "u", c.role)
		req := httptest.NewRequest("GET", "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Errorf("role %s: status = %d, want %d", c.role, rec.Code, c.want)
		}
	}
}
