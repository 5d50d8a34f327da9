package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, method jwt.SigningMethod) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, jwt.MapClaims{
		"sub": "observer",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func invoke(m *Middleware, header string) int {
	called := false
	h := m.Require(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest("POST", "/api/goto", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	if called && rec.Code != http.StatusNoContent {
		return -1
	}
	return rec.Code
}

func TestDisabledPassthrough(t *testing.T) {
	m := NewMiddleware("")
	if m.Enabled() {
		t.Error("Enabled = true with empty secret")
	}
	if code := invoke(m, ""); code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", code)
	}
}

func TestValidToken(t *testing.T) {
	m := NewMiddleware("orion")
	tok := signToken(t, "orion", jwt.SigningMethodHS256)
	if code := invoke(m, "Bearer "+tok); code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", code)
	}
}

func TestRejections(t *testing.T) {
	m := NewMiddleware("orion")
	for name, header := range map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"wrong secret":   "Bearer " + signToken(t, "vega", jwt.SigningMethodHS256),
		"garbage token":  "Bearer not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			if code := invoke(m, header); code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", code)
			}
		})
	}
}

func TestExpiredToken(t *testing.T) {
	m := NewMiddleware("orion")
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte("orion"))
	if err != nil {
		t.Fatal(err)
	}
	if code := invoke(m, "Bearer "+s); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}
