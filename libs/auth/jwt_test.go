package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndParse(t *testing.T) {
	token, err := Sign(Identity{UserID: "u1", ProviderID: "p1"}, "secret", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	id, err := Parse(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.UserID != "u1" || id.ProviderID != "p1" || !id.IsProvider() {
		t.Fatalf("unexpected identity %+v", id)
	}
	if _, err := Parse(token, "other"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestParseExpired(t *testing.T) {
	token, err := Sign(Identity{UserID: "u1"}, "secret", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := Parse(token, "secret"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	var got Identity
	h := Middleware("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token, _ := Sign(Identity{UserID: "client-7"}, "secret", time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got.UserID != "client-7" || got.IsProvider() {
		t.Fatalf("unexpected identity %+v", got)
	}
}
