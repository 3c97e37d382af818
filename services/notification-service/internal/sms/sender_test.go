package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookSenderPostsMessage(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "tok")
	if err := s.Send(context.Background(), "+15550001", "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["to"] != "+15550001" || got["body"] != "hi" || auth != "Bearer tok" {
		t.Fatalf("unexpected request %v auth=%q", got, auth)
	}
}

func TestWebhookSenderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookSender(srv.URL, "").Send(context.Background(), "+1", "x"); err == nil {
		t.Fatalf("expected error on 502")
	}
	if err := NewWebhookSender("", "").Send(context.Background(), "+1", "x"); err == nil {
		t.Fatalf("expected error without url")
	}
}

func TestNewPicksBackend(t *testing.T) {
	if New("noop", "", "").ProviderID() != "sms-noop" {
		t.Fatalf("expected noop sender")
	}
	if New("webhook", "http://x", "").ProviderID() != "sms-webhook" {
		t.Fatalf("expected webhook sender")
	}
}
