package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUnconfiguredWebhookIsNoOp(t *testing.T) {
	w := NewWebhook("")
	if w.Configured() {
		t.Fatal("empty url reported as configured")
	}
	if err := w.SendTranscript(context.Background(), Delivery{Email: "a@b.c"}); err != nil {
		t.Fatalf("no-op send returned error: %v", err)
	}
	if err := w.PingFetch(context.Background()); err != nil {
		t.Fatalf("no-op ping returned error: %v", err)
	}
}

func TestSendTranscriptPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	err := w.SendTranscript(context.Background(), Delivery{
		Email: "ada@example.com", Name: "Ada", TranscriptID: "conv_1", Description: "from your last call",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["email"] != "ada@example.com" || got["transcriptId"] != "conv_1" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestPingFetchPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := NewWebhook(srv.URL).PingFetch(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if got["action"] != "fetch_transcripts" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhook(srv.URL).PingFetch(context.Background()); err == nil {
		t.Fatal("expected error for 502 response")
	}
}
