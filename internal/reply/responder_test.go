package reply

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wablast/pkg/logx"
)

func TestHTTPResponderRoundTrip(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req oracleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Sender != "6281234567890" || req.Message != "halo" {
			t.Errorf("unexpected request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(oracleResponse{Reply: "halo juga"})
	}))
	defer srv.Close()

	r := NewHTTP(Config{URL: srv.URL, Timeout: time.Second}, logx.Nop())
	got, err := r.Reply(context.Background(), "6281234567890", "halo")
	if err != nil {
		t.Fatalf("Reply error: %v", err)
	}
	if got != "halo juga" {
		t.Fatalf("reply = %q, want %q", got, "halo juga")
	}
}

func TestHTTPResponderFallsBackOnError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oracle down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewHTTP(Config{URL: srv.URL, Timeout: time.Second, Fallback: "terima kasih, kami akan membalas segera"}, logx.Nop())
	got, err := r.Reply(context.Background(), "6281234567890", "halo")
	if err != nil {
		t.Fatalf("Reply must not surface oracle errors, got: %v", err)
	}
	if got != "terima kasih, kami akan membalas segera" {
		t.Fatalf("reply = %q, want fallback", got)
	}
}

func TestHTTPResponderEmptyFallbackMeansSilence(t *testing.T) {
	t.Parallel()
	// Unreachable oracle.
	r := NewHTTP(Config{URL: "http://127.0.0.1:1", Timeout: 100 * time.Millisecond}, logx.Nop())
	got, err := r.Reply(context.Background(), "6281234567890", "halo")
	if err != nil {
		t.Fatalf("Reply error: %v", err)
	}
	if got != "" {
		t.Fatalf("reply = %q, want empty (no reply)", got)
	}
}

func TestStatic(t *testing.T) {
	t.Parallel()
	got, err := Static{Text: "ok"}.Reply(context.Background(), "x", "y")
	if err != nil || got != "ok" {
		t.Fatalf("Static.Reply = (%q, %v)", got, err)
	}
}
