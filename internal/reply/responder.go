// Package reply integrates the optional auto-reply oracle: an external HTTP
// service that turns an inbound message into reply text. Oracle failures
// never propagate; they degrade to a configured fallback reply or silence.
package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wablast/pkg/logx"
)

// Responder produces a reply for an inbound message. An empty reply with a
// nil error means "send nothing".
type Responder interface {
	Reply(ctx context.Context, from, text string) (string, error)
}

// Static always answers with the same text (empty = always silent).
type Static struct {
	Text string
}

func (s Static) Reply(ctx context.Context, from, text string) (string, error) {
	return s.Text, nil
}

type Config struct {
	URL      string
	Timeout  time.Duration
	Fallback string
}

// HTTPResponder consults a JSON-over-HTTP reply oracle. On any oracle
// failure (transport error, bad status, malformed body) it logs and returns
// the fallback text instead of an error, so inbound processing never trips
// over a flaky oracle.
type HTTPResponder struct {
	url      string
	fallback string
	client   *http.Client
	log      logx.Logger
}

func NewHTTP(cfg Config, log logx.Logger) *HTTPResponder {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPResponder{
		url:      cfg.URL,
		fallback: cfg.Fallback,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

type oracleRequest struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

type oracleResponse struct {
	Reply string `json:"reply"`
}

func (r *HTTPResponder) Reply(ctx context.Context, from, text string) (string, error) {
	reply, err := r.ask(ctx, from, text)
	if err != nil {
		r.log.Warn("reply oracle failed, using fallback", logx.Err(err))
		return r.fallback, nil
	}
	return reply, nil
}

func (r *HTTPResponder) ask(ctx context.Context, from, text string) (string, error) {
	body, err := json.Marshal(oracleRequest{Sender: from, Message: text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little for the error message, discard the rest.
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("oracle status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out oracleResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode oracle response: %w", err)
	}
	return out.Reply, nil
}
