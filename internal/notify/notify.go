// Package notify delivers fire-and-forget webhook calls to the external
// automation endpoint that emails transcripts. Failures are logged by the
// caller and never retried.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

type Delivery struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	TranscriptID string `json:"transcriptId"`
	Description  string `json:"description"`
}

type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether an endpoint is set; unset means every send is a
// silent no-op.
func (w *Webhook) Configured() bool { return w.url != "" }

// SendTranscript asks the endpoint to email the given transcript.
func (w *Webhook) SendTranscript(ctx context.Context, d Delivery) error {
	if w.url == "" {
		return nil
	}
	log.Printf("notify: sending transcript %s to %s", d.TranscriptID, d.Email)
	return w.post(ctx, d)
}

// PingFetch tells the endpoint to pull fresh transcripts from the voice
// platform.
func (w *Webhook) PingFetch(ctx context.Context) error {
	if w.url == "" {
		return nil
	}
	return w.post(ctx, map[string]string{"action": "fetch_transcripts"})
}

func (w *Webhook) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	// The endpoint's body is informational only.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
