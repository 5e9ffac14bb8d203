// Package messaging sends outbound SMS through the Twilio REST API.
package messaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apiBase = "https://api.twilio.com/2010-04-01"

// Sender delivers one outbound message to a raw channel address.
type Sender interface {
	SendSMS(ctx context.Context, to, body string) error
}

type TwilioClient struct {
	accountSID string
	authToken  string
	fromNumber string
	client     *http.Client
	base       string
}

func NewTwilio(accountSID, authToken, fromNumber string) *TwilioClient {
	return &TwilioClient{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		client:     &http.Client{Timeout: 15 * time.Second},
		base:       apiBase,
	}
}

// Configured reports whether credentials and a sending number are present.
func (t *TwilioClient) Configured() bool {
	return t.accountSID != "" && t.authToken != "" && t.fromNumber != ""
}

// SendSMS posts one message. A "whatsapp:" prefixed recipient is answered
// from the matching whatsapp sender address.
func (t *TwilioClient) SendSMS(ctx context.Context, to, body string) error {
	if !t.Configured() {
		return fmt.Errorf("messaging provider not configured")
	}
	from := t.fromNumber
	if strings.HasPrefix(to, "whatsapp:") {
		from = "whatsapp:" + t.fromNumber
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", t.base, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("provider rejected message: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
