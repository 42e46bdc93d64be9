// Package emailapi is a Mailer for the HTTP email API: one JSON POST per
// message, 2xx on acceptance.
package emailapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"bulkmail/internal/domain"
	"bulkmail/internal/util"
)

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

type SendRequest struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	Text     string `json:"text,omitempty"`
	From     string `json:"from,omitempty"`
	FromName string `json:"fromName,omitempty"`
}

type SendResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
	Details   string `json:"details,omitempty"`
}

func (c *Client) Send(ctx context.Context, msg domain.Message) (domain.Receipt, error) {
	body, err := json.Marshal(SendRequest{
		To:       msg.To,
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Text:     msg.Text,
		From:     msg.From,
		FromName: msg.FromName,
	})
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("%w: %w: encode request: %v", domain.ErrSend, domain.ErrNonRetryable, err)
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + "/"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("%w: %w: %v", domain.ErrSend, domain.ErrNonRetryable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return domain.Receipt{}, classify(CallError{Err: err})
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var out SendResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Error
		if out.Details != "" {
			msg += ": " + out.Details
		}
		if msg == "" {
			msg = "email api send failed"
		}
		return domain.Receipt{}, classify(CallError{Err: errors.New(msg), HTTPStatus: resp.StatusCode, Raw: raw})
	}

	id := out.MessageID
	if id == "" {
		id = resp.Header.Get("X-Message-Id")
	}
	if id == "" {
		id = util.NewReceiptID()
	}
	return domain.Receipt{ID: id}, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// CallError carries the provider's HTTP status (0 for transport errors).
type CallError struct {
	Err        error
	HTTPStatus int
	Raw        []byte
}

func (e CallError) Error() string {
	if e.HTTPStatus == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("email api status %d: %v", e.HTTPStatus, e.Err)
}

func (e CallError) Unwrap() error { return e.Err }

func classify(e CallError) error {
	if ShouldRetry(e.Err, e.HTTPStatus) {
		return fmt.Errorf("%w: %w", domain.ErrSend, e)
	}
	return fmt.Errorf("%w: %w: %w", domain.ErrSend, domain.ErrNonRetryable, e)
}

// ShouldRetry reports whether another attempt can succeed.
func ShouldRetry(err error, httpStatus int) bool {
	if httpStatus == 0 {
		// transport failure: timeouts, resets, refused connections
		return err != nil && !errors.Is(err, context.Canceled)
	}
	if httpStatus == http.StatusTooManyRequests || httpStatus == http.StatusRequestTimeout {
		return true
	}
	return httpStatus >= 500 && httpStatus <= 599
}
