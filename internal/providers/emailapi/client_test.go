package emailapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulkmail/internal/domain"
)

func TestSendSuccess(t *testing.T) {
	var got SendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer k1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(SendResponse{Success: true, Message: "Email sent successfully", MessageID: "m-1"})
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, APIKey: "k1", HTTP: srv.Client()}
	r, err := c.Send(context.Background(), domain.Message{To: "ada@example.com", Subject: "hi", HTML: "<p>hi</p>", From: "no@example.com", FromName: "Team"})
	require.NoError(t, err)
	assert.Equal(t, "m-1", r.ID)
	assert.Equal(t, "ada@example.com", got.To)
	assert.Equal(t, "Team", got.FromName)
}

func TestSendGeneratesReceiptWhenMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	r, err := (&Client{BaseURL: srv.URL}).Send(context.Background(), domain.Message{To: "a@example.com"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(r.ID, "rcpt_"))
}

func TestSendClassifiesFailures(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
			_, _ = w.Write([]byte(`{"error":"Failed to send email","details":"smtp 550"}`))
		}))
		_, err := (&Client{BaseURL: srv.URL}).Send(context.Background(), domain.Message{To: "a@example.com"})
		srv.Close()

		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrSend), "status %d", c.status)
		assert.Equal(t, !c.retryable, errors.Is(err, domain.ErrNonRetryable), "status %d", c.status)
		assert.Contains(t, err.Error(), "smtp 550")

		var ce CallError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, c.status, ce.HTTPStatus)
	}
}

func TestSendTransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := (&Client{BaseURL: url}).Send(context.Background(), domain.Message{To: "a@example.com"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSend))
	assert.False(t, errors.Is(err, domain.ErrNonRetryable))
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(context.DeadlineExceeded, 0))
	assert.False(t, ShouldRetry(context.Canceled, 0))
	assert.True(t, ShouldRetry(nil, 408))
	assert.False(t, ShouldRetry(nil, 404))
	assert.True(t, ShouldRetry(nil, 503))
}
