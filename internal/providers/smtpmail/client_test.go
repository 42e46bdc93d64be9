package smtpmail

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulkmail/internal/domain"
)

func TestBuildMsg(t *testing.T) {
	m, err := buildMsg(domain.Message{
		To:       "ada@example.com",
		ToName:   "Ada",
		Subject:  "7 days to launch",
		HTML:     "<p>hello</p>",
		Text:     "hello",
		From:     "noreply@example.com",
		FromName: "Launch Team",
	}, "rcpt_1")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Subject: 7 days to launch")
	assert.Contains(t, out, "ada@example.com")
	assert.Contains(t, out, "Launch Team")
	assert.Contains(t, out, "<rcpt_1@bulkmail>")
	assert.Contains(t, out, "text/plain")
	assert.Contains(t, out, "text/html")
}

func TestBuildMsgRejectsBadAddress(t *testing.T) {
	_, err := buildMsg(domain.Message{To: "not an address", From: "noreply@example.com"}, "rcpt_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSend))
	assert.True(t, errors.Is(err, domain.ErrNonRetryable))
}

func TestNewDefaultsPort(t *testing.T) {
	assert.Equal(t, 587, New(Settings{Host: "smtp.example.com"}).s.Port)
}
