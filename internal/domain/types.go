package domain

import (
	"net/mail"
	"strings"
	"time"
)

// Recipient is one addressable target of a campaign. The core never mutates it.
type Recipient struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	DisplayName string            `json:"displayName"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// SkipReason reports why a recipient cannot be dispatched to. Empty means eligible.
func (r Recipient) SkipReason() string {
	addr := strings.TrimSpace(r.Email)
	if addr == "" {
		return "missing email address"
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return "invalid email address"
	}
	return ""
}

// TrackingRecord is the persisted delivery-attempt state for one (campaign, recipient) pair.
type TrackingRecord struct {
	ID           string            `json:"id"`
	RecipientID  string            `json:"recipientId"`
	DedupeKey    string            `json:"dedupeKey"`
	Status       Status            `json:"status"`
	ScheduledAt  *time.Time        `json:"scheduledAt,omitempty"`
	SentAt       *time.Time        `json:"sentAt,omitempty"`
	FailedAt     *time.Time        `json:"failedAt,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	RetryCount   int               `json:"retryCount"`
	ReceiptID    string            `json:"receiptId,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// TrackingPatch is a partial update. Nil fields are left untouched.
type TrackingPatch struct {
	Status       *Status
	SentAt       *time.Time
	FailedAt     *time.Time
	ErrorMessage *string
	RetryCount   *int
	ReceiptID    *string
	Now          time.Time
}

// Apply merges the patch into rec. It does not check transitions.
func (p TrackingPatch) Apply(rec *TrackingRecord) {
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.SentAt != nil {
		rec.SentAt = p.SentAt
	}
	if p.FailedAt != nil {
		rec.FailedAt = p.FailedAt
	}
	if p.ErrorMessage != nil {
		rec.ErrorMessage = *p.ErrorMessage
	}
	if p.RetryCount != nil {
		rec.RetryCount = *p.RetryCount
	}
	if p.ReceiptID != nil {
		rec.ReceiptID = *p.ReceiptID
	}
	rec.UpdatedAt = p.Now
}

// Content is a rendered email.
type Content struct {
	Subject string
	HTML    string
	Text    string
}

// Message is what a Mailer delivers.
type Message struct {
	To       string
	ToName   string
	Subject  string
	HTML     string
	Text     string
	From     string
	FromName string
}

// Receipt identifies an accepted message at the provider.
type Receipt struct {
	ID string
}
