package util

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// dedupeNamespace scopes v5 ids generated for tracking dedupe keys.
var dedupeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("bulkmail/tracking"))

func NewRecordID() string {
	// ULID is sortable (nice for DB indexes and dashboards)
	return "trk_" + newULID()
}

func NewRunID() string {
	return "run_" + newULID()
}

func newULID() string {
	t := time.Now().UTC()
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// DedupeKey is stable for the same campaign key and recipient id.
func DedupeKey(campaignKey, recipientID string) string {
	return uuid.NewSHA1(dedupeNamespace, []byte(campaignKey+"|"+recipientID)).String()
}

func NowUTC() time.Time {
	return time.Now().UTC()
}

// NewReceiptID is used when a provider accepts a message without returning an id.
func NewReceiptID() string {
	return "rcpt_" + newULID()
}

func NewRequestID() string {
	return "req_" + newULID()
}
