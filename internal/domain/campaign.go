package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// CountdownDay accepts either a JSON string or a JSON number. null decodes to "".
type CountdownDay string

func (d *CountdownDay) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = CountdownDay(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*d = CountdownDay(n.String())
	return nil
}

// CampaignRequest is the unvalidated input of one bulk send.
type CampaignRequest struct {
	CountdownDay CountdownDay      `json:"countdownDay"`
	LaunchDate   string            `json:"launchDate"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Campaign is a validated CampaignRequest. It lives for one orchestration run.
type Campaign struct {
	CountdownDay int
	LaunchDate   time.Time
	Metadata     map[string]string
}

// Validate parses the request. It performs no I/O.
func (r CampaignRequest) Validate() (Campaign, error) {
	raw := strings.TrimSpace(string(r.CountdownDay))
	if raw == "" {
		return Campaign{}, &ValidationError{Field: "countdownDay", Reason: "required"}
	}
	day, err := strconv.Atoi(raw)
	if err != nil {
		return Campaign{}, &ValidationError{Field: "countdownDay", Reason: "must be an integer"}
	}
	if day < 0 {
		return Campaign{}, &ValidationError{Field: "countdownDay", Reason: "must not be negative"}
	}

	ld := strings.TrimSpace(r.LaunchDate)
	if ld == "" {
		return Campaign{}, &ValidationError{Field: "launchDate", Reason: "required"}
	}
	launch, err := parseLaunchDate(ld)
	if err != nil {
		return Campaign{}, &ValidationError{Field: "launchDate", Reason: "must be RFC 3339 or YYYY-MM-DD"}
	}

	meta := make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		meta[k] = v
	}
	return Campaign{CountdownDay: day, LaunchDate: launch, Metadata: meta}, nil
}

func parseLaunchDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Key identifies the campaign for dedupe purposes: same day marker, same launch date.
func (c Campaign) Key() string {
	return strconv.Itoa(c.CountdownDay) + "|" + c.LaunchDate.Format(time.DateOnly)
}

// TrackingMetadata is the campaign context attached to every TrackingRecord.
func (c Campaign) TrackingMetadata() map[string]string {
	out := make(map[string]string, len(c.Metadata)+3)
	for k, v := range c.Metadata {
		out[k] = v
	}
	out["countdownDay"] = strconv.Itoa(c.CountdownDay)
	out["launchDate"] = c.LaunchDate.Format(time.RFC3339)
	if _, ok := out["source"]; !ok {
		out["source"] = "bulk-countdown"
	}
	return out
}

// OutcomeKind is the terminal classification of a recipient in a run.
type OutcomeKind string

const (
	OutcomeSent    OutcomeKind = "sent"
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeFailed  OutcomeKind = "failed"
)

type CampaignOutcome struct {
	RecipientID string      `json:"recipientId"`
	Outcome     OutcomeKind `json:"outcome"`
	Reason      string      `json:"reason,omitempty"`
	RecordID    string      `json:"recordId,omitempty"`
}

type CampaignSummary struct {
	Total   int               `json:"total"`
	Sent    int               `json:"sent"`
	Skipped int               `json:"skipped"`
	Failed  int               `json:"failed"`
	Details []CampaignOutcome `json:"details"`
}

// CampaignCompleted is published after a run has been aggregated.
type CampaignCompleted struct {
	RunID        string    `json:"runId"`
	CountdownDay int       `json:"countdownDay"`
	LaunchDate   time.Time `json:"launchDate"`
	Total        int       `json:"total"`
	Sent         int       `json:"sent"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
	FinishedAt   time.Time `json:"finishedAt"`
}
