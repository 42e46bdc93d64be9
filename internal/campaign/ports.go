// Package campaign runs bulk email campaigns: it validates the request, pulls
// recipients, drives each recipient through the tracking state machine on a
// bounded worker pool and reduces the outcomes into a summary.
package campaign

import (
	"context"

	"bulkmail/internal/domain"
)

// RecipientSource returns every eligible recipient for a campaign. It must
// fail with domain.ErrSourceUnavailable on any data-access error and never
// return a partial list.
type RecipientSource interface {
	ListEligible(ctx context.Context) ([]domain.Recipient, error)
}

// ContentRenderer produces subject and body for one recipient. Failures wrap
// domain.ErrRender and are recipient-scoped.
type ContentRenderer interface {
	Render(ctx context.Context, c domain.Campaign, r domain.Recipient) (domain.Content, error)
}

// Mailer attempts delivery once. Failures wrap domain.ErrSend; failures that
// cannot succeed on retry also wrap domain.ErrNonRetryable. Implementations
// must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg domain.Message) (domain.Receipt, error)
}

// TrackingStore persists tracking records. Implementations must be safe for
// concurrent use and must reject transitions the status table forbids with
// domain.ErrInvalidTransition.
type TrackingStore interface {
	// Create stores a new record. A record with the same dedupe key yields
	// domain.ErrDuplicate together with the existing record when it can be read.
	Create(ctx context.Context, rec domain.TrackingRecord) (domain.TrackingRecord, error)
	// Update applies a patch to the record with the given id.
	Update(ctx context.Context, id string, patch domain.TrackingPatch) (domain.TrackingRecord, error)
	// Find returns the record with the given id.
	Find(ctx context.Context, id string) (domain.TrackingRecord, bool, error)
}

// RecipientDispatcher drives one recipient to a terminal outcome. It never
// returns an error: every failure is reported as data.
type RecipientDispatcher interface {
	Dispatch(ctx context.Context, c domain.Campaign, r domain.Recipient) domain.CampaignOutcome
}

// EventPublisher is notified once a run has been aggregated.
type EventPublisher interface {
	PublishCampaignCompleted(ctx context.Context, ev domain.CampaignCompleted) error
}
