package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bulkmail/internal/domain"
	"bulkmail/internal/observability"
	"bulkmail/internal/util"
)

const (
	reasonCancelled       = "campaign cancelled"
	reasonDuplicate       = "already dispatched for this campaign"
	reasonPriorFailed     = "previous attempt failed for this campaign"
	reasonPriorIncomplete = "previous attempt did not finish for this campaign"
)

// Dispatcher is the per-recipient state machine: QUEUED -> SENDING -> SENT | FAILED.
type Dispatcher struct {
	Store    TrackingStore
	Renderer ContentRenderer
	Mailer   Mailer

	// Default sender; campaign metadata "from"/"fromName" override it.
	From     string
	FromName string

	// MaxRetries is the number of re-attempts after the first send.
	MaxRetries int
	// Backoff is multiplied by the retry number before each re-attempt.
	Backoff time.Duration
	// StoreTimeout bounds bookkeeping writes, which run detached from
	// cancellation so records do not stay SENDING.
	StoreTimeout time.Duration

	Now    func() time.Time
	NewID  func() string
	Logger *slog.Logger
}

// Dispatch never panics and never returns an error; every failure ends up in
// the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, c domain.Campaign, r domain.Recipient) (out domain.CampaignOutcome) {
	out = domain.CampaignOutcome{RecipientID: r.ID}
	var t *tracker

	defer func() {
		p := recover()
		if p == nil {
			return
		}
		reason := fmt.Sprintf("internal error: %v", p)
		d.logger().Error("dispatch panic", "recipient_id", r.ID, "panic", p)
		if t != nil {
			out = t.fail(ctx, reason)
			return
		}
		out = failed(r.ID, "", reason)
	}()

	if reason := r.SkipReason(); reason != "" {
		d.logger().Info("recipient skipped", "recipient_id", r.ID, "reason", reason)
		return skipped(r.ID, reason)
	}

	now := d.now()
	rec, err := d.Store.Create(ctx, domain.TrackingRecord{
		ID:          d.newID(),
		RecipientID: r.ID,
		DedupeKey:   util.DedupeKey(c.Key(), r.ID),
		Status:      domain.StatusQueued,
		ScheduledAt: &now,
		Metadata:    c.TrackingMetadata(),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	switch {
	case errors.Is(err, domain.ErrDuplicate):
		reason := duplicateReason(rec)
		d.logger().Info("recipient skipped",
			"recipient_id", r.ID,
			"reason", reason,
			"existing_record_id", rec.ID,
			"existing_status", rec.Status,
		)
		return skipped(r.ID, reason)
	case err != nil && ctx.Err() != nil:
		return skipped(r.ID, reasonCancelled)
	case err != nil:
		d.logger().Error("tracking create failed", "recipient_id", r.ID, "err", err)
		return failed(r.ID, "", "tracking create failed: "+err.Error())
	}

	t = &tracker{d: d, rec: rec}
	t.observe(rec.Status, rec.Status)

	if err := t.update(ctx, domain.TrackingPatch{Status: domain.StatusSending.Ptr()}); err != nil {
		return t.fail(ctx, "tracking update failed: "+err.Error())
	}

	content, err := d.Renderer.Render(ctx, c, r)
	if err != nil {
		if ctx.Err() != nil {
			return t.fail(ctx, reasonCancelled)
		}
		return t.fail(ctx, err.Error())
	}
	msg := d.message(c, r, content)

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return t.fail(ctx, reasonCancelled)
		}
		receipt, err := d.Mailer.Send(ctx, msg)
		if err == nil {
			return t.sent(ctx, receipt)
		}
		if ctx.Err() != nil {
			return t.fail(ctx, reasonCancelled)
		}
		if errors.Is(err, domain.ErrNonRetryable) || attempt >= d.MaxRetries {
			return t.fail(ctx, err.Error())
		}

		retries := attempt + 1
		if uerr := t.update(ctx, domain.TrackingPatch{RetryCount: &retries}); uerr != nil {
			d.logger().Warn("tracking retry count update failed", "record_id", t.rec.ID, "err", uerr)
			t.rec.RetryCount = retries
		}
		d.logger().Info("send retry scheduled",
			"record_id", t.rec.ID,
			"recipient_id", r.ID,
			"retry_count", retries,
			"max_retries", d.MaxRetries,
			"err", err,
		)
		if !sleep(ctx, d.Backoff*time.Duration(retries)) {
			return t.fail(ctx, reasonCancelled)
		}
	}
}

func (d *Dispatcher) message(c domain.Campaign, r domain.Recipient, content domain.Content) domain.Message {
	from, fromName := d.From, d.FromName
	if v := c.Metadata["from"]; v != "" {
		from = v
	}
	if v := c.Metadata["fromName"]; v != "" {
		fromName = v
	}
	return domain.Message{
		To:       r.Email,
		ToName:   r.DisplayName,
		Subject:  content.Subject,
		HTML:     content.HTML,
		Text:     content.Text,
		From:     from,
		FromName: fromName,
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return util.NowUTC()
}

func (d *Dispatcher) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return util.NewRecordID()
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// bookkeeping returns a context that survives campaign cancellation.
func (d *Dispatcher) bookkeeping(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := d.StoreTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// tracker holds the last known state of one record.
type tracker struct {
	d   *Dispatcher
	rec domain.TrackingRecord
}

func (t *tracker) update(ctx context.Context, patch domain.TrackingPatch) error {
	patch.Now = t.d.now()
	from := t.rec.Status
	if patch.Status != nil {
		if err := domain.CheckTransition(from, *patch.Status); err != nil {
			return err
		}
	}

	sctx, cancel := t.d.bookkeeping(ctx)
	defer cancel()
	rec, err := t.d.Store.Update(sctx, t.rec.ID, patch)
	if err != nil {
		return err
	}
	t.rec = rec
	if patch.Status != nil {
		t.observe(from, *patch.Status)
	}
	return nil
}

func (t *tracker) sent(ctx context.Context, receipt domain.Receipt) domain.CampaignOutcome {
	now := t.d.now()
	err := t.update(ctx, domain.TrackingPatch{
		Status:    domain.StatusSent.Ptr(),
		SentAt:    &now,
		ReceiptID: &receipt.ID,
	})
	if err != nil {
		// delivery already happened; tracking is best-effort from here
		t.d.logger().Warn("tracking update after send failed",
			"record_id", t.rec.ID,
			"recipient_id", t.rec.RecipientID,
			"receipt_id", receipt.ID,
			"err", err,
		)
	}
	return domain.CampaignOutcome{RecipientID: t.rec.RecipientID, Outcome: domain.OutcomeSent, RecordID: t.rec.ID}
}

func (t *tracker) fail(ctx context.Context, reason string) domain.CampaignOutcome {
	if t.rec.Status.CanTransitionTo(domain.StatusFailed) {
		now := t.d.now()
		err := t.update(ctx, domain.TrackingPatch{
			Status:       domain.StatusFailed.Ptr(),
			FailedAt:     &now,
			ErrorMessage: &reason,
		})
		if err != nil {
			t.d.logger().Warn("tracking failed transition not persisted",
				"record_id", t.rec.ID,
				"recipient_id", t.rec.RecipientID,
				"err", err,
			)
		}
	}
	return failed(t.rec.RecipientID, t.rec.ID, reason)
}

func (t *tracker) observe(from, to domain.Status) {
	observability.Transitions.WithLabelValues(string(to)).Inc()
	t.d.logger().Info("tracking transition",
		"record_id", t.rec.ID,
		"recipient_id", t.rec.RecipientID,
		"from", from,
		"to", to,
		"retry_count", t.rec.RetryCount,
	)
}

// duplicateReason tells a rerun why a recipient is not attempted again.
// An unreadable existing record is reported as already dispatched.
func duplicateReason(existing domain.TrackingRecord) string {
	switch existing.Status {
	case domain.StatusFailed:
		return reasonPriorFailed
	case domain.StatusQueued, domain.StatusSending:
		return reasonPriorIncomplete
	default:
		return reasonDuplicate
	}
}

func skipped(recipientID, reason string) domain.CampaignOutcome {
	return domain.CampaignOutcome{RecipientID: recipientID, Outcome: domain.OutcomeSkipped, Reason: reason}
}

func failed(recipientID, recordID, reason string) domain.CampaignOutcome {
	return domain.CampaignOutcome{RecipientID: recipientID, Outcome: domain.OutcomeFailed, Reason: reason, RecordID: recordID}
}

// sleep waits for d or until ctx is done. It reports whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
