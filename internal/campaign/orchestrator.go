package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bulkmail/internal/domain"
	"bulkmail/internal/observability"
	"bulkmail/internal/util"
)

const defaultConcurrency = 8

// Orchestrator runs one campaign: validate, fetch recipients, fan out to a
// bounded pool of dispatch workers, aggregate.
type Orchestrator struct {
	Source     RecipientSource
	Dispatcher RecipientDispatcher
	// Events is optional.
	Events EventPublisher

	// Concurrency is the number of recipients dispatched at once.
	Concurrency  int
	EventTimeout time.Duration

	NewRunID func() string
	Logger   *slog.Logger
}

// Run returns an error only for campaign-level failures: *domain.ValidationError
// before any I/O, or domain.ErrSourceUnavailable when recipients cannot be
// listed. Everything else is reported in the summary.
func (o *Orchestrator) Run(ctx context.Context, req domain.CampaignRequest) (domain.CampaignSummary, error) {
	c, err := req.Validate()
	if err != nil {
		observability.CampaignRuns.WithLabelValues("invalid").Inc()
		return domain.CampaignSummary{}, err
	}

	runID := o.newRunID()
	log := o.logger().With("run_id", runID, "countdown_day", c.CountdownDay)
	start := time.Now()

	recipients, err := o.Source.ListEligible(ctx)
	if err != nil {
		observability.CampaignRuns.WithLabelValues("source_unavailable").Inc()
		log.Error("list recipients failed", "err", err)
		if !errors.Is(err, domain.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
		return domain.CampaignSummary{}, err
	}
	if len(recipients) == 0 {
		observability.CampaignRuns.WithLabelValues("empty").Inc()
		log.Info("campaign has no recipients")
		return Aggregate(nil), nil
	}

	log.Info("campaign start", "recipients", len(recipients), "concurrency", o.concurrency(len(recipients)))
	outcomes := o.dispatchAll(ctx, c, recipients, log)
	summary := Aggregate(outcomes)

	observability.CampaignRuns.WithLabelValues("completed").Inc()
	observability.CampaignDuration.Observe(time.Since(start).Seconds())
	log.Info("campaign finish",
		"total", summary.Total,
		"sent", summary.Sent,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"duration", time.Since(start),
	)

	o.publish(ctx, log, domain.CampaignCompleted{
		RunID:        runID,
		CountdownDay: c.CountdownDay,
		LaunchDate:   c.LaunchDate,
		Total:        summary.Total,
		Sent:         summary.Sent,
		Skipped:      summary.Skipped,
		Failed:       summary.Failed,
		FinishedAt:   util.NowUTC(),
	})
	return summary, nil
}

// dispatchAll processes recipients with a worker pool. Outcomes are stored by
// input index so the result order matches the recipient order.
func (o *Orchestrator) dispatchAll(ctx context.Context, c domain.Campaign, recipients []domain.Recipient, log *slog.Logger) []domain.CampaignOutcome {
	workers := o.concurrency(len(recipients))
	outcomes := make([]domain.CampaignOutcome, len(recipients))
	jobs := make(chan int, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = o.dispatchOne(ctx, c, recipients[idx], log)
			}
		}()
	}

	next := 0
feed:
	for ; next < len(recipients); next++ {
		select {
		case jobs <- next:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if next < len(recipients) {
		log.Warn("campaign cancelled before all recipients started", "not_started", len(recipients)-next, "err", ctx.Err())
	}
	for ; next < len(recipients); next++ {
		outcomes[next] = skipped(recipients[next].ID, reasonCancelled)
		observability.Outcomes.WithLabelValues(string(domain.OutcomeSkipped)).Inc()
	}
	return outcomes
}

func (o *Orchestrator) dispatchOne(ctx context.Context, c domain.Campaign, r domain.Recipient, log *slog.Logger) (out domain.CampaignOutcome) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("dispatcher panic", "recipient_id", r.ID, "panic", p)
			out = failed(r.ID, "", fmt.Sprintf("internal error: %v", p))
		}
		observability.Outcomes.WithLabelValues(string(out.Outcome)).Inc()
	}()

	if ctx.Err() != nil {
		return skipped(r.ID, reasonCancelled)
	}
	start := time.Now()
	out = o.Dispatcher.Dispatch(ctx, c, r)
	log.Info("recipient done",
		"recipient_id", r.ID,
		"outcome", out.Outcome,
		"reason", out.Reason,
		"duration", time.Since(start),
	)
	return out
}

func (o *Orchestrator) publish(ctx context.Context, log *slog.Logger, ev domain.CampaignCompleted) {
	if o.Events == nil {
		return
	}
	timeout := o.EventTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := o.Events.PublishCampaignCompleted(pctx, ev); err != nil {
		observability.EventsPublished.WithLabelValues("error").Inc()
		log.Warn("publish campaign completed failed", "err", err)
		return
	}
	observability.EventsPublished.WithLabelValues("ok").Inc()
}

func (o *Orchestrator) concurrency(n int) int {
	w := o.Concurrency
	if w <= 0 {
		w = defaultConcurrency
	}
	if w > n {
		w = n
	}
	return w
}

func (o *Orchestrator) newRunID() string {
	if o.NewRunID != nil {
		return o.NewRunID()
	}
	return util.NewRunID()
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
