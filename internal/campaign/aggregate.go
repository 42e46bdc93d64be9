package campaign

import "bulkmail/internal/domain"

// Aggregate reduces per-recipient outcomes into a summary. Details keep the
// input order.
func Aggregate(outcomes []domain.CampaignOutcome) domain.CampaignSummary {
	s := domain.CampaignSummary{
		Total:   len(outcomes),
		Details: make([]domain.CampaignOutcome, len(outcomes)),
	}
	copy(s.Details, outcomes)
	for _, o := range outcomes {
		switch o.Outcome {
		case domain.OutcomeSent:
			s.Sent++
		case domain.OutcomeSkipped:
			s.Skipped++
		case domain.OutcomeFailed:
			s.Failed++
		}
	}
	return s
}
