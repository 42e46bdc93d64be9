package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bulkmail_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	CampaignRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bulkmail_campaign_runs_total", Help: "Campaign runs by result"},
		[]string{"result"},
	)
	CampaignDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "bulkmail_campaign_duration_seconds", Help: "Campaign run duration"},
	)
	Outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bulkmail_outcomes_total", Help: "Per-recipient outcomes"},
		[]string{"outcome"},
	)
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bulkmail_tracking_transitions_total", Help: "Tracking record transitions"},
		[]string{"to"},
	)
	MailerSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bulkmail_mailer_send_total", Help: "Mailer send outcomes"},
		[]string{"result"},
	)
	MailerLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "bulkmail_mailer_send_latency_seconds", Help: "Mailer send latency"},
	)
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bulkmail_events_published_total", Help: "Campaign event publish results"},
		[]string{"result"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, CampaignRuns, CampaignDuration, Outcomes, Transitions, MailerSend, MailerLatency, EventsPublished)
}
