package campaign

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"bulkmail/internal/domain"
	"bulkmail/internal/store/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeRenderer struct {
	err error
}

func (r fakeRenderer) Render(ctx context.Context, c domain.Campaign, rc domain.Recipient) (domain.Content, error) {
	if r.err != nil {
		return domain.Content{}, r.err
	}
	return domain.Content{
		Subject: fmt.Sprintf("%d days to go", c.CountdownDay),
		HTML:    "<p>Hi " + rc.DisplayName + "</p>",
		Text:    "Hi " + rc.DisplayName,
	}, nil
}

// fakeMailer counts calls per address and tracks peak concurrency.
type fakeMailer struct {
	mu          sync.Mutex
	calls       map[string]int
	sent        []domain.Message
	inFlight    int
	maxInFlight int

	// send decides the result of each call; nil means success.
	send func(ctx context.Context, msg domain.Message, call int) error
}

func newFakeMailer(send func(ctx context.Context, msg domain.Message, call int) error) *fakeMailer {
	return &fakeMailer{calls: map[string]int{}, send: send}
}

func (m *fakeMailer) Send(ctx context.Context, msg domain.Message) (domain.Receipt, error) {
	m.mu.Lock()
	m.calls[msg.To]++
	call := m.calls[msg.To]
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.send != nil {
		if err := m.send(ctx, msg, call); err != nil {
			return domain.Receipt{}, err
		}
	}
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return domain.Receipt{ID: "rcpt-" + msg.To}, nil
}

func (m *fakeMailer) Calls(addr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[addr]
}

func (m *fakeMailer) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

func failFor(addrs ...string) func(ctx context.Context, msg domain.Message, call int) error {
	set := map[string]bool{}
	for _, a := range addrs {
		set[a] = true
	}
	return func(ctx context.Context, msg domain.Message, call int) error {
		if set[msg.To] {
			return fmt.Errorf("%w: provider rejected %s", domain.ErrSend, msg.To)
		}
		return nil
	}
}

// flakyStore fails selected operations on top of the memory store.
type flakyStore struct {
	*memory.Store
	failCreate   bool
	failUpdateTo map[domain.Status]bool
}

func (s *flakyStore) Create(ctx context.Context, rec domain.TrackingRecord) (domain.TrackingRecord, error) {
	if s.failCreate {
		return domain.TrackingRecord{}, fmt.Errorf("%w: insert failed", domain.ErrStore)
	}
	return s.Store.Create(ctx, rec)
}

func (s *flakyStore) Update(ctx context.Context, id string, patch domain.TrackingPatch) (domain.TrackingRecord, error) {
	if patch.Status != nil && s.failUpdateTo[*patch.Status] {
		return domain.TrackingRecord{}, fmt.Errorf("%w: update failed", domain.ErrStore)
	}
	return s.Store.Update(ctx, id, patch)
}

type fakeSource struct {
	mu         sync.Mutex
	calls      int
	recipients []domain.Recipient
	err        error
}

func (s *fakeSource) ListEligible(ctx context.Context) ([]domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.recipients, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.CampaignCompleted
	err    error
}

func (p *fakePublisher) PublishCampaignCompleted(ctx context.Context, ev domain.CampaignCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

var errBoom = errors.New("boom")

func testCampaign() domain.Campaign {
	return domain.Campaign{
		CountdownDay: 7,
		LaunchDate:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Metadata:     map[string]string{},
	}
}

func newDispatcher(store TrackingStore, mailer Mailer) *Dispatcher {
	return &Dispatcher{
		Store:      store,
		Renderer:   fakeRenderer{},
		Mailer:     mailer,
		From:       "noreply@example.com",
		FromName:   "Launch Team",
		MaxRetries: 2,
		Logger:     discard,
	}
}
