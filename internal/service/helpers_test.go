package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unclebandit/campaign-dispatch/internal/delivery"
	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
)

var now = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

const audience = "customer"

func customer(email, firstName string) model.Recipient {
	return model.Recipient{
		Email:                email,
		FirstName:            firstName,
		Verified:             true,
		NotificationsEnabled: true,
		Audience:             audience,
	}
}

func seedRecipients(recs ...model.Recipient) *repository.MemoryRecipientRepository {
	repo := repository.NewMemoryRecipientRepository(audience)
	repo.Now = clock
	for _, r := range recs {
		repo.Add(r)
	}
	return repo
}

// captureTransport records sent messages; failFor lists addresses it rejects.
type captureTransport struct {
	mu      sync.Mutex
	sent    []*delivery.Message
	failFor map[string]bool
}

func (c *captureTransport) Name() string { return "capture" }

func (c *captureTransport) Send(ctx context.Context, msg *delivery.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failFor[msg.To] {
		return errors.New("550 mailbox unavailable")
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureTransport) recipients() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, m := range c.sent {
		out[i] = m.To
	}
	return out
}

// scriptedSender returns canned results and counts calls.
type scriptedSender struct {
	calls   int
	outcome delivery.Outcome
	err     error
}

func (s *scriptedSender) Send(ctx context.Context, to string, vars map[string]any, subject string) (delivery.Outcome, error) {
	s.calls++
	return s.outcome, s.err
}

func deliveryFailure() error {
	return appErrors.NewDeliveryError("capture", errors.New("connection reset"))
}

// flakyBudget allows okCalls checks and then fails.
type flakyBudget struct {
	okCalls int
	calls   int
}

func (b *flakyBudget) HasBudget(ctx context.Context, day time.Time) (bool, error) {
	b.calls++
	if b.calls > b.okCalls {
		return false, errors.New("counter store unreachable")
	}
	return true, nil
}

type failingCounters struct {
	repository.CounterRepositoryInterface
	err error
}

func (f failingCounters) Get(ctx context.Context, day time.Time) (*model.DailyCounter, error) {
	return nil, f.err
}

func (f failingCounters) Recent(ctx context.Context, limit int) ([]model.DailyCounter, error) {
	return nil, f.err
}

func intPtr(n int) *int { return &n }
