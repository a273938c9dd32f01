package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/metrics"
)

// ProviderPair sends through the bulk provider when it is selected and
// available, and through the direct transport otherwise. A bulk attempt that
// fails is reported as is; it never falls through to the transport.
type ProviderPair struct {
	UseBulk bool
	// BulkProvider labels the availability gauge before a client exists.
	BulkProvider string
	NewBulk      BulkFactory
	NewTransport TransportFactory
	Renderer     Renderer
	Quota        Quota
	From         Address
	Now          func() time.Time
	Log          zerolog.Logger

	bulkOnce sync.Once
	bulk     BulkSender
}

// Send delivers one message to to. On success the day's quota is incremented.
func (p *ProviderPair) Send(ctx context.Context, to string, vars map[string]any, subject string) (Outcome, error) {
	if bulk := p.bulkSender(); bulk != nil {
		msg := p.message(to, vars, subject)
		if err := bulk.SendBatch(ctx, msg); err != nil {
			metrics.IncSend(bulk.Name(), "failed")
			return NotAttempted, appErrors.NewDeliveryError(bulk.Name(), err)
		}
		metrics.IncSend(bulk.Name(), "delivered")
		return Delivered, p.countDelivery(ctx)
	}
	return p.sendDirect(ctx, to, vars, subject)
}

func (p *ProviderPair) sendDirect(ctx context.Context, to string, vars map[string]any, subject string) (Outcome, error) {
	if p.NewTransport == nil {
		metrics.IncSend("none", "not_attempted")
		return NotAttempted, nil
	}
	transport, err := p.NewTransport()
	if err != nil {
		if errors.Is(err, ErrTransportUnavailable) {
			p.Log.Warn().Msg("no delivery provider configured, message not attempted")
			metrics.IncSend("none", "not_attempted")
			return NotAttempted, nil
		}
		return NotAttempted, appErrors.NewDeliveryError("transport", err)
	}

	msg := p.message(to, vars, subject)
	if err := transport.Send(ctx, msg); err != nil {
		metrics.IncSend(transport.Name(), "failed")
		return NotAttempted, appErrors.NewDeliveryError(transport.Name(), err)
	}
	metrics.IncSend(transport.Name(), "delivered")
	return Delivered, p.countDelivery(ctx)
}

// bulkSender builds the bulk client once per pair; nil means unavailable.
func (p *ProviderPair) bulkSender() BulkSender {
	if !p.UseBulk || p.NewBulk == nil {
		return nil
	}
	p.bulkOnce.Do(func() {
		sender, err := p.NewBulk()
		switch {
		case err == nil:
			p.bulk = sender
			metrics.SetBulkAvailable(sender.Name(), true)
			p.Log.Info().Str("provider", sender.Name()).Msg("bulk provider available")
		case errors.Is(err, ErrBulkUnavailable):
			metrics.SetBulkAvailable(p.BulkProvider, false)
			p.Log.Warn().Str("provider", p.BulkProvider).Msg("bulk provider credentials missing, using direct transport")
		default:
			metrics.SetBulkAvailable(p.BulkProvider, false)
			p.Log.Warn().Err(err).Str("provider", p.BulkProvider).Msg("bulk provider failed to initialise, using direct transport")
		}
	})
	return p.bulk
}

func (p *ProviderPair) message(to string, vars map[string]any, subject string) *Message {
	return &Message{
		From:      p.From,
		To:        to,
		Subject:   subject,
		HTML:      p.Renderer.Render(vars),
		Variables: vars,
	}
}

// countDelivery runs after the provider accepted the message; its error is a
// store failure, not a delivery failure.
func (p *ProviderPair) countDelivery(ctx context.Context) error {
	if p.Quota == nil {
		return nil
	}
	if err := p.Quota.Increment(ctx, p.now()); err != nil {
		return fmt.Errorf("count delivery: %w", err)
	}
	return nil
}

func (p *ProviderPair) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}
