package delivery

import (
	"context"
	"fmt"

	"github.com/mailgun/mailgun-go/v4"
)

// Mailgun sends single-recipient batches with recipient variables.
type Mailgun struct {
	client mailgun.Mailgun
}

// NewMailgun returns ErrBulkUnavailable when the domain or private key is missing.
func NewMailgun(domain, apiKey, apiBase string) (*Mailgun, error) {
	if domain == "" || apiKey == "" {
		return nil, ErrBulkUnavailable
	}

	client := mailgun.NewMailgun(domain, apiKey)
	// Set base URL if provided (for EU customers)
	if apiBase != "" {
		client.SetAPIBase(apiBase)
	}
	return &Mailgun{client: client}, nil
}

func (m *Mailgun) Name() string {
	return "mailgun"
}

func (m *Mailgun) SendBatch(ctx context.Context, msg *Message) error {
	message := mailgun.NewMessage(msg.From.String(), msg.Subject, "")
	message.SetHTML(msg.HTML)
	if err := message.AddRecipientAndVariables(msg.To, msg.Variables); err != nil {
		return fmt.Errorf("add recipient: %w", err)
	}

	if _, _, err := m.client.Send(ctx, message); err != nil {
		return err
	}
	return nil
}

var _ BulkSender = (*Mailgun)(nil)
