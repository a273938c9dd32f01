package delivery

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGrid sends one personalization per batch; merge variables travel as custom args.
type SendGrid struct {
	client *sendgrid.Client
}

// NewSendGrid returns ErrBulkUnavailable when the API key is missing.
func NewSendGrid(apiKey string) (*SendGrid, error) {
	if apiKey == "" {
		return nil, ErrBulkUnavailable
	}
	return &SendGrid{client: sendgrid.NewSendClient(apiKey)}, nil
}

func (s *SendGrid) Name() string {
	return "sendgrid"
}

func (s *SendGrid) SendBatch(ctx context.Context, msg *Message) error {
	response, err := s.client.SendWithContext(ctx, buildSendGridMail(msg))
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid api error (status %d): %s", response.StatusCode, response.Body)
	}
	return nil
}

func buildSendGridMail(msg *Message) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(msg.From.Name, msg.From.Email))
	m.Subject = msg.Subject
	m.AddContent(mail.NewContent("text/html", msg.HTML))

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", msg.To))
	for key, value := range msg.Variables {
		p.SetCustomArg(key, fmt.Sprint(value))
	}
	m.AddPersonalizations(p)
	return m
}

var _ BulkSender = (*SendGrid)(nil)
