package delivery

import (
	"context"

	"gopkg.in/gomail.v2"
)

// Dialer is the part of gomail.Dialer the transport needs.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPTransport sends one message per connection.
type SMTPTransport struct {
	dialer Dialer
}

// NewSMTPTransport returns ErrTransportUnavailable when no host is configured.
func NewSMTPTransport(host string, port int, username, password string) (*SMTPTransport, error) {
	if host == "" {
		return nil, ErrTransportUnavailable
	}
	return &SMTPTransport{dialer: gomail.NewDialer(host, port, username, password)}, nil
}

func (s *SMTPTransport) Name() string {
	return "smtp"
}

func (s *SMTPTransport) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.dialer.DialAndSend(buildSMTPMessage(msg))
}

func buildSMTPMessage(msg *Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.From.Email, msg.From.Name)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	return m
}

var _ Transport = (*SMTPTransport)(nil)
