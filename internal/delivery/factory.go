package delivery

import (
	"github.com/rs/zerolog"

	"github.com/unclebandit/campaign-dispatch/internal/config"
)

// NewProviderPair wires the pair from configuration.
func NewProviderPair(cfg config.Config, renderer Renderer, quota Quota, log zerolog.Logger) *ProviderPair {
	return &ProviderPair{
		UseBulk:      cfg.EmailProvider != config.ProviderSMTP,
		BulkProvider: cfg.EmailProvider,
		NewBulk:      BulkFactoryFor(cfg),
		NewTransport: SMTPFactory(cfg),
		Renderer:     renderer,
		Quota:        quota,
		From:         Address{Name: cfg.SenderName, Email: cfg.SenderAddress},
		Log:          log.With().Str("component", "delivery").Logger(),
	}
}

// BulkFactoryFor returns nil when the selected provider is not a bulk provider.
func BulkFactoryFor(cfg config.Config) BulkFactory {
	switch cfg.EmailProvider {
	case config.ProviderMailgun:
		return func() (BulkSender, error) {
			return NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunAPIBase)
		}
	case config.ProviderSendGrid:
		return func() (BulkSender, error) {
			return NewSendGrid(cfg.SendGridAPIKey)
		}
	default:
		return nil
	}
}

func SMTPFactory(cfg config.Config) TransportFactory {
	return func() (Transport, error) {
		return NewSMTPTransport(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	}
}
