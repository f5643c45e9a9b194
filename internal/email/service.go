package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/waba-sync/internal/config"
)

// Service sends operational alert mail. Only quality alerts use it today.
type Service interface {
	SendAlert(ctx context.Context, subject, body string) error
}

type service struct {
	cfg    config.EmailConfig
	dialer *gomail.Dialer
}

func NewService(cfg config.EmailConfig) Service {
	return &service{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (s *service) SendAlert(_ context.Context, subject, body string) error {
	if !s.cfg.Enabled || s.cfg.AlertTo == "" {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", s.cfg.AlertTo)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send alert mail: %w", err)
	}
	return nil
}

// Noop returns a service that drops all mail, for tests and for setups
// without SMTP configured.
func Noop() Service {
	return noop{}
}

type noop struct{}

func (noop) SendAlert(context.Context, string, string) error { return nil }
