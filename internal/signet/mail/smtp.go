package mail

import (
	"context"
	"fmt"
	"log/slog"

	gomail "github.com/go-mail/mail"
)

// SMTPConfig carries the connection settings for the SMTP sender.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// SMTPSender delivers one-time codes over SMTP.
type SMTPSender struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger}
}

func (s *SMTPSender) SendCode(ctx context.Context, to, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Your signing verification code")
	m.SetBody("text/plain", fmt.Sprintf(
		"Your one-time verification code is %s.\n\nIt expires shortly and can be used once.", code))

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	if err := d.DialAndSend(m); err != nil {
		// The code itself never goes to the logs.
		s.logger.Error("failed to send verification code", "to", to, "error", err)
		return fmt.Errorf("mail: failed to send code: %w", err)
	}

	s.logger.Debug("verification code sent", "to", to)
	return nil
}
