package email

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/benrobertsonio/marcoswift.com/internal/config"
)

// SMTPSender delivers messages through an authenticated SMTP relay.
type SMTPSender struct {
	host string
	port int
	user string
	pass string
}

func NewSMTPSender(cfg *config.Config) *SMTPSender {
	return &SMTPSender{
		host: cfg.SMTPHost,
		port: cfg.SMTPPort,
		user: cfg.SMTPUser,
		pass: cfg.SMTPPass,
	}
}

func (s *SMTPSender) Name() string {
	return "smtp"
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	client, err := mail.NewClient(
		s.host,
		mail.WithPort(s.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.user),
		mail.WithPassword(s.pass),
	)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}

	msg, err := buildMsg(m)
	if err != nil {
		return err
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func buildMsg(m Message) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.From); err != nil {
		return nil, fmt.Errorf("failed to set from: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("failed to set to: %w", err)
	}

	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextHTML, m.HTML)

	return msg, nil
}
