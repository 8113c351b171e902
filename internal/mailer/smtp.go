package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"teamrelay/internal/config"

	"github.com/wneessen/go-mail"
	"gitlab.com/nevasik7/alerting/logger"
)

// SMTPTransport sends over SMTPS (implicit TLS), one connection per message
type SMTPTransport struct {
	log    logger.Logger
	client *mail.Client
	from   string
}

func NewSMTPTransport(log logger.Logger, cfg *config.MailConfig) (*SMTPTransport, error) {
	if cfg == nil {
		return nil, errors.New("mail config is required")
	}
	if cfg.Host == "" {
		return nil, errors.New("mail host is required")
	}

	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSConfig(&tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec
			MinVersion:         tls.VersionTLS12,
		}),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &SMTPTransport{log: log, client: client, from: from}, nil
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	m, err := buildMsg(t.from, msg)
	if err != nil {
		return err
	}

	if err = t.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}

	t.log.Debugf("SMTP accepted message to=%s subject=%q", msg.To, msg.Subject)
	return nil
}

func buildMsg(from string, msg Message) (*mail.Msg, error) {
	if msg.To == "" {
		return nil, ErrEmptyRecipient
	}

	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", from, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()

	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)
	default:
		m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	}

	return m, nil
}
