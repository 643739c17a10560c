package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"
)

// ErrInvalidAddress marks a message that can never be delivered, so the
// dispatcher does not retry it.
var ErrInvalidAddress = errors.New("invalid mail address")

type Mailer interface {
	Deliver(ctx context.Context, to, subject, body string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type SMTPMailer struct {
	from string
	send func(ctx context.Context, msg *mail.Msg) error
}

// NewSMTPMailer sends as cfg.From, or as cfg.User when From is empty. PLAIN
// auth is only used when a user is configured.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	if err := mail.NewMsg().From(from); err != nil {
		return nil, fmt.Errorf("notify: %w: sender %q: %w", ErrInvalidAddress, from, err)
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: failed to configure smtp client: %w", err)
	}

	return &SMTPMailer{
		from: from,
		send: func(ctx context.Context, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}, nil
}

func (m *SMTPMailer) Deliver(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := m.compose(to, subject, body)
	if err != nil {
		return err
	}

	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("notify: smtp delivery to %s failed: %w", to, err)
	}
	return nil
}

func (m *SMTPMailer) compose(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("notify: %w: sender %q: %w", ErrInvalidAddress, m.from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("notify: %w: recipient %q: %w", ErrInvalidAddress, to, err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, body)
	return msg, nil
}

// LogMailer only writes messages to the log. Used when no SMTP host is set.
type LogMailer struct{}

func (LogMailer) Deliver(_ context.Context, to, subject, _ string) error {
	log.Info().Str("to", to).Str("subject", subject).Msg("notify: mail delivery disabled, message logged")
	return nil
}
