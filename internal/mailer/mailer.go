// Package mailer sends transactional email.
package mailer

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/serenityskeys/backend/internal/config"
)

const defaultFrom = "no-reply@serenityskeys.com"

type Message struct {
	To      []string
	Subject string
	HTML    string
	ReplyTo string
}

func (m Message) validate() error {
	if len(m.To) == 0 {
		return errors.New("mailer: no recipients")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("mailer: empty subject")
	}
	return nil
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// New returns the Resend client when an API key is configured and a
// logging mailer otherwise.
func New(cfg config.Config, log *zap.Logger) Mailer {
	if !cfg.MailConfigured() {
		return &LogMailer{log: log}
	}
	from := cfg.FromEmail
	if from == "" {
		from = defaultFrom
	}
	return NewResend(cfg.ResendAPIKey, from)
}

// LogMailer writes messages to the log instead of delivering them.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer { return &LogMailer{log: log} }

func (l *LogMailer) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	preview := msg.HTML
	if len(preview) > 500 {
		preview = preview[:500]
	}
	l.log.Info("dev_email",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("preview", preview),
	)
	return nil
}

func (l *LogMailer) Name() string { return "log" }
