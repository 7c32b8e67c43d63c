package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/serenityskeys/backend/internal/mailer"
	"github.com/serenityskeys/backend/internal/telemetry"
)

type ContactInput struct {
	Name    string
	Email   string
	Message string
}

// SubmitContact forwards a contact form message to the configured inbox.
func (s *Service) SubmitContact(ctx context.Context, in ContactInput) error {
	to := s.cfg.ContactRecipient()
	if to == "" {
		return MissingConfig("CONTACT_INBOX_NOT_CONFIGURED", "Contact inbox is not configured")
	}
	email, ok := NormEmail(in.Email)
	if !ok {
		return Validation("INVALID_EMAIL", "email is not a valid email address")
	}
	name := strings.TrimSpace(in.Name)

	body, err := mailer.RenderContact(name, email, strings.TrimSpace(in.Message))
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, externalTimeout)
	defer cancel()
	err = s.mail.Send(cctx, mailer.Message{
		To:      []string{to},
		Subject: "New contact message from " + name,
		HTML:    body,
		ReplyTo: email,
	})
	telemetry.Emails.WithLabelValues("contact", telemetry.Result(err)).Inc()
	if err != nil {
		return Dependency("Failed to deliver message", err)
	}
	s.log.Info("contact_message_received", zap.String("from", email))
	return nil
}
