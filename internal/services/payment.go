package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/serenityskeys/backend/internal/models"
	"github.com/serenityskeys/backend/internal/payments"
	"github.com/serenityskeys/backend/internal/telemetry"
)

// HandlePaymentEvent reconciles a payment webhook with its enrollment.
// It is safe to call repeatedly for the same event: the enrollment is
// found-or-created and its state is overwritten, never incremented.
// Malformed metadata is logged and ignored so the provider stops retrying.
func (s *Service) HandlePaymentEvent(ctx context.Context, evt payments.Event) error {
	if evt.Type != payments.EventCheckoutCompleted {
		telemetry.WebhookEvents.WithLabelValues(evt.Type, "ignored").Inc()
		s.log.Info("payment_event_ignored", zap.String("event_id", evt.ID), zap.String("type", evt.Type))
		return nil
	}

	sessionID, okSess := metaID(evt.Metadata, payments.MetaSessionID, payments.MetaEnrollmentSessionID)
	studentID, okStud := metaID(evt.Metadata, payments.MetaStudentID, payments.MetaEnrollmentStudentID)
	if !okSess || !okStud {
		telemetry.WebhookEvents.WithLabelValues(evt.Type, "missing_metadata").Inc()
		s.log.Warn("payment_event_missing_metadata", zap.String("event_id", evt.ID), zap.Any("metadata", evt.Metadata))
		return nil
	}
	username := firstMeta(evt.Metadata, payments.MetaTypingUsername, payments.MetaTypingUser)

	enrollmentID, err := s.markPaid(ctx, sessionID, studentID)
	if err != nil {
		if e, ok := AsError(err); ok && e.Kind == KindNotFound {
			telemetry.WebhookEvents.WithLabelValues(evt.Type, "unknown_reference").Inc()
			s.log.Warn("payment_event_unknown_reference", zap.String("event_id", evt.ID), zap.Error(err))
			return nil
		}
		telemetry.WebhookEvents.WithLabelValues(evt.Type, "error").Inc()
		return err
	}
	telemetry.WebhookEvents.WithLabelValues(evt.Type, "processed").Inc()
	s.log.Info("payment_completed",
		zap.String("event_id", evt.ID),
		zap.Uint("session_id", sessionID),
		zap.Uint("student_id", studentID),
		zap.Uint("enrollment_id", enrollmentID),
	)

	if username != "" {
		res := s.db.WithContext(ctx).Model(&models.Student{}).
			Where("id = ? AND (typing_username IS NULL OR typing_username <> ?)", studentID, username).
			Update("typing_username", username)
		if res.Error != nil {
			s.log.Warn("typing_username_not_saved", zap.Uint("student_id", studentID), zap.Error(res.Error))
		}
	}

	s.deliverConfirmation(ctx, sessionID, studentID, true)
	return nil
}

func (s *Service) markPaid(ctx context.Context, sessionID, studentID uint) (uint, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var enrollmentID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.Session{}, sessionID).Error; err != nil {
			return notFoundOr(err, "session", sessionID)
		}
		if err := tx.Select("id").First(&models.Student{}, studentID).Error; err != nil {
			return notFoundOr(err, "student", studentID)
		}

		var enr models.Enrollment
		err := tx.Where("session_id = ? AND student_id = ?", sessionID, studentID).First(&enr).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			enr = models.Enrollment{
				SessionID:     sessionID,
				StudentID:     studentID,
				Status:        models.EnrollmentConfirmed,
				PaymentStatus: models.PaymentPaid,
			}
			if err := tx.Create(&enr).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := tx.Model(&enr).Updates(map[string]any{
				"status":         models.EnrollmentConfirmed,
				"payment_status": models.PaymentPaid,
			}).Error; err != nil {
				return err
			}
		}
		enrollmentID = enr.ID
		return nil
	})
	return enrollmentID, err
}

func metaID(md map[string]string, keys ...string) (uint, bool) {
	v := firstMeta(md, keys...)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

func firstMeta(md map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(md[k]); v != "" {
			return v
		}
	}
	return ""
}
