package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/serenityskeys/backend/internal/calendar"
	"github.com/serenityskeys/backend/internal/models"
	"github.com/serenityskeys/backend/internal/payments"
	"github.com/serenityskeys/backend/internal/telemetry"
)

type CheckoutInput struct {
	SessionID      uint
	StudentID      uint
	AmountCents    int64
	SuccessURL     string
	CancelURL      string
	TypingUsername string
}

type CheckoutResult struct {
	CheckoutURL  string `json:"checkout_url"`
	EnrollmentID uint   `json:"enrollment_id"`
}

// Checkout reserves a seat for a student and returns a payment handle.
// Calling it again for the same pair returns the same enrollment.
//
// Bookings for one session are serialized by an in-process lock held for the
// whole call. Calendar and payment requests run outside any transaction; the
// enrollment is written in one short transaction that re-reads the session
// with a row lock (SELECT ... FOR UPDATE where the dialect supports it).
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (CheckoutResult, error) {
	unlock := s.locks.Lock(in.SessionID)
	defer unlock()

	res, err := s.checkout(ctx, in)
	if err != nil {
		telemetry.Bookings.WithLabelValues(bookingOutcome(err)).Inc()
		return CheckoutResult{}, err
	}

	telemetry.Bookings.WithLabelValues("created").Inc()
	s.log.Info("booking_checkout_created",
		zap.Uint("session_id", in.SessionID),
		zap.Uint("student_id", in.StudentID),
		zap.Uint("enrollment_id", res.EnrollmentID),
	)
	return res, nil
}

func (s *Service) checkout(ctx context.Context, in CheckoutInput) (CheckoutResult, error) {
	db := s.db.WithContext(ctx)

	sess, err := openSession(db, in.SessionID)
	if err != nil {
		return CheckoutResult{}, err
	}
	var student models.Student
	if err := db.First(&student, in.StudentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CheckoutResult{}, Validation("STUDENT_NOT_FOUND", "Student not found").
				WithDetails(map[string]any{"student_id": in.StudentID})
		}
		return CheckoutResult{}, err
	}
	if err := checkSeat(db, sess, student.ID); err != nil {
		return CheckoutResult{}, err
	}

	var link, eventID string
	if needsMeeting(sess) {
		link, eventID = s.createMeeting(ctx, sess)
	}

	username := strings.TrimSpace(in.TypingUsername)
	var enr models.Enrollment
	err = db.Transaction(func(tx *gorm.DB) error {
		locked, err := openSession(tx.Clauses(clause.Locking{Strength: "UPDATE"}), sess.ID)
		if err != nil {
			return err
		}
		if username != "" && (student.TypingUsername == nil || *student.TypingUsername != username) {
			if err := tx.Model(&student).Update("typing_username", username).Error; err != nil {
				return err
			}
		}
		if enr, err = reserveSeat(tx, locked, student.ID); err != nil {
			return err
		}
		if link != "" && needsMeeting(locked) {
			return saveMeeting(tx, &locked, link, eventID)
		}
		return nil
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	req := payments.CheckoutRequest{
		SessionID:      sess.ID,
		StudentID:      student.ID,
		EnrollmentID:   enr.ID,
		AmountCents:    in.AmountCents,
		SuccessURL:     in.SuccessURL,
		CancelURL:      in.CancelURL,
		TypingUsername: username,
	}
	return CheckoutResult{CheckoutURL: s.checkoutURL(ctx, req), EnrollmentID: enr.ID}, nil
}

// openSession loads a session that is still accepting bookings.
func openSession(tx *gorm.DB, id uint) (models.Session, error) {
	var sess models.Session
	if err := tx.First(&sess, id).Error; err != nil {
		return sess, notFoundOr(err, "session", id)
	}
	if sess.Status != models.SessionScheduled {
		return sess, Conflict("SESSION_NOT_OPEN", "Session is not open for booking").
			WithDetails(map[string]any{"status": sess.Status})
	}
	return sess, nil
}

// checkSeat rejects a full session before any external call is made.
// reserveSeat repeats the check under the row lock.
func checkSeat(tx *gorm.DB, sess models.Session, studentID uint) error {
	var mine int64
	if err := tx.Model(&models.Enrollment{}).
		Where("session_id = ? AND student_id = ?", sess.ID, studentID).
		Count(&mine).Error; err != nil {
		return err
	}
	// An existing enrollment wins over the capacity check, so a retried
	// checkout for a now-full session returns the same enrollment instead of 409.
	if mine > 0 {
		return nil
	}
	var taken int64
	if err := tx.Model(&models.Enrollment{}).Where("session_id = ?", sess.ID).Count(&taken).Error; err != nil {
		return err
	}
	if taken >= int64(sess.Capacity) {
		return sessionFull(sess, taken)
	}
	return nil
}

func sessionFull(sess models.Session, taken int64) error {
	return Conflict("SESSION_FULL", "Session is full").
		WithDetails(map[string]any{"capacity": sess.Capacity, "enrolled": taken})
}

// reserveSeat finds the student's enrollment or creates one if the session has room.
func reserveSeat(tx *gorm.DB, sess models.Session, studentID uint) (models.Enrollment, error) {
	var enr models.Enrollment
	err := tx.Where("session_id = ? AND student_id = ?", sess.ID, studentID).First(&enr).Error
	// Returned before counting seats: re-booking is idempotent even once the
	// session has filled up.
	if err == nil {
		return enr, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return enr, err
	}

	var taken int64
	if err := tx.Model(&models.Enrollment{}).Where("session_id = ?", sess.ID).Count(&taken).Error; err != nil {
		return enr, err
	}
	if taken >= int64(sess.Capacity) {
		return enr, sessionFull(sess, taken)
	}

	enr = models.Enrollment{
		SessionID:     sess.ID,
		StudentID:     studentID,
		Status:        models.EnrollmentPending,
		PaymentStatus: models.PaymentPending,
	}
	if err := tx.Create(&enr).Error; err != nil {
		if IsDuplicate(err) {
			return enr, Conflict("ENROLLMENT_EXISTS", "Enrollment already exists")
		}
		return enr, err
	}
	return enr, nil
}

func needsMeeting(sess models.Session) bool {
	return sess.MeetLink == nil || sess.CalendarEventID == nil
}

// createMeeting asks the calendar for a meeting link. Failures fall back to
// the placeholder link and never fail the booking.
func (s *Service) createMeeting(ctx context.Context, sess models.Session) (link, eventID string) {
	cctx, cancel := context.WithTimeout(ctx, externalTimeout)
	defer cancel()

	link, eventID, err := s.calendar.CreateMeeting(cctx, calendar.Meeting{
		Summary: EventTitle(sess.Course),
		Start:   sess.StartTS,
		End:     sess.EndTS,
	})
	if err != nil || link == "" {
		telemetry.Fallbacks.WithLabelValues("calendar").Inc()
		s.log.Warn("calendar_event_failed", zap.Uint("session_id", sess.ID), zap.Error(err))
		return calendar.PlaceholderLink, ""
	}
	return link, eventID
}

func saveMeeting(tx *gorm.DB, sess *models.Session, link, eventID string) error {
	updates := map[string]any{"meet_link": link}
	sess.MeetLink = &link
	if eventID != "" {
		updates["calendar_event_id"] = eventID
		sess.CalendarEventID = &eventID
	}
	return tx.Model(sess).Updates(updates).Error
}

func (s *Service) checkoutURL(ctx context.Context, req payments.CheckoutRequest) string {
	cctx, cancel := context.WithTimeout(ctx, externalTimeout)
	defer cancel()

	u, err := s.payments.CreateCheckout(cctx, req)
	if err != nil || u == "" {
		telemetry.Fallbacks.WithLabelValues("payments").Inc()
		s.log.Warn("checkout_provider_failed",
			zap.Uint("enrollment_id", req.EnrollmentID),
			zap.String("provider", s.payments.Name()),
			zap.Error(err),
		)
		return payments.PlaceholderURL(req)
	}
	return u
}

// EventTitle is the calendar and invite title for a course.
func EventTitle(course string) string { return "Serenity's Keys - " + course }

func bookingOutcome(err error) string {
	if e, ok := AsError(err); ok {
		return strings.ToLower(e.Code)
	}
	return "error"
}
