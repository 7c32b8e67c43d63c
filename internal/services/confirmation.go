package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/serenityskeys/backend/internal/calendar"
	"github.com/serenityskeys/backend/internal/mailer"
	"github.com/serenityskeys/backend/internal/models"
	"github.com/serenityskeys/backend/internal/telemetry"
)

type confirmationTarget struct {
	session models.Session
	student models.Student
	parent  *models.Parent
}

func (s *Service) loadConfirmationTarget(ctx context.Context, sessionID, studentID uint) (confirmationTarget, error) {
	var t confirmationTarget
	db := s.db.WithContext(ctx)
	if err := db.First(&t.session, sessionID).Error; err != nil {
		return t, notFoundOr(err, "session", sessionID)
	}
	if err := db.First(&t.student, studentID).Error; err != nil {
		return t, notFoundOr(err, "student", studentID)
	}
	if t.student.ParentID != nil {
		var p models.Parent
		if err := db.First(&p, *t.student.ParentID).Error; err == nil {
			t.parent = &p
		}
	}
	return t, nil
}

// deliverConfirmation is the best-effort path used after payment. Nothing
// here is returned to the caller; failures are logged.
func (s *Service) deliverConfirmation(ctx context.Context, sessionID, studentID uint, addAttendee bool) {
	t, err := s.loadConfirmationTarget(ctx, sessionID, studentID)
	if err != nil {
		s.log.Warn("confirmation_target_missing", zap.Uint("session_id", sessionID), zap.Uint("student_id", studentID), zap.Error(err))
		return
	}
	if t.parent == nil || t.parent.Email == "" {
		s.log.Info("confirmation_skipped_no_parent_email", zap.Uint("student_id", studentID))
		return
	}

	if addAttendee && t.session.CalendarEventID != nil && *t.session.CalendarEventID != "" {
		cctx, cancel := context.WithTimeout(ctx, externalTimeout)
		err := s.calendar.AddAttendee(cctx, *t.session.CalendarEventID, t.parent.Email)
		cancel()
		if err != nil {
			s.log.Warn("calendar_attendee_failed", zap.Uint("session_id", sessionID), zap.Error(err))
		}
	}

	if err := s.sendConfirmation(ctx, t); err != nil {
		s.log.Warn("confirmation_email_failed", zap.Uint("session_id", sessionID), zap.Uint("student_id", studentID), zap.Error(err))
	}
}

// ResendConfirmation re-sends the confirmation email without touching payment state.
func (s *Service) ResendConfirmation(ctx context.Context, sessionID, studentID uint) error {
	t, err := s.loadConfirmationTarget(ctx, sessionID, studentID)
	if e, ok := AsError(err); err != nil && (!ok || e.Kind != KindNotFound) {
		return err
	}
	if err != nil || t.parent == nil || t.parent.Email == "" {
		return Validation("MISSING_DATA", "Missing data").WithDetails(map[string]any{
			"session_id": sessionID,
			"student_id": studentID,
		})
	}
	if err := s.sendConfirmation(ctx, t); err != nil {
		return Dependency("Failed to send confirmation email", err)
	}
	return nil
}

func (s *Service) sendConfirmation(ctx context.Context, t confirmationTarget) error {
	loc := s.loc()
	link := calendar.PlaceholderLink
	if t.session.MeetLink != nil && *t.session.MeetLink != "" {
		link = *t.session.MeetLink
	}

	ics := calendar.BuildICS(calendar.Invite{
		UID:         fmt.Sprintf("sk-%d-%d", t.session.ID, t.student.ID),
		Summary:     EventTitle(t.session.Course),
		Start:       t.session.StartTS,
		End:         t.session.EndTS,
		Location:    loc,
		MeetingLink: link,
	})
	body, err := mailer.RenderConfirmation(mailer.Confirmation{
		ParentName:   t.parent.Name,
		StudentName:  t.student.Name,
		When:         t.session.StartTS.In(loc),
		MeetingLink:  link,
		LaunchpadURL: s.LaunchpadURL(t.session.ID, t.student.ID),
		ICSLink:      calendar.DataURI(ics),
	})
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, externalTimeout)
	defer cancel()
	err = s.mail.Send(cctx, mailer.Message{
		To:      []string{t.parent.Email},
		Subject: mailer.ConfirmationSubject,
		HTML:    body,
	})
	telemetry.Emails.WithLabelValues("confirmation", telemetry.Result(err)).Inc()
	if err != nil {
		return err
	}
	s.log.Info("confirmation_email_sent", zap.Uint("session_id", t.session.ID), zap.Uint("student_id", t.student.ID))
	return nil
}

// LaunchpadURL links the landing page for a booked session.
func (s *Service) LaunchpadURL(sessionID, studentID uint) string {
	q := url.Values{}
	q.Set("session_id", strconv.FormatUint(uint64(sessionID), 10))
	q.Set("student_id", strconv.FormatUint(uint64(studentID), 10))
	return s.cfg.LaunchpadBaseURL + "?" + q.Encode()
}
