package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/serenityskeys/backend/internal/models"
)

const defaultAvailabilityDays = 30

// SessionView is a session as shown to clients, in the configured timezone.
type SessionView struct {
	ID             uint      `json:"id"`
	Course         string    `json:"course"`
	StartTS        time.Time `json:"start_ts"`
	EndTS          time.Time `json:"end_ts"`
	Mode           string    `json:"mode"`
	Capacity       int       `json:"capacity"`
	Location       string    `json:"location"`
	MeetLink       *string   `json:"meet_link"`
	Status         string    `json:"status"`
	SeatsAvailable int       `json:"seats_available"`
}

type AvailabilityQuery struct {
	Course    string
	StartDate *time.Time // calendar dates; only Y/M/D are used
	EndDate   *time.Time
}

// SeatsAvailable is capacity minus enrollments, floored at zero.
func SeatsAvailable(capacity int, enrolled int64) int {
	n := capacity - int(enrolled)
	if n < 0 {
		return 0
	}
	return n
}

func (s *Service) view(sess models.Session, enrolled int64) SessionView {
	return SessionView{
		ID:             sess.ID,
		Course:         sess.Course,
		StartTS:        sess.StartTS.In(s.loc()),
		EndTS:          sess.EndTS.In(s.loc()),
		Mode:           sess.Mode,
		Capacity:       sess.Capacity,
		Location:       sess.Location,
		MeetLink:       sess.MeetLink,
		Status:         sess.Status,
		SeatsAvailable: SeatsAvailable(sess.Capacity, enrolled),
	}
}

// Availability lists scheduled sessions starting within the inclusive date
// range, defaulting to today through +30 days in the configured timezone.
func (s *Service) Availability(ctx context.Context, q AvailabilityQuery) ([]SessionView, error) {
	loc := s.loc()
	today := s.now().In(loc)

	from := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	if q.StartDate != nil {
		from = time.Date(q.StartDate.Year(), q.StartDate.Month(), q.StartDate.Day(), 0, 0, 0, 0, loc)
	}
	to := from.AddDate(0, 0, defaultAvailabilityDays)
	if q.EndDate != nil {
		to = time.Date(q.EndDate.Year(), q.EndDate.Month(), q.EndDate.Day(), 0, 0, 0, 0, loc)
	}
	if from.After(to) {
		return nil, Validation("INVALID_DATE_RANGE", "start_date must be on or before end_date")
	}
	// inclusive end-of-day
	toEnd := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, loc)

	tx := s.db.WithContext(ctx).
		Where("status = ?", models.SessionScheduled).
		Where("start_ts BETWEEN ? AND ?", dbTime(from), dbTime(toEnd))
	if q.Course != "" {
		tx = tx.Where("course = ?", q.Course)
	}
	var sessions []models.Session
	if err := tx.Order("start_ts asc, id asc").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return s.withSeats(s.db.WithContext(ctx), sessions)
}

// GetSession returns a single session with its open seats.
func (s *Service) GetSession(ctx context.Context, id uint) (SessionView, error) {
	var sess models.Session
	if err := s.db.WithContext(ctx).First(&sess, id).Error; err != nil {
		return SessionView{}, notFoundOr(err, "session", id)
	}
	views, err := s.withSeats(s.db.WithContext(ctx), []models.Session{sess})
	if err != nil {
		return SessionView{}, err
	}
	return views[0], nil
}

// withSeats annotates sessions using a single GROUP BY over enrollments.
func (s *Service) withSeats(tx *gorm.DB, sessions []models.Session) ([]SessionView, error) {
	out := make([]SessionView, 0, len(sessions))
	if len(sessions) == 0 {
		return out, nil
	}
	counts, err := enrollmentCounts(tx, sessionIDs(sessions))
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		out = append(out, s.view(sess, counts[sess.ID]))
	}
	return out, nil
}

func sessionIDs(sessions []models.Session) []uint {
	ids := make([]uint, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.ID
	}
	return ids
}

func enrollmentCounts(tx *gorm.DB, ids []uint) (map[uint]int64, error) {
	type seatAgg struct {
		SessionID uint
		Taken     int64
	}
	var aggs []seatAgg
	if err := tx.Table("enrollments").
		Select("session_id, COUNT(*) AS taken").
		Where("session_id IN ?", ids).
		Group("session_id").
		Scan(&aggs).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]int64, len(aggs))
	for _, a := range aggs {
		out[a.SessionID] = a.Taken
	}
	return out, nil
}
