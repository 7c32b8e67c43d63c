package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/serenityskeys/backend/internal/models"
)

const (
	defaultCapacity = 4
	defaultMode     = "remote"
	defaultLocation = "Google Meet"
)

type CreateSessionInput struct {
	Course   string
	StartTS  time.Time
	EndTS    time.Time
	Mode     string
	Capacity *int
	Location string
}

// naiveLayouts are accepted for timestamps without a zone; the configured
// timezone is attached to them.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp reads an ISO-8601 timestamp. Values with an offset are
// converted to loc; naive values are interpreted in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, Validation("INVALID_TIMESTAMP", "Timestamp must be ISO-8601").
		WithDetails(map[string]any{"value": s})
}

// CreateSession stores a new scheduled session.
func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (SessionView, error) {
	capacity := defaultCapacity
	if in.Capacity != nil {
		capacity = *in.Capacity
	}
	if capacity < 1 {
		return SessionView{}, Validation("INVALID_CAPACITY", "capacity must be at least 1")
	}
	if strings.TrimSpace(in.Course) == "" {
		return SessionView{}, Validation("INVALID_COURSE", "course is required")
	}
	if !in.EndTS.After(in.StartTS) {
		return SessionView{}, Validation("INVALID_TIME_RANGE", "end_ts must be after start_ts")
	}

	sess := models.Session{
		Course:   strings.TrimSpace(in.Course),
		StartTS:  dbTime(in.StartTS),
		EndTS:    dbTime(in.EndTS),
		Mode:     firstNonEmpty(in.Mode, defaultMode),
		Capacity: capacity,
		Location: firstNonEmpty(in.Location, defaultLocation),
		Status:   models.SessionScheduled,
	}
	if err := s.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return SessionView{}, err
	}
	s.log.Info("session_created", zap.Uint("session_id", sess.ID), zap.String("course", sess.Course))
	return s.view(sess, 0), nil
}

// UpcomingSessions lists sessions starting after now, soonest first.
func (s *Service) UpcomingSessions(ctx context.Context) ([]SessionView, error) {
	db := s.db.WithContext(ctx)
	var sessions []models.Session
	if err := db.Where("start_ts > ?", dbTime(s.now())).Order("start_ts asc, id asc").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return s.withSeats(db, sessions)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
