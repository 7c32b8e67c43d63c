// Package calendar creates meeting events and builds iCalendar invites.
package calendar

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/serenityskeys/backend/internal/config"
)

// PlaceholderLink is used whenever no real meeting link can be obtained.
const PlaceholderLink = "https://meet.google.com/dev-placeholder"

// Meeting describes an event to create.
type Meeting struct {
	Summary   string
	Start     time.Time
	End       time.Time
	Attendees []string
}

// Provider creates meeting events and manages their attendees.
type Provider interface {
	// CreateMeeting returns the meeting link and the provider's event id.
	CreateMeeting(ctx context.Context, m Meeting) (link, eventID string, err error)
	AddAttendee(ctx context.Context, eventID, email string) error
	Name() string
}

// New returns the Google provider when credentials are configured and the
// placeholder otherwise.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) Provider {
	if !cfg.CalendarConfigured() {
		return Placeholder{}
	}
	g, err := NewGoogle(ctx, cfg.GoogleServiceAccountJSONBase64, cfg.GoogleCalendarID, cfg.Location)
	if err != nil {
		log.Warn("google calendar unavailable, using placeholder", zap.Error(err))
		return Placeholder{}
	}
	return g
}

// Placeholder never calls out; it always yields PlaceholderLink and no event id.
type Placeholder struct{}

func (Placeholder) CreateMeeting(context.Context, Meeting) (string, string, error) {
	return PlaceholderLink, "", nil
}

func (Placeholder) AddAttendee(_ context.Context, eventID, _ string) error {
	if eventID == "" {
		return nil
	}
	return fmt.Errorf("calendar: not configured, cannot update event %s", eventID)
}

func (Placeholder) Name() string { return "placeholder" }
