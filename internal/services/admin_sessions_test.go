package services

import (
	"context"
	"testing"
	"time"

	"github.com/serenityskeys/backend/internal/models"
)

func TestParseTimestamp(t *testing.T) {
	loc := chicago(t)
	cases := []struct {
		in   string
		want string
	}{
		{"2025-03-01T09:00:00", "2025-03-01T09:00:00-06:00"},
		{"2025-03-01 09:00", "2025-03-01T09:00:00-06:00"},
		{"2025-03-01T15:00:00Z", "2025-03-01T09:00:00-06:00"},
		{"2025-07-01T10:00:00-04:00", "2025-07-01T09:00:00-05:00"},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in, loc)
		if err != nil {
			t.Errorf("%s: %v", tc.in, err)
			continue
		}
		if s := got.Format(time.RFC3339); s != tc.want {
			t.Errorf("%s: want %s, got %s", tc.in, tc.want, s)
		}
	}
	if _, err := ParseTimestamp("next tuesday", loc); err == nil {
		t.Error("free text should be rejected")
	}
}

func TestCreateSessionNaiveTimestamp(t *testing.T) {
	env := newTestEnv(t)
	start, _ := ParseTimestamp("2025-03-01T09:00:00", env.loc)
	end, _ := ParseTimestamp("2025-03-01T09:45:00", env.loc)

	view, err := env.svc.CreateSession(context.Background(), CreateSessionInput{Course: "group:6-8", StartTS: start, EndTS: end})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if got := view.StartTS.Format(time.RFC3339); got != "2025-03-01T09:00:00-06:00" {
		t.Errorf("start_ts: %s", got)
	}
	if view.Capacity != 4 || view.SeatsAvailable != 4 {
		t.Errorf("default capacity: %d/%d", view.Capacity, view.SeatsAvailable)
	}
	if view.Mode != "remote" || view.Location != "Google Meet" || view.Status != models.SessionScheduled {
		t.Errorf("defaults: %+v", view)
	}
	if view.MeetLink != nil {
		t.Error("meet link should start unset")
	}

	var stored models.Session
	env.db.First(&stored, view.ID)
	if !stored.StartTS.Equal(time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)) {
		t.Errorf("stored instant: %v", stored.StartTS)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	env := newTestEnv(t)
	start := time.Now().Add(time.Hour)
	zero := 0

	_, err := env.svc.CreateSession(context.Background(), CreateSessionInput{Course: "c", StartTS: start, EndTS: start.Add(time.Hour), Capacity: &zero})
	wantCode(t, err, KindValidation, "INVALID_CAPACITY")

	_, err = env.svc.CreateSession(context.Background(), CreateSessionInput{Course: "c", StartTS: start, EndTS: start})
	wantCode(t, err, KindValidation, "INVALID_TIME_RANGE")

	_, err = env.svc.CreateSession(context.Background(), CreateSessionInput{Course: " ", StartTS: start, EndTS: start.Add(time.Hour)})
	wantCode(t, err, KindValidation, "INVALID_COURSE")
}

func TestUpcomingSessions(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	env.svc.now = func() time.Time { return now }

	env.session(t, "past", now.Add(-time.Hour), 4)
	second := env.session(t, "b", now.Add(48*time.Hour), 4)
	first := env.session(t, "a", now.Add(time.Hour), 2)
	env.enroll(t, first.ID, env.student(t, "kid").ID)

	got, err := env.svc.UpcomingSessions(context.Background())
	if err != nil {
		t.Fatalf("UpcomingSessions: %v", err)
	}
	if len(got) != 2 || got[0].ID != first.ID || got[1].ID != second.ID {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].SeatsAvailable != 1 {
		t.Errorf("seats: %d", got[0].SeatsAvailable)
	}
}
