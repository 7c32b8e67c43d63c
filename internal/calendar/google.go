package calendar

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Google talks to the Calendar v3 API with a service account.
type Google struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
}

func NewGoogle(ctx context.Context, credsBase64, calendarID string, loc *time.Location) (*Google, error) {
	creds, err := base64.StdEncoding.DecodeString(credsBase64)
	if err != nil {
		return nil, fmt.Errorf("calendar: decode service account: %w", err)
	}
	svc, err := gcal.NewService(ctx,
		option.WithCredentialsJSON(creds),
		option.WithScopes(gcal.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("calendar: new service: %w", err)
	}
	return &Google{svc: svc, calendarID: calendarID, loc: loc}, nil
}

func (g *Google) Name() string { return "google" }

func (g *Google) CreateMeeting(ctx context.Context, m Meeting) (string, string, error) {
	ev := &gcal.Event{
		Summary: m.Summary,
		Start:   &gcal.EventDateTime{DateTime: m.Start.In(g.loc).Format(time.RFC3339), TimeZone: g.loc.String()},
		End:     &gcal.EventDateTime{DateTime: m.End.In(g.loc).Format(time.RFC3339), TimeZone: g.loc.String()},
		ConferenceData: &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             fmt.Sprintf("serenitys-keys-%d", m.Start.Unix()),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}
	for _, email := range m.Attendees {
		if email != "" {
			ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: email})
		}
	}

	created, err := g.svc.Events.Insert(g.calendarID, ev).
		ConferenceDataVersion(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", "", fmt.Errorf("calendar: insert event: %w", err)
	}

	link := created.HangoutLink
	if link == "" && created.ConferenceData != nil {
		for _, ep := range created.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" && ep.Uri != "" {
				link = ep.Uri
				break
			}
		}
	}
	if link == "" {
		link = PlaceholderLink
	}
	return link, created.Id, nil
}

func (g *Google) AddAttendee(ctx context.Context, eventID, email string) error {
	if eventID == "" || email == "" {
		return errors.New("calendar: event id and email required")
	}
	ev, err := g.svc.Events.Get(g.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("calendar: get event: %w", err)
	}
	for _, a := range ev.Attendees {
		if a.Email == email {
			return nil
		}
	}
	patch := &gcal.Event{Attendees: append(ev.Attendees, &gcal.EventAttendee{Email: email})}
	if _, err := g.svc.Events.Patch(g.calendarID, eventID, patch).
		SendUpdates("all").
		Context(ctx).
		Do(); err != nil {
		return fmt.Errorf("calendar: patch attendees: %w", err)
	}
	return nil
}
