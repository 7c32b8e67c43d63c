package calendar

import (
	"net/url"
	"strings"
	"time"
)

// Invite is the data rendered into a single-event iCalendar document.
type Invite struct {
	UID         string
	Summary     string
	Start       time.Time
	End         time.Time
	Location    *time.Location
	MeetingLink string
}

const icsStamp = "20060102T150405"

// BuildICS renders a VCALENDAR with one VEVENT. Lines end in CRLF.
func BuildICS(in Invite) string {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	tzid := loc.String()
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//SerenitysKeys//EN",
		"BEGIN:VEVENT",
		"UID:" + escapeText(in.UID),
		"SUMMARY:" + escapeText(in.Summary),
		"DTSTART;TZID=" + tzid + ":" + in.Start.In(loc).Format(icsStamp),
		"DTEND;TZID=" + tzid + ":" + in.End.In(loc).Format(icsStamp),
		"DESCRIPTION:" + escapeText("Join: "+in.MeetingLink),
		"URL:" + in.MeetingLink,
		"END:VEVENT",
		"END:VCALENDAR",
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

// DataURI wraps an ICS document so it can be linked inline from an email.
func DataURI(ics string) string {
	return "data:text/calendar;charset=utf-8," + url.PathEscape(ics)
}

var textEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\n", `\n`)

func escapeText(s string) string { return textEscaper.Replace(s) }
