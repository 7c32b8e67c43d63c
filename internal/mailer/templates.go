package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/yuin/goldmark"
)

const (
	ConfirmationSubject = "Serenity's Keys: Your session is confirmed"
	DigestSubject       = "Serenity's Keys - Weekly Update"
)

type Confirmation struct {
	ParentName   string
	StudentName  string
	When         time.Time // already in the display timezone
	MeetingLink  string
	LaunchpadURL string
	ICSLink      string
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<div style="font-family:system-ui,Arial,sans-serif;max-width:640px;margin:auto">
  <h2>You're booked!</h2>
  <p>Hi {{.Parent}},</p>
  <p>Your child <strong>{{.Student}}</strong> is confirmed for a Serenity's Keys session:</p>
  <ul>
    <li><strong>When:</strong> {{.When}}</li>
    <li><strong>Where:</strong> Google Meet</li>
  </ul>
  <p><a href="{{.MeetingLink}}" style="background:#0a7;color:#fff;padding:10px 14px;border-radius:6px;text-decoration:none">Join Google Meet</a></p>
  {{- if .ICSLink}}
  <p><a href="{{.ICSLink}}" style="color:#2563eb">Add to calendar</a></p>
  {{- end}}
  <p>Before class, open our Launchpad (Meet + Typing.com in one place):</p>
  <p><a href="{{.LaunchpadURL}}">{{.LaunchpadURL}}</a></p>
  <hr/>
  <p style="color:#666;font-size:13px">Tip: Please log in to Typing.com beforehand so it opens instantly from the Launchpad.</p>
</div>`))

// RenderConfirmation builds the booking confirmation body.
func RenderConfirmation(c Confirmation) (string, error) {
	parent := c.ParentName
	if parent == "" {
		parent = "there"
	}
	student := c.StudentName
	if student == "" {
		student = "your student"
	}
	data := map[string]any{
		"Parent":       parent,
		"Student":      student,
		"When":         c.When.Format("Monday, January 02 @ 03:04 PM"),
		"MeetingLink":  template.URL(c.MeetingLink),
		"LaunchpadURL": template.URL(c.LaunchpadURL),
		"ICSLink":      template.URL(c.ICSLink),
	}
	var buf bytes.Buffer
	if err := confirmationTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("mailer: render confirmation: %w", err)
	}
	return buf.String(), nil
}

var contactTmpl = template.Must(template.New("contact").Parse(`<p><strong>From:</strong> {{.Name}} &lt;{{.Email}}&gt;</p>
<p>{{.Message}}</p>`))

// RenderContact builds the internal notification for a contact form message.
func RenderContact(name, email, message string) (string, error) {
	var buf bytes.Buffer
	err := contactTmpl.Execute(&buf, map[string]string{"Name": name, "Email": email, "Message": message})
	if err != nil {
		return "", fmt.Errorf("mailer: render contact: %w", err)
	}
	return buf.String(), nil
}

// Markdown renders a markdown body to HTML.
func Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("mailer: markdown: %w", err)
	}
	return buf.String(), nil
}
