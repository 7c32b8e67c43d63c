package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/serenityskeys/backend/internal/calendar"
	"github.com/serenityskeys/backend/internal/config"
	"github.com/serenityskeys/backend/internal/db"
	"github.com/serenityskeys/backend/internal/mailer"
	"github.com/serenityskeys/backend/internal/models"
	"github.com/serenityskeys/backend/internal/payments"
)

// openTestDB returns an isolated in-file SQLite database in a temp directory.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "test.db"), logger.Default.LogMode(logger.Silent))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

type fakeCalendar struct {
	mu        sync.Mutex
	created   int
	attendees []string
	link      string
	eventID   string
	err       error
}

func (f *fakeCalendar) CreateMeeting(context.Context, calendar.Meeting) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	if f.err != nil {
		return "", "", f.err
	}
	return f.link, f.eventID, nil
}

func (f *fakeCalendar) AddAttendee(_ context.Context, _ string, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.attendees = append(f.attendees, email)
	return nil
}

func (f *fakeCalendar) Name() string { return "fake" }

type fakePayments struct {
	mu   sync.Mutex
	reqs []payments.CheckoutRequest
	err  error
}

func (f *fakePayments) CreateCheckout(_ context.Context, req payments.CheckoutRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", f.err
	}
	return "https://checkout.stripe.test/c/pay/" + req.Metadata()[payments.MetaEnrollmentID], nil
}

func (f *fakePayments) ParseWebhook(payload []byte, sig string) (payments.Event, error) {
	return payments.WebhookVerifier{AllowUnsigned: true}.Parse(payload, sig)
}

func (f *fakePayments) Name() string { return "fake" }

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) Name() string { return "fake" }

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type testEnv struct {
	svc  *Service
	db   *gorm.DB
	cal  *fakeCalendar
	pay  *fakePayments
	mail *fakeMailer
	loc  *time.Location
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	loc := chicago(t)
	cfg := config.Config{
		Env:              config.EnvTest,
		Timezone:         loc.String(),
		Location:         loc,
		FromEmail:        "hello@serenityskeys.com",
		LaunchpadBaseURL: "https://keys.example/launchpad",
	}
	env := &testEnv{
		db:   openTestDB(t),
		cal:  &fakeCalendar{link: "https://meet.google.com/abc-defg-hij", eventID: "evt_1"},
		pay:  &fakePayments{},
		mail: &fakeMailer{},
		loc:  loc,
	}
	env.svc = New(env.db, cfg, env.cal, env.pay, env.mail, zap.NewNop())
	return env
}

func (e *testEnv) parentStudent(t *testing.T, email, name string) (models.Parent, models.Student) {
	t.Helper()
	p := models.Parent{Name: "Pat " + name, Email: email}
	if err := e.db.Create(&p).Error; err != nil {
		t.Fatalf("create parent: %v", err)
	}
	st := models.Student{ParentID: &p.ID, Name: name}
	if err := e.db.Create(&st).Error; err != nil {
		t.Fatalf("create student: %v", err)
	}
	return p, st
}

func (e *testEnv) student(t *testing.T, name string) models.Student {
	t.Helper()
	st := models.Student{Name: name}
	if err := e.db.Create(&st).Error; err != nil {
		t.Fatalf("create student: %v", err)
	}
	return st
}

func (e *testEnv) session(t *testing.T, course string, start time.Time, capacity int) models.Session {
	t.Helper()
	sess := models.Session{
		Course:   course,
		StartTS:  dbTime(start),
		EndTS:    dbTime(start.Add(45 * time.Minute)),
		Capacity: capacity,
		Location: "Google Meet",
		Status:   models.SessionScheduled,
	}
	if err := e.db.Create(&sess).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

func (e *testEnv) enroll(t *testing.T, sessionID, studentID uint) models.Enrollment {
	t.Helper()
	enr := models.Enrollment{SessionID: sessionID, StudentID: studentID, Status: models.EnrollmentPending, PaymentStatus: models.PaymentPending}
	if err := e.db.Create(&enr).Error; err != nil {
		t.Fatalf("create enrollment: %v", err)
	}
	return enr
}

func (e *testEnv) enrollmentCount(t *testing.T, sessionID uint) int64 {
	t.Helper()
	var n int64
	e.db.Model(&models.Enrollment{}).Where("session_id = ?", sessionID).Count(&n)
	return n
}

func wantCode(t *testing.T, err error, kind Kind, code string) {
	t.Helper()
	e, ok := AsError(err)
	if !ok {
		t.Fatalf("want %s error, got %v", code, err)
	}
	if e.Kind != kind || e.Code != code {
		t.Fatalf("want kind=%d code=%s, got kind=%d code=%s (%v)", kind, code, e.Kind, e.Code, err)
	}
}
