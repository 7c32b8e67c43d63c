package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/serenityskeys/backend/internal/calendar"
	"github.com/serenityskeys/backend/internal/models"
	"github.com/serenityskeys/backend/internal/payments"
)

func checkoutInput(sessionID, studentID uint) CheckoutInput {
	return CheckoutInput{
		SessionID:   sessionID,
		StudentID:   studentID,
		AmountCents: 8900,
		SuccessURL:  "https://keys.example/success",
		CancelURL:   "https://keys.example/cancel",
	}
}

func TestCheckoutIdempotent(t *testing.T) {
	env := newTestEnv(t)
	sess := env.session(t, "group:6-8", time.Now().Add(48*time.Hour), 4)
	st := env.student(t, "Ada")

	first, err := env.svc.Checkout(context.Background(), checkoutInput(sess.ID, st.ID))
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	second, err := env.svc.Checkout(context.Background(), checkoutInput(sess.ID, st.ID))
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if first.EnrollmentID != second.EnrollmentID {
		t.Errorf("enrollment ids differ: %d vs %d", first.EnrollmentID, second.EnrollmentID)
	}
	if n := env.enrollmentCount(t, sess.ID); n != 1 {
		t.Errorf("want 1 enrollment, got %d", n)
	}
	if !strings.HasPrefix(first.CheckoutURL, "https://checkout.stripe.test/") {
		t.Errorf("unexpected checkout url %q", first.CheckoutURL)
	}

	var enr models.Enrollment
	env.db.First(&enr, first.EnrollmentID)
	if enr.Status != models.EnrollmentPending || enr.PaymentStatus != models.PaymentPending {
		t.Errorf("new enrollment state: %s/%s", enr.Status, enr.PaymentStatus)
	}

	// meeting link is created once and reused
	if env.cal.created != 1 {
		t.Errorf("calendar should be called once, got %d", env.cal.created)
	}
	var reloaded models.Session
	env.db.First(&reloaded, sess.ID)
	if reloaded.MeetLink == nil || *reloaded.MeetLink != env.cal.link {
		t.Errorf("meet link not stored: %v", reloaded.MeetLink)
	}
	if reloaded.CalendarEventID == nil || *reloaded.CalendarEventID != "evt_1" {
		t.Errorf("event id not stored: %v", reloaded.CalendarEventID)
	}

	req := env.pay.reqs[0]
	md := req.Metadata()
	if md["session_id"] == "" || md["student_id"] == "" || md["enrollment_id"] == "" {
		t.Errorf("checkout metadata incomplete: %v", md)
	}
	if req.AmountCents != 8900 {
		t.Errorf("amount: %d", req.AmountCents)
	}
}

func TestCheckoutSessionFull(t *testing.T) {
	env := newTestEnv(t)
	sess := env.session(t, "group:6-8", time.Now().Add(48*time.Hour), 4)
	var first models.Enrollment
	for i := 0; i < 4; i++ {
		e := env.enroll(t, sess.ID, env.student(t, "kid").ID)
		if i == 0 {
			first = e
		}
	}
	newcomer := env.student(t, "late")

	again, err := env.svc.Checkout(context.Background(), checkoutInput(sess.ID, first.StudentID))
	if err != nil {
		t.Fatalf("enrolled student retrying a full session: %v", err)
	}
	if again.EnrollmentID != first.ID {
		t.Errorf("retry should return enrollment %d, got %d", first.ID, again.EnrollmentID)
	}
	env.pay.reqs = nil
	env.cal.created = 0

	_, err = env.svc.Checkout(context.Background(), checkoutInput(sess.ID, newcomer.ID))
	wantCode(t, err, KindConflict, "SESSION_FULL")
	if n := env.enrollmentCount(t, sess.ID); n != 4 {
		t.Errorf("no enrollment should be added, have %d", n)
	}
	if len(env.pay.reqs) != 0 {
		t.Error("no checkout should be requested for a full session")
	}
	if env.cal.created != 0 {
		t.Error("no meeting should be created for a full session")
	}
}

func TestCheckoutPreconditions(t *testing.T) {
	env := newTestEnv(t)
	st := env.student(t, "Ada")
	closed := env.session(t, "group:6-8", time.Now().Add(time.Hour), 4)
	env.db.Model(&closed).Update("status", models.SessionCancelled)
	open := env.session(t, "group:6-8", time.Now().Add(time.Hour), 4)

	_, err := env.svc.Checkout(context.Background(), checkoutInput(9999, st.ID))
	wantCode(t, err, KindNotFound, "NOT_FOUND")

	_, err = env.svc.Checkout(context.Background(), checkoutInput(closed.ID, st.ID))
	wantCode(t, err, KindConflict, "SESSION_NOT_OPEN")

	_, err = env.svc.Checkout(context.Background(), checkoutInput(open.ID, 9999))
	wantCode(t, err, KindValidation, "STUDENT_NOT_FOUND")
}

func TestCheckoutFallbacks(t *testing.T) {
	env := newTestEnv(t)
	env.cal.err = errors.New("calendar down")
	env.pay.err = errors.New("stripe down")
	sess := env.session(t, "group:6-8", time.Now().Add(time.Hour), 4)
	st := env.student(t, "Ada")

	in := checkoutInput(sess.ID, st.ID)
	in.TypingUsername = "ada_types"
	res, err := env.svc.Checkout(context.Background(), in)
	if err != nil {
		t.Fatalf("checkout must not fail on dependency errors: %v", err)
	}
	if !strings.HasPrefix(res.CheckoutURL, "https://example.com/checkout/dev-placeholder?") {
		t.Errorf("want placeholder url, got %q", res.CheckoutURL)
	}
	if !strings.Contains(res.CheckoutURL, "typing_username=ada_types") {
		t.Errorf("placeholder should carry username: %q", res.CheckoutURL)
	}

	var reloaded models.Session
	env.db.First(&reloaded, sess.ID)
	if reloaded.MeetLink == nil || *reloaded.MeetLink != calendar.PlaceholderLink {
		t.Errorf("want placeholder meet link, got %v", reloaded.MeetLink)
	}
	if reloaded.CalendarEventID != nil {
		t.Errorf("no event id expected, got %q", *reloaded.CalendarEventID)
	}

	var student models.Student
	env.db.First(&student, st.ID)
	if student.TypingUsername == nil || *student.TypingUsername != "ada_types" {
		t.Errorf("typing username not recorded: %v", student.TypingUsername)
	}
}

func TestCheckoutConcurrentNeverOverbooks(t *testing.T) {
	env := newTestEnv(t)
	sess := env.session(t, "group:12-14", time.Now().Add(time.Hour), 2)
	students := make([]models.Student, 6)
	for i := range students {
		students[i] = env.student(t, "kid")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, full := 0, 0
	for _, st := range students {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := env.svc.Checkout(context.Background(), checkoutInput(sess.ID, id))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if e, isErr := AsError(err); isErr && e.Code == "SESSION_FULL" {
				full++
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}(st.ID)
	}
	wg.Wait()

	if ok != 2 || full != 4 {
		t.Errorf("want 2 booked and 4 full, got %d and %d", ok, full)
	}
	if n := env.enrollmentCount(t, sess.ID); n != 2 {
		t.Errorf("want 2 enrollments, got %d", n)
	}
}

// gate parks the first external call until release is closed.
type gate struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) wait() {
	g.once.Do(func() { close(g.entered) })
	<-g.release
}

type slowCalendar struct {
	*fakeCalendar
	g *gate
}

func (c slowCalendar) CreateMeeting(ctx context.Context, m calendar.Meeting) (string, string, error) {
	c.g.wait()
	return c.fakeCalendar.CreateMeeting(ctx, m)
}

type slowPayments struct {
	*fakePayments
	g *gate
}

func (p slowPayments) CreateCheckout(ctx context.Context, req payments.CheckoutRequest) (string, error) {
	p.g.wait()
	return p.fakePayments.CreateCheckout(ctx, req)
}

func TestCheckoutDoesNotHoldDatabaseDuringProviderCalls(t *testing.T) {
	for _, provider := range []string{"calendar", "payments"} {
		t.Run(provider, func(t *testing.T) {
			env := newTestEnv(t)
			g := newGate()
			switch provider {
			case "calendar":
				env.svc.calendar = slowCalendar{fakeCalendar: env.cal, g: g}
			case "payments":
				env.svc.payments = slowPayments{fakePayments: env.pay, g: g}
			}
			booked := env.session(t, "group:6-8", time.Now().Add(48*time.Hour), 4)
			other := env.session(t, "group:9-12", time.Now().Add(72*time.Hour), 4)
			st := env.student(t, "Ada")

			done := make(chan error, 1)
			go func() {
				_, err := env.svc.Checkout(context.Background(), checkoutInput(booked.ID, st.ID))
				done <- err
			}()
			select {
			case <-g.entered:
			case err := <-done:
				t.Fatalf("checkout returned before reaching %s: %v", provider, err)
			case <-time.After(5 * time.Second):
				t.Fatalf("checkout never reached %s", provider)
			}

			read := make(chan error, 1)
			go func() {
				_, err := env.svc.GetSession(context.Background(), other.ID)
				read <- err
			}()
			select {
			case err := <-read:
				if err != nil {
					t.Fatalf("GetSession: %v", err)
				}
			case <-time.After(time.Second):
				close(g.release)
				t.Fatalf("GetSession blocked while checkout waited on %s", provider)
			}

			close(g.release)
			if err := <-done; err != nil {
				t.Fatalf("checkout: %v", err)
			}
			var got models.Session
			if err := env.db.First(&got, booked.ID).Error; err != nil {
				t.Fatal(err)
			}
			if got.MeetLink == nil || *got.MeetLink != env.cal.link {
				t.Errorf("meet link = %v, want %s", got.MeetLink, env.cal.link)
			}
			if n := env.enrollmentCount(t, booked.ID); n != 1 {
				t.Errorf("enrollments = %d, want 1", n)
			}
		})
	}
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock(1)

	acquired := make(chan struct{})
	done := make(chan struct{})
	go func() {
		u := k.Lock(1)
		close(acquired)
		u()
		close(done)
	}()

	// a different key is independent
	other := k.Lock(2)
	other()

	select {
	case <-acquired:
		t.Fatal("second Lock(1) acquired while first was held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired
	<-done

	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.locks) != 0 {
		t.Errorf("entries should be released, have %d", len(k.locks))
	}
}
