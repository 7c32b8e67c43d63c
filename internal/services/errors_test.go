package services

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestKindHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:   http.StatusBadRequest,
		KindNotFound:     http.StatusNotFound,
		KindConflict:     http.StatusConflict,
		KindDependency:   http.StatusBadGateway,
		KindUnauthorized: http.StatusUnauthorized,
		KindForbidden:    http.StatusForbidden,
		KindConfig:       http.StatusInternalServerError,
	}
	for k, want := range cases {
		if got := k.HTTPStatus(); got != want {
			t.Errorf("kind %d: want %d, got %d", k, want, got)
		}
	}
}

func TestAsErrorThroughWrapping(t *testing.T) {
	err := fmt.Errorf("checkout: %w", Conflict("SESSION_FULL", "Session is full"))
	e, ok := AsError(err)
	if !ok || e.Code != "SESSION_FULL" {
		t.Fatalf("AsError: got %v, %v", e, ok)
	}
	if _, ok := AsError(errors.New("plain")); ok {
		t.Error("plain errors are not *Error")
	}
}

func TestIsDuplicate(t *testing.T) {
	if !IsDuplicate(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)) {
		t.Error("gorm duplicate not detected")
	}
	if !IsDuplicate(&pgconn.PgError{Code: "23505"}) {
		t.Error("postgres unique violation not detected")
	}
	if IsDuplicate(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation is not a duplicate")
	}
}

func TestNotFoundOr(t *testing.T) {
	err := notFoundOr(gorm.ErrRecordNotFound, "session", 5)
	e, ok := AsError(err)
	if !ok || e.Kind != KindNotFound || e.Details["id"] != 5 {
		t.Fatalf("got %v", err)
	}
	other := errors.New("disk full")
	if notFoundOr(other, "session", 5) != other {
		t.Error("other errors must pass through")
	}
}

func TestNormPhone(t *testing.T) {
	cases := map[string]string{
		"(312) 555-0142":    "+13125550142",
		"312.555.0142":      "+13125550142",
		"1 312 555 0142":    "+13125550142",
		"+44 20 7946 0958":  "+442079460958",
		"0044 20 7946 0958": "+442079460958",
		"call me":           "",
		"12":                "",
		"":                  "",
	}
	for in, want := range cases {
		if got := NormPhone(in); got != want {
			t.Errorf("NormPhone(%q): want %q, got %q", in, want, got)
		}
	}
}

func TestNormEmail(t *testing.T) {
	if e, ok := NormEmail("  Pat@Example.COM "); !ok || e != "pat@example.com" {
		t.Errorf("got %q %v", e, ok)
	}
	if _, ok := NormEmail("not-an-email"); ok {
		t.Error("invalid address accepted")
	}
	if _, ok := NormEmail("Pat <pat@example.com>"); ok {
		t.Error("display-name form should be rejected")
	}
}
