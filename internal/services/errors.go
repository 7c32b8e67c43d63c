package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindDependency
	KindUnauthorized
	KindForbidden
	KindConfig
)

func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindDependency:
		return http.StatusBadGateway
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is an expected failure with a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) WithDetails(d map[string]any) *Error {
	e.Details = d
	return e
}

func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func NotFound(resource string, id any) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    "NOT_FOUND",
		Message: resource + " not found",
		Details: map[string]any{"resource": resource, "id": id},
	}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

func Dependency(msg string, err error) *Error {
	return &Error{Kind: KindDependency, Code: "DEPENDENCY_ERROR", Message: msg, Err: err}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: msg}
}

func MissingConfig(code, msg string) *Error {
	return &Error{Kind: KindConfig, Code: code, Message: msg}
}

// AsError unwraps err into an *Error, if it is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsDuplicate reports a unique-constraint violation from any supported driver.
func IsDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// notFoundOr maps gorm.ErrRecordNotFound to a NotFound error and passes anything else through.
func notFoundOr(err error, resource string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(resource, id)
	}
	return err
}
