package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/serenityskeys/backend/internal/services"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error   bool           `json:"error"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Type    string         `json:"type,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as the standard error envelope. Unexpected errors
// are logged and hidden outside dev.
func WriteError(w http.ResponseWriter, r *http.Request, log *zap.Logger, dev bool, err error) {
	if se, ok := services.AsError(err); ok {
		if se.Kind == services.KindDependency || se.Kind == services.KindConfig {
			log.Error("request_failed",
				zap.String("path", r.URL.Path),
				zap.String("code", se.Code),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Error(err),
			)
		}
		writeJSON(w, se.Kind.HTTPStatus(), errorBody{
			Error:   true,
			Code:    se.Code,
			Message: se.Message,
			Details: se.Details,
		})
		return
	}

	log.Error("unhandled_error",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	body := errorBody{Error: true, Code: "INTERNAL_SERVER_ERROR", Message: "An unexpected error occurred"}
	if dev {
		body.Message = err.Error()
		body.Type = fmt.Sprintf("%T", err)
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	WriteError(w, r, h.log, h.cfg.IsDev(), err)
}

// decode reads a JSON body into dst and runs struct validation. An empty
// body is accepted when allowEmpty is set.
func (h *Handlers) decode(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return h.check(dst)
		}
		return services.Validation("INVALID_JSON", "Request body must be valid JSON")
	}
	return h.check(dst)
}

func (h *Handlers) check(dst any) error {
	err := h.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	return services.Validation("VALIDATION_ERROR", "Request validation failed").
		WithDetails(map[string]any{"fields": fields})
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url", "http_url":
		return "must be a valid URL"
	case "gt", "gte", "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "datetime":
		return "must match " + fe.Param()
	default:
		return strings.TrimSpace("failed " + fe.Tag() + " " + fe.Param())
	}
}
