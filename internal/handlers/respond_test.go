package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/serenityskeys/backend/internal/services"
)

func TestWriteErrorServiceError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	err := services.Conflict("SESSION_FULL", "Session is full").WithDetails(map[string]any{"session_id": 3})
	WriteError(rec, req, zap.NewNop(), false, err)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status: %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != true || body["code"] != "SESSION_FULL" || body["message"] != "Session is full" {
		t.Errorf("body: %v", body)
	}
	if d, _ := body["details"].(map[string]any); d["session_id"] != float64(3) {
		t.Errorf("details: %v", body["details"])
	}
}

func TestWriteErrorHidesInternalsOutsideDev(t *testing.T) {
	boom := errors.New("disk on fire")
	for _, dev := range []bool{false, true} {
		rec := httptest.NewRecorder()
		WriteError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), zap.NewNop(), dev, boom)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status: %d", rec.Code)
		}
		var body map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body["code"] != "INTERNAL_SERVER_ERROR" {
			t.Errorf("code: %v", body["code"])
		}
		leaked := body["message"] == "disk on fire"
		if leaked != dev {
			t.Errorf("dev=%v: message %q", dev, body["message"])
		}
		if dev && body["type"] != "*errors.errorString" {
			t.Errorf("dev type: %v", body["type"])
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header http.Header
		want   string
	}{
		{"bearer", http.Header{"Authorization": {"Bearer abc"}}, "abc"},
		{"lowercase scheme", http.Header{"Authorization": {"bearer abc"}}, "abc"},
		{"basic ignored", http.Header{"Authorization": {"Basic abc"}}, ""},
		{"legacy header", http.Header{LegacyTokenHeader: {"xyz"}}, "xyz"},
		{"none", http.Header{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header = tc.header
			if got := bearerToken(r); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeValidation(t *testing.T) {
	h := &Handlers{validate: newValidator()}
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Body = http.NoBody

	var empty availabilityRequest
	if err := h.decode(r, &empty, true); err != nil {
		t.Errorf("empty body should be allowed: %v", err)
	}

	var req contactRequest
	err := h.decode(httptest.NewRequest(http.MethodPost, "/", jsonBody(`{"name":"Ada"}`)), &req, false)
	se, ok := services.AsError(err)
	if !ok || se.Code != "VALIDATION_ERROR" {
		t.Fatalf("want VALIDATION_ERROR, got %v", err)
	}
	fields := se.Details["fields"].(map[string]any)
	if fields["email"] != "is required" || fields["message"] != "is required" {
		t.Errorf("fields: %v", fields)
	}
}

func jsonBody(s string) *strings.Reader { return strings.NewReader(s) }
