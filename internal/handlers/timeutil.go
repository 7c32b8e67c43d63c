package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/serenityskeys/backend/internal/services"
)

// parseDate reads an optional YYYY-MM-DD value as a calendar date in loc.
func parseDate(s, field string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return nil, services.Validation("INVALID_DATE", field+" must be YYYY-MM-DD")
	}
	return &d, nil
}

// idParam reads a positive integer path parameter.
func idParam(r *http.Request, name string) (uint, error) {
	n, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || n == 0 {
		return 0, services.Validation("INVALID_ID", name+" must be a positive integer")
	}
	return uint(n), nil
}
