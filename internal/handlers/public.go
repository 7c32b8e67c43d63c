package handlers

import (
	"net/http"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/serenityskeys/backend/internal/calendar"
	"github.com/serenityskeys/backend/internal/services"
)

type availabilityRequest struct {
	Course    string `json:"course"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// POST /api/availability
func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := h.decode(r, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}
	loc := h.cfg.Location
	start, err := parseDate(req.StartDate, "start_date", loc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	end, err := parseDate(req.EndDate, "end_date", loc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sessions, err := h.svc.Availability(r.Context(), services.AvailabilityQuery{
		Course:    req.Course,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []services.SessionView{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// GET /api/sessions/{id}
func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sess, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// GET /api/sessions/{id}/qr.png
func (h *Handlers) SessionQR(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sess, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	link := calendar.PlaceholderLink
	if sess.MeetLink != nil && *sess.MeetLink != "" {
		link = *sess.MeetLink
	}
	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type profileRequest struct {
	ParentName     string `json:"parent_name" validate:"required"`
	ParentEmail    string `json:"parent_email" validate:"required"`
	ParentPhone    string `json:"parent_phone"`
	StudentID      *uint  `json:"student_id"`
	StudentName    string `json:"student_name" validate:"required"`
	TypingUsername string `json:"typing_username" validate:"max=150"`
}

// POST /api/profile/upsert
func (h *Handlers) UpsertProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := h.decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.svc.UpsertProfile(r.Context(), services.ProfileInput{
		ParentName:     req.ParentName,
		ParentEmail:    req.ParentEmail,
		ParentPhone:    req.ParentPhone,
		StudentID:      req.StudentID,
		StudentName:    req.StudentName,
		TypingUsername: req.TypingUsername,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type checkoutRequest struct {
	SessionID      uint   `json:"session_id" validate:"required,gt=0"`
	StudentID      uint   `json:"student_id" validate:"required,gt=0"`
	AmountCents    int64  `json:"amount_cents" validate:"required,gt=0"`
	SuccessURL     string `json:"success_url" validate:"required,url"`
	CancelURL      string `json:"cancel_url" validate:"required,url"`
	TypingUsername string `json:"typing_username" validate:"max=150"`
}

// POST /api/booking/checkout
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := h.decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.svc.Checkout(r.Context(), services.CheckoutInput{
		SessionID:      req.SessionID,
		StudentID:      req.StudentID,
		AmountCents:    req.AmountCents,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
		TypingUsername: req.TypingUsername,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type contactRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// POST /api/contact
func (h *Handlers) Contact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := h.decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.SubmitContact(r.Context(), services.ContactInput{
		Name:    req.Name,
		Email:   req.Email,
		Message: req.Message,
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /api/students/{id}/metrics
func (h *Handlers) StudentMetrics(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	metrics, err := h.svc.StudentMetrics(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if metrics == nil {
		metrics = []services.MetricView{}
	}
	writeJSON(w, http.StatusOK, metrics)
}

// GET /api/students/{id}/reports
func (h *Handlers) StudentReports(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	reports, err := h.svc.StudentReports(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if reports == nil {
		reports = []services.ReportView{}
	}
	writeJSON(w, http.StatusOK, reports)
}
