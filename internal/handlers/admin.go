package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/serenityskeys/backend/internal/auth"
	"github.com/serenityskeys/backend/internal/services"
)

const (
	maxUploadBytes = 10 << 20
	adminSubject   = "admin"
	// LegacyTokenHeader is still sent by older admin tooling.
	LegacyTokenHeader = "X-Admin-Token"
)

// RequireRole rejects requests without a valid bearer token carrying role.
func (h *Handlers) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				h.fail(w, r, services.Unauthorized("Missing bearer token"))
				return
			}
			claims, err := h.issuer.Parse(raw)
			if err != nil {
				h.fail(w, r, services.Unauthorized("Invalid or expired token"))
				return
			}
			if !claims.HasRole(role) {
				h.fail(w, r, services.Forbidden("Insufficient role"))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

// RequireAdmin is RequireRole(auth.RoleAdmin).
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return h.RequireRole(auth.RoleAdmin)(next)
}

func bearerToken(r *http.Request) string {
	if v := r.Header.Get("Authorization"); v != "" {
		scheme, token, ok := strings.Cut(v, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get(LegacyTokenHeader))
}

type loginRequest struct {
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string   `json:"token"`
	TokenType string   `json:"token_type"`
	ExpiresIn int64    `json:"expires_in"`
	ExpiresAt int64    `json:"expires_at"`
	Roles     []string `json:"roles"`
}

// POST /api/admin/login
func (h *Handlers) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	if !auth.CheckPassword(h.cfg.AdminPassword, h.cfg.AdminPasswordHash, req.Password) {
		h.log.Warn("admin_login_failed", zap.String("ip", r.RemoteAddr))
		h.fail(w, r, services.Unauthorized("Invalid credentials"))
		return
	}
	tok, err := h.issuer.Issue(adminSubject, []string{auth.RoleAdmin})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     tok.Value,
		TokenType: "Bearer",
		ExpiresIn: int64(tok.TTL.Seconds()),
		ExpiresAt: tok.ExpiresAt.Unix(),
		Roles:     tok.Roles,
	})
}

// GET /api/admin/sessions
func (h *Handlers) AdminSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.UpcomingSessions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []services.SessionView{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

type createSessionRequest struct {
	Course   string `json:"course" validate:"required"`
	StartTS  string `json:"start_ts" validate:"required"`
	EndTS    string `json:"end_ts" validate:"required"`
	Mode     string `json:"mode"`
	Capacity *int   `json:"capacity"`
	Location string `json:"location"`
}

// POST /api/admin/session
func (h *Handlers) AdminCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := h.decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	start, err := services.ParseTimestamp(req.StartTS, h.cfg.Location)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	end, err := services.ParseTimestamp(req.EndTS, h.cfg.Location)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sess, err := h.svc.CreateSession(r.Context(), services.CreateSessionInput{
		Course:   req.Course,
		StartTS:  start,
		EndTS:    end,
		Mode:     req.Mode,
		Capacity: req.Capacity,
		Location: req.Location,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

type resendRequest struct {
	SessionID uint `json:"session_id" validate:"required,gt=0"`
	StudentID uint `json:"student_id" validate:"required,gt=0"`
}

// POST /api/admin/resend-confirmation
func (h *Handlers) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := h.decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.ResendConfirmation(r.Context(), req.SessionID, req.StudentID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type reportRequest struct {
	StudentID   uint   `json:"student_id" validate:"required,gt=0"`
	PeriodStart string `json:"period_start" validate:"required"`
	PeriodEnd   string `json:"period_end" validate:"required"`
	ArtifactURL string `json:"artifact_url" validate:"omitempty,url"`
}

// POST /api/admin/reports
func (h *Handlers) AdminCreateReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := h.decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	start, err := parseDate(req.PeriodStart, "period_start", h.cfg.Location)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	end, err := parseDate(req.PeriodEnd, "period_end", h.cfg.Location)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rep, err := h.svc.GenerateReport(r.Context(), services.ReportInput{
		StudentID:   req.StudentID,
		PeriodStart: *start,
		PeriodEnd:   *end,
		ArtifactURL: req.ArtifactURL,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

// POST /api/typing/import (multipart, field "file")
func (h *Handlers) TypingImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.fail(w, r, services.Validation("FILE_TOO_LARGE", "Upload exceeds 10 MB"))
			return
		}
		h.fail(w, r, services.Validation("MISSING_FILE", "Multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.fail(w, r, services.Validation("INVALID_CSV", "Could not read upload"))
		return
	}
	n, err := h.svc.ImportMetrics(r.Context(), data)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}
