package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/serenityskeys/backend/internal/models"
)

type ReportInput struct {
	StudentID   uint
	PeriodStart time.Time
	PeriodEnd   time.Time
	ArtifactURL string
}

type ReportView struct {
	ID          uint      `json:"id"`
	StudentID   uint      `json:"student_id"`
	PeriodStart string    `json:"period_start"`
	PeriodEnd   string    `json:"period_end"`
	Summary     string    `json:"summary"`
	ArtifactURL *string   `json:"artifact_url"`
	CreatedAt   time.Time `json:"created_at"`
}

func reportView(r models.Report) ReportView {
	return ReportView{
		ID:          r.ID,
		StudentID:   r.StudentID,
		PeriodStart: r.PeriodStart.UTC().Format(time.DateOnly),
		PeriodEnd:   r.PeriodEnd.UTC().Format(time.DateOnly),
		Summary:     r.Summary,
		ArtifactURL: r.ArtifactURL,
		CreatedAt:   r.CreatedAt,
	}
}

// GenerateReport summarizes a student's metrics over an inclusive date
// period and stores the result.
func (s *Service) GenerateReport(ctx context.Context, in ReportInput) (ReportView, error) {
	start := dateOnly(in.PeriodStart, time.UTC)
	end := dateOnly(in.PeriodEnd, time.UTC)
	if start.After(end) {
		return ReportView{}, Validation("INVALID_DATE_RANGE", "period_start must be on or before period_end")
	}

	db := s.db.WithContext(ctx)
	var student models.Student
	if err := db.First(&student, in.StudentID).Error; err != nil {
		return ReportView{}, notFoundOr(err, "student", in.StudentID)
	}

	var metrics []models.Metric
	if err := db.Where("student_id = ? AND date BETWEEN ? AND ?", student.ID, start, end).
		Order("date asc, id asc").
		Find(&metrics).Error; err != nil {
		return ReportView{}, err
	}

	rep := models.Report{
		StudentID:   student.ID,
		PeriodStart: start,
		PeriodEnd:   end,
		Summary:     ParentSummary(student.Name, metrics),
	}
	if u := strings.TrimSpace(in.ArtifactURL); u != "" {
		rep.ArtifactURL = &u
	}
	if err := db.Create(&rep).Error; err != nil {
		return ReportView{}, err
	}
	s.log.Info("report_generated", zap.Uint("student_id", student.ID), zap.Uint("report_id", rep.ID), zap.Int("metrics", len(metrics)))
	return reportView(rep), nil
}

func (s *Service) StudentReports(ctx context.Context, studentID uint) ([]ReportView, error) {
	db := s.db.WithContext(ctx)
	if err := db.Select("id").First(&models.Student{}, studentID).Error; err != nil {
		return nil, notFoundOr(err, "student", studentID)
	}
	var rows []models.Report
	if err := db.Where("student_id = ?", studentID).Order("period_end desc, id desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ReportView, len(rows))
	for i, r := range rows {
		out[i] = reportView(r)
	}
	return out, nil
}

// ParentSummary is the parent-facing text for a set of metrics. Metrics
// without a value do not count toward that average.
func ParentSummary(studentName string, metrics []models.Metric) string {
	var wpmSum, accSum float64
	var wpmN, accN int
	for _, m := range metrics {
		if m.WPM != nil {
			wpmSum += float64(*m.WPM)
			wpmN++
		}
		if m.Accuracy != nil {
			accSum += *m.Accuracy
			accN++
		}
	}
	if wpmN == 0 && accN == 0 {
		return studentName + " is just getting started. We'll establish a baseline" +
			" in the first week and focus on accuracy over speed."
	}
	return fmt.Sprintf("This week %s averaged %s WPM at %s%% accuracy. "+
		"Our focus next week: steady accuracy above 90%% with calm pacing for "+
		"3-minute drills. We'll introduce short challenges to keep sessions "+
		"fun and confidence high.", studentName, avg(wpmSum, wpmN), avg(accSum, accN))
}

func avg(sum float64, n int) string {
	if n == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", sum/float64(n))
}
