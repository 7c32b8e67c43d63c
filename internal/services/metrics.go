package services

import (
	"context"
	"time"

	"github.com/serenityskeys/backend/internal/models"
)

type MetricView struct {
	ID        uint     `json:"id"`
	StudentID uint     `json:"student_id"`
	Date      string   `json:"date"`
	WPM       *int     `json:"wpm"`
	Accuracy  *float64 `json:"accuracy"`
	TimeSpent *float64 `json:"time_spent"`
	Source    string   `json:"source"`
}

func metricView(m models.Metric) MetricView {
	return MetricView{
		ID:        m.ID,
		StudentID: m.StudentID,
		Date:      m.Date.UTC().Format(time.DateOnly),
		WPM:       m.WPM,
		Accuracy:  m.Accuracy,
		TimeSpent: m.TimeSpent,
		Source:    m.Source,
	}
}

// StudentMetrics lists a student's metrics newest first. An empty list is
// only an error when the student does not exist.
func (s *Service) StudentMetrics(ctx context.Context, studentID uint) ([]MetricView, error) {
	db := s.db.WithContext(ctx)
	var rows []models.Metric
	if err := db.Where("student_id = ?", studentID).Order("date desc, id desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if err := db.Select("id").First(&models.Student{}, studentID).Error; err != nil {
			return nil, notFoundOr(err, "student", studentID)
		}
	}
	out := make([]MetricView, len(rows))
	for i, m := range rows {
		out[i] = metricView(m)
	}
	return out, nil
}
