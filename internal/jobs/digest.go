// Package jobs contains scheduled background work.
package jobs

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/serenityskeys/backend/internal/mailer"
	"github.com/serenityskeys/backend/internal/models"
	"github.com/serenityskeys/backend/internal/telemetry"
)

// DigestLookback is how recent a student's latest metric must be.
const DigestLookback = 14 * 24 * time.Hour

// Digest sends each parent a short summary of their student's latest metric.
type Digest struct {
	db   *gorm.DB
	mail mailer.Mailer
	loc  *time.Location
	log  *zap.Logger
}

func NewDigest(db *gorm.DB, mail mailer.Mailer, loc *time.Location, log *zap.Logger) *Digest {
	return &Digest{db: db, mail: mail, loc: loc, log: log}
}

type DigestResult struct {
	Sent    int
	Skipped int
	Failed  int
}

// RunOnce scans students with a metric in the trailing window and emails
// their parents. A failed send is logged and the run moves on.
func (d *Digest) RunOnce(ctx context.Context, now time.Time) (DigestResult, error) {
	var res DigestResult

	y, m, day := now.In(d.loc).Date()
	cutoff := time.Date(y, m, day, 0, 0, 0, 0, time.UTC).Add(-DigestLookback)

	var recent []models.Metric
	if err := d.db.WithContext(ctx).
		Where("date >= ?", cutoff).
		Order("student_id asc, date desc, id desc").
		Find(&recent).Error; err != nil {
		return res, err
	}
	if len(recent) == 0 {
		return res, nil
	}

	// latest metric per student; rows are already newest-first per student
	latest := make(map[uint]models.Metric)
	order := []uint{}
	for _, mt := range recent {
		if _, ok := latest[mt.StudentID]; !ok {
			latest[mt.StudentID] = mt
			order = append(order, mt.StudentID)
		}
	}

	// Batch-load students and parents instead of one query per row.
	var students []models.Student
	if err := d.db.WithContext(ctx).Where("id IN ?", order).Find(&students).Error; err != nil {
		return res, err
	}
	studentMap := make(map[uint]models.Student, len(students))
	parentIDs := make([]uint, 0, len(students))
	for _, st := range students {
		studentMap[st.ID] = st
		if st.ParentID != nil {
			parentIDs = append(parentIDs, *st.ParentID)
		}
	}
	parentMap := make(map[uint]models.Parent)
	if len(parentIDs) > 0 {
		var parents []models.Parent
		if err := d.db.WithContext(ctx).Where("id IN ?", parentIDs).Find(&parents).Error; err != nil {
			return res, err
		}
		for _, p := range parents {
			parentMap[p.ID] = p
		}
	}

	for _, id := range order {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		st, ok := studentMap[id]
		if !ok || st.ParentID == nil {
			res.Skipped++
			continue
		}
		parent, ok := parentMap[*st.ParentID]
		if !ok || parent.Email == "" {
			res.Skipped++
			continue
		}

		if err := d.send(ctx, parent.Email, st.Name, latest[id]); err != nil {
			res.Failed++
			d.log.Warn("digest_send_failed", zap.Uint("student_id", id), zap.Error(err))
			continue
		}
		res.Sent++
	}

	d.log.Info("digest_run_complete", zap.Int("sent", res.Sent), zap.Int("skipped", res.Skipped), zap.Int("failed", res.Failed))
	return res, nil
}

func (d *Digest) send(ctx context.Context, to, name string, m models.Metric) error {
	body, err := mailer.Markdown(DigestBody(name, m))
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	err = d.mail.Send(cctx, mailer.Message{To: []string{to}, Subject: mailer.DigestSubject, HTML: body})
	telemetry.Emails.WithLabelValues("digest", telemetry.Result(err)).Inc()
	return err
}

// DigestBody is the markdown text for one student.
func DigestBody(name string, m models.Metric) string {
	wpm, acc := "n/a", "n/a"
	if m.WPM != nil {
		wpm = strconv.Itoa(*m.WPM)
	}
	if m.Accuracy != nil {
		acc = strconv.FormatFloat(*m.Accuracy, 'f', -1, 64)
	}
	return fmt.Sprintf("%s latest typing score: %s WPM at %s%% accuracy. Keep going!", name, wpm, acc)
}
