// Package services holds the booking domain logic. Handlers stay thin and
// call into Service; every external collaborator is injected.
package services

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/serenityskeys/backend/internal/calendar"
	"github.com/serenityskeys/backend/internal/config"
	"github.com/serenityskeys/backend/internal/mailer"
	"github.com/serenityskeys/backend/internal/payments"
)

// externalTimeout bounds each calendar, payment and email call.
const externalTimeout = 15 * time.Second

type Service struct {
	db       *gorm.DB
	cfg      config.Config
	calendar calendar.Provider
	payments payments.Gateway
	mail     mailer.Mailer
	log      *zap.Logger
	locks    *keyedMutex
	now      func() time.Time
}

func New(db *gorm.DB, cfg config.Config, cal calendar.Provider, pay payments.Gateway, mail mailer.Mailer, log *zap.Logger) *Service {
	return &Service{
		db:       db,
		cfg:      cfg,
		calendar: cal,
		payments: pay,
		mail:     mail,
		log:      log,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

func (s *Service) loc() *time.Location { return s.cfg.Location }

// dbTime normalizes a timestamp for storage and comparison. SQLite compares
// timestamps as text, so everything is stored in UTC at second precision.
func dbTime(t time.Time) time.Time { return t.UTC().Truncate(time.Second) }

// dateOnly returns midnight UTC of t's calendar day in loc.
func dateOnly(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
