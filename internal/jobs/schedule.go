package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Weekly fires once a week at a fixed local wall-clock time.
type Weekly struct {
	Day  time.Weekday
	Hour int
	Loc  *time.Location
}

// Next returns the first fire time strictly after now.
func (w Weekly) Next(now time.Time) time.Time {
	local := now.In(w.Loc)
	days := (int(w.Day) - int(local.Weekday()) + 7) % 7
	next := time.Date(local.Year(), local.Month(), local.Day()+days, w.Hour, 0, 0, 0, w.Loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+days+7, w.Hour, 0, 0, 0, w.Loc)
	}
	return next
}

// RunFunc is the unit of work a schedule triggers.
type RunFunc func(ctx context.Context, now time.Time) error

// Start sleeps until each fire time and calls run, until ctx is cancelled.
func Start(ctx context.Context, sched Weekly, name string, run RunFunc, log *zap.Logger) {
	go func() {
		for {
			next := sched.Next(time.Now())
			log.Info("job_scheduled", zap.String("job", name), zap.Time("next_run", next))
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case fired := <-timer.C:
				if err := run(ctx, fired); err != nil {
					log.Error("job_failed", zap.String("job", name), zap.Error(err))
				}
			}
		}
	}()
}
