// Command seed loads demo data: one family and two weeks of sessions.
package main

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/serenityskeys/backend/internal/config"
	"github.com/serenityskeys/backend/internal/db"
	"github.com/serenityskeys/backend/internal/models"
)

type slot struct {
	course   string
	hour     int
	minute   int
	duration time.Duration
	capacity int
}

var groupSlots = []slot{
	{"group:3-5", 15, 30, 30 * time.Minute, 3},
	{"group:6-8", 16, 0, 45 * time.Minute, 4},
	{"group:9-11", 16, 0, 45 * time.Minute, 4},
	{"group:12-14", 16, 0, 45 * time.Minute, 4},
}

var privateSlot = slot{"private:all", 17, 0, 45 * time.Minute, 1}

const seedDays = 14

func main() {
	log, _ := zap.NewDevelopment()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}
	conn, err := db.Open(cfg.DatabaseURL, logger.Default.LogMode(logger.Warn))
	if err != nil {
		log.Fatal("open db", zap.Error(err))
	}
	if err := db.Migrate(conn); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	if err := seedFamily(conn); err != nil {
		log.Fatal("seed family", zap.Error(err))
	}

	today := time.Now().In(cfg.Location)
	created := 0
	for offset := 0; offset < seedDays; offset++ {
		day := today.AddDate(0, 0, offset)
		var slots []slot
		switch day.Weekday() {
		case time.Monday, time.Wednesday, time.Friday:
			slots = append(slots, groupSlots...)
		}
		slots = append(slots, privateSlot)

		for _, s := range slots {
			ok, err := ensureSession(conn, s, day, cfg.Location)
			if err != nil {
				log.Fatal("seed session", zap.String("course", s.course), zap.Error(err))
			}
			if ok {
				created++
			}
		}
	}
	log.Info("seed complete", zap.Int("sessions_created", created))
}

func seedFamily(conn *gorm.DB) error {
	parent := models.Parent{Name: "Demo Parent", Email: "demo.parent@example.com"}
	if err := conn.Where(models.Parent{Email: parent.Email}).FirstOrCreate(&parent).Error; err != nil {
		return err
	}
	username, level := "demo_typist", "beginner"
	student := models.Student{ParentID: &parent.ID, Name: "Demo Student", TypingUsername: &username, Level: &level}
	return conn.Where(models.Student{ParentID: &parent.ID, Name: student.Name}).FirstOrCreate(&student).Error
}

// ensureSession inserts the slot on day unless one already exists; it
// reports whether a row was created.
func ensureSession(conn *gorm.DB, s slot, day time.Time, loc *time.Location) (bool, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), s.hour, s.minute, 0, 0, loc).UTC()

	var existing models.Session
	err := conn.Where("course = ? AND start_ts = ?", s.course, start).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	sess := models.Session{
		Course:   s.course,
		StartTS:  start,
		EndTS:    start.Add(s.duration),
		Mode:     "remote",
		Capacity: s.capacity,
		Location: "Google Meet",
		Status:   models.SessionScheduled,
	}
	return true, conn.Create(&sess).Error
}
