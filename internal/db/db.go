package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/serenityskeys/backend/internal/models"
)

const sqliteParams = "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// Open connects to DATABASE_URL. postgres:// URLs use the pgx driver,
// anything else is treated as a SQLite path (optionally prefixed sqlite:///).
// A nil log keeps gorm's default logger.
func Open(databaseURL string, log logger.Interface) (*gorm.DB, error) {
	cfg := &gorm.Config{TranslateError: true}
	if log != nil {
		cfg.Logger = log
	}

	dialector, isSQLite := dialectorFor(databaseURL)
	conn, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if isSQLite {
		// SQLite works best with a single writer; cap the pool accordingly.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
	}
	return conn, nil
}

func dialectorFor(databaseURL string) (gorm.Dialector, bool) {
	u := strings.TrimSpace(databaseURL)
	if strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://") {
		return postgres.Open(u), false
	}
	u = strings.TrimPrefix(u, "sqlite:///")
	u = strings.TrimPrefix(u, "sqlite://")
	if !strings.Contains(u, "?") {
		u += "?" + sqliteParams
	}
	return sqlite.Open(u), true
}

// Migrate creates or updates the schema.
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}

	// Composite indexes that GORM doesn't auto-create from struct tags.
	for _, stmt := range []string{
		"CREATE INDEX IF NOT EXISTS idx_sessions_status_start ON sessions(status, start_ts)",
		"CREATE INDEX IF NOT EXISTS idx_metrics_student_date  ON metrics(student_id, date)",
	} {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("db: create index: %w", err)
		}
	}
	return nil
}
