package models

import (
	"time"

	"gorm.io/datatypes"
)

// Session statuses. Only scheduled sessions accept bookings.
const (
	SessionScheduled = "scheduled"
	SessionClosed    = "closed"
	SessionCancelled = "cancelled"
)

// Enrollment statuses.
const (
	EnrollmentPending   = "pending"
	EnrollmentConfirmed = "confirmed"

	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

type Parent struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name  string `gorm:"not null"`
	Email string `gorm:"uniqueIndex;not null"` // stored lower-case
	Phone string

	Students []Student `gorm:"constraint:OnDelete:SET NULL"`
}

type Student struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ParentID       *uint      `gorm:"index"`
	Name           string     `gorm:"not null"`
	TypingUsername *string    `gorm:"column:typing_username;index"`
	DOB            *time.Time `gorm:"column:dob"`
	Level          *string
	Notes          *string

	Enrollments []Enrollment `gorm:"constraint:OnDelete:CASCADE"`
	Metrics     []Metric     `gorm:"constraint:OnDelete:CASCADE"`
	Reports     []Report     `gorm:"constraint:OnDelete:CASCADE"`
}

type Session struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Course          string    `gorm:"index;not null"`
	StartTS         time.Time `gorm:"column:start_ts;index;not null"` // UTC
	EndTS           time.Time `gorm:"column:end_ts;not null"`         // UTC
	Mode            string    `gorm:"not null;default:remote"`
	Capacity        int       `gorm:"not null;check:chk_sessions_capacity,capacity > 0"`
	Location        string
	MeetLink        *string `gorm:"column:meet_link"`
	CalendarEventID *string `gorm:"column:calendar_event_id"`
	Status          string  `gorm:"index;not null;default:scheduled"`

	Enrollments []Enrollment `gorm:"constraint:OnDelete:CASCADE"`
}

// Enrollment is the only record of a booking. One per (student, session).
type Enrollment struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	StudentID     uint   `gorm:"not null;uniqueIndex:uq_enrollments_student_session"`
	SessionID     uint   `gorm:"not null;uniqueIndex:uq_enrollments_student_session;index"`
	Status        string `gorm:"not null;default:pending"`
	PaymentStatus string `gorm:"not null;default:pending"`
}

type Metric struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	StudentID uint      `gorm:"index;not null"`
	Date      time.Time `gorm:"not null"` // midnight UTC of the calendar day
	WPM       *int      `gorm:"column:wpm"`
	Accuracy  *float64
	TimeSpent *float64 `gorm:"column:time_spent"` // minutes
	Source    string
	Raw       datatypes.JSONMap
}

type Report struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	StudentID   uint      `gorm:"index;not null"`
	PeriodStart time.Time `gorm:"not null"`
	PeriodEnd   time.Time `gorm:"not null"`
	Summary     string    `gorm:"type:text;not null"`
	ArtifactURL *string   `gorm:"column:artifact_url"`
}

// All lists every model in migration order.
func All() []any {
	return []any{
		&Parent{},
		&Student{},
		&Session{},
		&Enrollment{},
		&Metric{},
		&Report{},
	}
}
