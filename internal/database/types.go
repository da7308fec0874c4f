package database

import (
	"errors"
	"time"
)

// DateLayout is the calendar-day format used for session dates.
const DateLayout = "2006-01-02"

// ErrSessionExists is returned when a session for the same subject, section and
// date has already been stored.
var ErrSessionExists = errors.New("attendance session already exists")

// Status is the attendance outcome of one roster member.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
)

// Method records how a session was produced.
type Method string

const (
	MethodManual Method = "MANUAL"
	MethodFace   Method = "FACE"
)

// NotificationStatus is the delivery state of an outbox entry.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
	NotificationSkipped NotificationStatus = "SKIPPED"
)

// StoredSignature is the enrolled face signature of one person.
type StoredSignature struct {
	PersonID    string
	Vector      []float32
	SourceImage string // Reference to the enrollment image (path or upload name)
	UpdatedAt   time.Time
}

// Session is one confirmed attendance session.
type Session struct {
	ID        string
	SubjectID string
	SectionID string
	Date      time.Time // Calendar day, time part is zero
	StartTime string    // HH:MM
	EndTime   string    // HH:MM
	CreatedBy string
	Method    Method
	Confirmed bool
	CreatedAt time.Time
}

// DateString returns the session date in DateLayout.
func (s *Session) DateString() string {
	return s.Date.Format(DateLayout)
}

// Record is the attendance of one roster member in a session.
type Record struct {
	SessionID  string
	PersonID   string
	Status     Status
	Confidence *float64 // Set only when the person was matched automatically
	Verified   bool
}

// OutboxEntry is a pending absence notification written with the session.
type OutboxEntry struct {
	ID        int64
	SessionID string
	PersonID  string
	Recipient string
	Subject   string
	Body      string
	Status    NotificationStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	SentAt    *time.Time
}

// NormalizeDate truncates t to its calendar day in UTC, keeping the wall date.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
