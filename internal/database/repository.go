package database

import (
	"context"
	"iter"
	"time"
)

// SignatureReader provides read-only access to enrolled face signatures
type SignatureReader interface {
	// Get retrieves the signature of a person, returns nil if not enrolled
	Get(ctx context.Context, personID string) (*StoredSignature, error)
	// Scan yields every stored signature. The sequence is finite and can be
	// ranged over again to restart from the beginning.
	Scan(ctx context.Context) iter.Seq2[StoredSignature, error]
	// Count returns the number of enrolled signatures
	Count(ctx context.Context) (int, error)
}

// SignatureWriter provides write access to face signatures
type SignatureWriter interface {
	SignatureReader

	// Put stores a signature, replacing any existing one for the same person
	Put(ctx context.Context, sig StoredSignature) error
	// Delete removes the signature of a person
	Delete(ctx context.Context, personID string) error
}

// AttendanceReader provides read-only access to attendance sessions
type AttendanceReader interface {
	// GetSession returns the session for the class and day, nil if none exists
	GetSession(ctx context.Context, subjectID, sectionID string, date time.Time) (*Session, error)
	// GetRecords returns the records of a session ordered by person ID
	GetRecords(ctx context.Context, sessionID string) ([]Record, error)
	// CountRecords returns the number of records of a session
	CountRecords(ctx context.Context, sessionID string) (int, error)
}

// AttendanceWriter provides write access to attendance sessions
type AttendanceWriter interface {
	AttendanceReader

	// CreateSessionWithRecords stores the session, its records and outbox entries
	// atomically. Returns ErrSessionExists if the class already has a session that day.
	CreateSessionWithRecords(ctx context.Context, session *Session, records []Record, outbox []OutboxEntry) error
}

// OutboxWriter provides access to queued notifications
type OutboxWriter interface {
	// PendingNotifications returns up to limit entries that are PENDING, or FAILED
	// with fewer than maxAttempts attempts, oldest first
	PendingNotifications(ctx context.Context, limit, maxAttempts int) ([]OutboxEntry, error)
	// MarkNotification records a delivery attempt outcome
	MarkNotification(ctx context.Context, id int64, status NotificationStatus, errMsg string) error
}
