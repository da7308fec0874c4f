package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kozaktomas/campus-attendance/internal/database"
)

const (
	pgUniqueViolation       = "23505"
	sessionClassDayUniqueID = "attendance_sessions_class_day_key"
)

// AttendanceRepository provides PostgreSQL-backed attendance storage
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// isSessionConflict reports whether err is the class-per-day uniqueness violation
func isSessionConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pgUniqueViolation && pqErr.Constraint == sessionClassDayUniqueID
}

// CreateSessionWithRecords inserts the session, every record and every outbox
// entry in a single transaction. Nothing is written when any step fails.
func (r *AttendanceRepository) CreateSessionWithRecords(ctx context.Context, session *database.Session, records []database.Record, outbox []database.OutboxEntry) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO attendance_sessions (id, subject_id, section_id, session_date, start_time, end_time, created_by, method, confirmed)
		VALUES ($1, $2, $3, $4::date, $5::time, $6::time, $7, $8, $9)
		RETURNING created_at
	`, session.ID, session.SubjectID, session.SectionID, session.DateString(),
		session.StartTime, session.EndTime, session.CreatedBy, string(session.Method), session.Confirmed,
	).Scan(&session.CreatedAt)
	if err != nil {
		if isSessionConflict(err) {
			return fmt.Errorf("insert session: %w", database.ErrSessionExists)
		}
		return fmt.Errorf("insert session: %w", err)
	}

	if err := copyRecords(ctx, tx, session.ID, records); err != nil {
		return err
	}

	for _, e := range outbox {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO notification_outbox (session_id, person_id, recipient, subject, body, status)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, session.ID, e.PersonID, e.Recipient, e.Subject, e.Body, string(database.NotificationPending))
		if err != nil {
			return fmt.Errorf("insert outbox entry for %s: %w", e.PersonID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// copyRecords bulk-loads records with COPY inside the transaction
func copyRecords(ctx context.Context, tx *sql.Tx, sessionID string, records []database.Record) error {
	if len(records) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("attendance_records", "session_id", "person_id", "status", "confidence", "verified"))
	if err != nil {
		return fmt.Errorf("prepare record copy: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var confidence any
		if rec.Confidence != nil {
			confidence = *rec.Confidence
		}
		if _, err := stmt.ExecContext(ctx, sessionID, rec.PersonID, string(rec.Status), confidence, rec.Verified); err != nil {
			return fmt.Errorf("copy record %s: %w", rec.PersonID, err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flush record copy: %w", err)
	}
	return nil
}

// GetSession returns the session for the class and day, nil if none exists
func (r *AttendanceRepository) GetSession(ctx context.Context, subjectID, sectionID string, date time.Time) (*database.Session, error) {
	query := `
		SELECT id, subject_id, section_id, session_date,
			to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
			created_by, method, confirmed, created_at
		FROM attendance_sessions
		WHERE subject_id = $1 AND section_id = $2 AND session_date = $3::date
	`

	var s database.Session
	var method string
	err := r.pool.QueryRow(ctx, query, subjectID, sectionID, date.Format(database.DateLayout)).Scan(
		&s.ID, &s.SubjectID, &s.SectionID, &s.Date,
		&s.StartTime, &s.EndTime,
		&s.CreatedBy, &method, &s.Confirmed, &s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	s.Method = database.Method(method)
	s.Date = database.NormalizeDate(s.Date)
	return &s, nil
}

// GetRecords returns the records of a session ordered by person ID
func (r *AttendanceRepository) GetRecords(ctx context.Context, sessionID string) ([]database.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session_id, person_id, status, confidence, verified
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY person_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []database.Record
	for rows.Next() {
		var rec database.Record
		var status string
		var confidence sql.NullFloat64
		if err := rows.Scan(&rec.SessionID, &rec.PersonID, &status, &confidence, &rec.Verified); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Status = database.Status(status)
		if confidence.Valid {
			c := confidence.Float64
			rec.Confidence = &c
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// CountRecords returns the number of records of a session
func (r *AttendanceRepository) CountRecords(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM attendance_records WHERE session_id = $1", sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}
