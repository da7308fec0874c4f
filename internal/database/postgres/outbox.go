package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/campus-attendance/internal/database"
)

// OutboxRepository provides PostgreSQL-backed access to queued notifications
type OutboxRepository struct {
	pool *Pool
}

// NewOutboxRepository creates a new PostgreSQL outbox repository
func NewOutboxRepository(pool *Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// PendingNotifications returns deliverable entries, oldest first
func (r *OutboxRepository) PendingNotifications(ctx context.Context, limit, maxAttempts int) ([]database.OutboxEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, person_id, recipient, subject, body, status, attempts, last_error, created_at, sent_at
		FROM notification_outbox
		WHERE status = $1 OR (status = $2 AND attempts < $3)
		ORDER BY id
		LIMIT $4
	`, string(database.NotificationPending), string(database.NotificationFailed), maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending notifications: %w", err)
	}
	defer rows.Close()

	var entries []database.OutboxEntry
	for rows.Next() {
		var e database.OutboxEntry
		var status string
		var sentAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.SessionID, &e.PersonID, &e.Recipient, &e.Subject, &e.Body,
			&status, &e.Attempts, &e.LastError, &e.CreatedAt, &sentAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Status = database.NotificationStatus(status)
		if sentAt.Valid {
			e.SentAt = &sentAt.Time
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkNotification records a delivery attempt outcome
func (r *OutboxRepository) MarkNotification(ctx context.Context, id int64, status database.NotificationStatus, errMsg string) error {
	attempted := status == database.NotificationSent || status == database.NotificationFailed
	result, err := r.pool.Exec(ctx, `
		UPDATE notification_outbox SET
			status = $2,
			last_error = $3,
			attempts = attempts + CASE WHEN $4::boolean THEN 1 ELSE 0 END,
			sent_at = CASE WHEN $2::text = 'SENT' THEN NOW() ELSE sent_at END
		WHERE id = $1
	`, id, string(status), errMsg, attempted)
	if err != nil {
		return fmt.Errorf("mark notification: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("outbox entry %d not found", id)
	}
	return nil
}
