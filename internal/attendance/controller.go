package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/campus-attendance/internal/database"
	"github.com/kozaktomas/campus-attendance/internal/metrics"
)

// SessionKey identifies the single session a class may have on a day.
type SessionKey struct {
	SubjectID string
	SectionID string
	Date      time.Time
}

// Window is the scheduled time range recorded on new sessions.
type Window struct {
	Start string // HH:MM
	End   string // HH:MM
}

// DefaultWindow is used when no window is configured.
var DefaultWindow = Window{Start: "09:00", End: "10:00"}

// Controller creates sessions. A session moves from not existing to created
// exactly once per key; there is no update path.
type Controller struct {
	store   database.AttendanceWriter
	window  Window
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewController creates a session controller.
func NewController(store database.AttendanceWriter, window Window, m *metrics.Metrics, logger *slog.Logger) *Controller {
	if window.Start == "" || window.End == "" {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:   store,
		window:  window,
		metrics: m,
		logger:  logger.With("module", "attendance"),
	}
}

// NewSession builds an unsaved confirmed session for key.
func (c *Controller) NewSession(key SessionKey, method database.Method, createdBy string) *database.Session {
	return &database.Session{
		ID:        uuid.NewString(),
		SubjectID: key.SubjectID,
		SectionID: key.SectionID,
		Date:      database.NormalizeDate(key.Date),
		StartTime: c.window.Start,
		EndTime:   c.window.End,
		CreatedBy: createdBy,
		Method:    method,
		Confirmed: true,
	}
}

// Persist stores session with its records and outbox entries in one
// transaction. A second session for the same key fails with *ConflictError
// and writes nothing.
func (c *Controller) Persist(ctx context.Context, session *database.Session, records []database.Record, outbox []database.OutboxEntry) error {
	for i := range records {
		records[i].SessionID = session.ID
	}
	for i := range outbox {
		outbox[i].SessionID = session.ID
	}

	err := c.store.CreateSessionWithRecords(ctx, session, records, outbox)
	if errors.Is(err, database.ErrSessionExists) {
		c.metrics.RecordConflict()
		c.logger.Info("duplicate attendance submission rejected",
			"subject_id", session.SubjectID,
			"section_id", session.SectionID,
			"date", session.DateString(),
			"created_by", session.CreatedBy)
		return &ConflictError{SubjectID: session.SubjectID, SectionID: session.SectionID, Date: session.Date}
	}
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	present, absent := CountStatus(records)
	c.metrics.RecordSession(string(session.Method), present, absent)
	c.logger.Info("attendance session created",
		"session_id", session.ID,
		"subject_id", session.SubjectID,
		"section_id", session.SectionID,
		"date", session.DateString(),
		"method", string(session.Method),
		"present", present,
		"absent", absent)
	return nil
}

// CreateSession builds and persists a session in one step.
func (c *Controller) CreateSession(ctx context.Context, key SessionKey, method database.Method, createdBy string, records []database.Record, outbox []database.OutboxEntry) (*database.Session, error) {
	session := c.NewSession(key, method, createdBy)
	if err := c.Persist(ctx, session, records, outbox); err != nil {
		return nil, err
	}
	return session, nil
}

// Lookup returns a stored session and its records, nil if none exists.
func (c *Controller) Lookup(ctx context.Context, key SessionKey) (*database.Session, []database.Record, error) {
	session, err := c.store.GetSession(ctx, key.SubjectID, key.SectionID, database.NormalizeDate(key.Date))
	if err != nil {
		return nil, nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, nil, nil
	}
	records, err := c.store.GetRecords(ctx, session.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("get records: %w", err)
	}
	return session, records, nil
}
