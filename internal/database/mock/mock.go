// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/campus-attendance/internal/database"
	"github.com/kozaktomas/campus-attendance/internal/signature"
)

// MockSignatureStore is a mock implementation of database.SignatureWriter
type MockSignatureStore struct {
	mu         sync.RWMutex
	signatures map[string]database.StoredSignature

	// Error injection
	GetError    error
	ScanError   error
	CountError  error
	PutError    error
	DeleteError error
}

// NewMockSignatureStore creates a new mock signature store
func NewMockSignatureStore() *MockSignatureStore {
	return &MockSignatureStore{
		signatures: make(map[string]database.StoredSignature),
	}
}

// AddSignature adds a signature without validation
func (m *MockSignatureStore) AddSignature(sig database.StoredSignature) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signatures[sig.PersonID] = sig
}

// Get retrieves the signature of a person
func (m *MockSignatureStore) Get(ctx context.Context, personID string) (*database.StoredSignature, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	sig, ok := m.signatures[personID]
	if !ok {
		return nil, nil
	}
	return &sig, nil
}

// Scan yields a snapshot of all signatures ordered by person ID
func (m *MockSignatureStore) Scan(ctx context.Context) iter.Seq2[database.StoredSignature, error] {
	return func(yield func(database.StoredSignature, error) bool) {
		if m.ScanError != nil {
			yield(database.StoredSignature{}, m.ScanError)
			return
		}

		m.mu.RLock()
		snapshot := make([]database.StoredSignature, 0, len(m.signatures))
		for _, sig := range m.signatures {
			snapshot = append(snapshot, sig)
		}
		m.mu.RUnlock()

		sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].PersonID < snapshot[j].PersonID })
		for _, sig := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(database.StoredSignature{}, err)
				return
			}
			if !yield(sig, nil) {
				return
			}
		}
	}
}

// Count returns the number of signatures
func (m *MockSignatureStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.signatures), nil
}

// Put stores or replaces a signature
func (m *MockSignatureStore) Put(ctx context.Context, sig database.StoredSignature) error {
	if m.PutError != nil {
		return m.PutError
	}
	if err := signature.Validate(sig.Vector); err != nil {
		return err
	}
	sig.Vector = slices.Clone(sig.Vector)
	if sig.UpdatedAt.IsZero() {
		sig.UpdatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signatures[sig.PersonID] = sig
	return nil
}

// Delete removes a signature
func (m *MockSignatureStore) Delete(ctx context.Context, personID string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.signatures, personID)
	return nil
}

type sessionKey struct {
	subject string
	section string
	date    string
}

// MockAttendanceStore is a mock implementation of database.AttendanceWriter and
// database.OutboxWriter. Check-and-insert happens under one lock so the
// per-class-per-day uniqueness holds under concurrent callers.
type MockAttendanceStore struct {
	mu         sync.RWMutex
	sessions   map[sessionKey]database.Session
	records    map[string][]database.Record
	outbox     []database.OutboxEntry
	nextOutbox int64

	// Error injection
	CreateError      error
	GetSessionError  error
	GetRecordsError  error
	PendingError     error
	MarkError        error
	CreateCalls      int
	SuccessfulWrites int
}

// NewMockAttendanceStore creates a new mock attendance store
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{
		sessions: make(map[sessionKey]database.Session),
		records:  make(map[string][]database.Record),
	}
}

func keyOf(subjectID, sectionID string, date time.Time) sessionKey {
	return sessionKey{subject: subjectID, section: sectionID, date: date.Format(database.DateLayout)}
}

// CreateSessionWithRecords stores session, records and outbox entries atomically
func (m *MockAttendanceStore) CreateSessionWithRecords(ctx context.Context, session *database.Session, records []database.Record, outbox []database.OutboxEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++

	if m.CreateError != nil {
		return m.CreateError
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := keyOf(session.SubjectID, session.SectionID, session.Date)
	if _, exists := m.sessions[key]; exists {
		return fmt.Errorf("insert session: %w", database.ErrSessionExists)
	}

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.PersonID]; dup {
			return fmt.Errorf("duplicate record for person %s", r.PersonID)
		}
		seen[r.PersonID] = struct{}{}
	}

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	m.sessions[key] = *session

	stored := make([]database.Record, len(records))
	for i, r := range records {
		r.SessionID = session.ID
		stored[i] = r
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].PersonID < stored[j].PersonID })
	m.records[session.ID] = stored

	for _, e := range outbox {
		m.nextOutbox++
		e.ID = m.nextOutbox
		e.SessionID = session.ID
		if e.Status == "" {
			e.Status = database.NotificationPending
		}
		e.CreatedAt = session.CreatedAt
		m.outbox = append(m.outbox, e)
	}

	m.SuccessfulWrites++
	return nil
}

// GetSession returns the session for the class and day
func (m *MockAttendanceStore) GetSession(ctx context.Context, subjectID, sectionID string, date time.Time) (*database.Session, error) {
	if m.GetSessionError != nil {
		return nil, m.GetSessionError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[keyOf(subjectID, sectionID, date)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// GetRecords returns the records of a session
func (m *MockAttendanceStore) GetRecords(ctx context.Context, sessionID string) ([]database.Record, error) {
	if m.GetRecordsError != nil {
		return nil, m.GetRecordsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.records[sessionID]), nil
}

// CountRecords returns the number of records of a session
func (m *MockAttendanceStore) CountRecords(ctx context.Context, sessionID string) (int, error) {
	if m.GetRecordsError != nil {
		return 0, m.GetRecordsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[sessionID]), nil
}

// SessionCount returns the number of stored sessions
func (m *MockAttendanceStore) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Outbox returns a copy of all outbox entries
func (m *MockAttendanceStore) Outbox() []database.OutboxEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.outbox)
}

// PendingNotifications returns deliverable outbox entries, oldest first
func (m *MockAttendanceStore) PendingNotifications(ctx context.Context, limit, maxAttempts int) ([]database.OutboxEntry, error) {
	if m.PendingError != nil {
		return nil, m.PendingError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []database.OutboxEntry
	for _, e := range m.outbox {
		if limit > 0 && len(result) >= limit {
			break
		}
		switch {
		case e.Status == database.NotificationPending:
			result = append(result, e)
		case e.Status == database.NotificationFailed && e.Attempts < maxAttempts:
			result = append(result, e)
		}
	}
	return result, nil
}

// MarkNotification records a delivery attempt outcome
func (m *MockAttendanceStore) MarkNotification(ctx context.Context, id int64, status database.NotificationStatus, errMsg string) error {
	if m.MarkError != nil {
		return m.MarkError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.outbox {
		if m.outbox[i].ID != id {
			continue
		}
		e := &m.outbox[i]
		e.Status = status
		e.LastError = errMsg
		if status == database.NotificationSent || status == database.NotificationFailed {
			e.Attempts++
		}
		if status == database.NotificationSent {
			now := time.Now()
			e.SentAt = &now
		}
		return nil
	}
	return fmt.Errorf("outbox entry %d not found", id)
}
