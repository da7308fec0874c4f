//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/campus-attendance/internal/config"
	"github.com/kozaktomas/campus-attendance/internal/database"
	"github.com/kozaktomas/campus-attendance/internal/signature"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if _, err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testVector(seed int) []float32 {
	vec := make([]float32, signature.Dim)
	for i := range vec {
		vec[i] = float32((i+seed)%255) / 255.0
	}
	return vec
}

func TestSignatureRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewSignatureRepository(pool)

	t.Run("PutAndGet", func(t *testing.T) {
		err := repo.Put(ctx, database.StoredSignature{PersonID: "s1", Vector: testVector(1), SourceImage: "s1.jpg"})
		if err != nil {
			t.Fatalf("Failed to put signature: %v", err)
		}

		got, err := repo.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("Failed to get signature: %v", err)
		}
		if got == nil {
			t.Fatal("Expected signature, got nil")
		}
		if len(got.Vector) != signature.Dim {
			t.Errorf("Expected %d dimensions, got %d", signature.Dim, len(got.Vector))
		}
		if got.SourceImage != "s1.jpg" {
			t.Errorf("Expected source 's1.jpg', got '%s'", got.SourceImage)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := repo.Get(ctx, "nobody")
		if err != nil {
			t.Fatalf("Failed to get signature: %v", err)
		}
		if got != nil {
			t.Errorf("Expected nil, got %+v", got)
		}
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		if err := repo.Put(ctx, database.StoredSignature{PersonID: "s1", Vector: testVector(7), SourceImage: "s1-new.jpg"}); err != nil {
			t.Fatalf("Failed to put signature: %v", err)
		}
		got, err := repo.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("Failed to get signature: %v", err)
		}
		if got.SourceImage != "s1-new.jpg" {
			t.Errorf("Expected overwritten source, got '%s'", got.SourceImage)
		}
		if sim := signature.CosineSimilarity(got.Vector, testVector(7)); sim < 0.9999 {
			t.Errorf("Expected stored vector to match last write, similarity %f", sim)
		}
	})

	t.Run("RejectsWrongDimension", func(t *testing.T) {
		err := repo.Put(ctx, database.StoredSignature{PersonID: "bad", Vector: make([]float32, 512)})
		if !errors.Is(err, signature.ErrDimension) {
			t.Errorf("Expected ErrDimension, got %v", err)
		}
	})

	t.Run("ScanPaginates", func(t *testing.T) {
		for i := range scanPageSize + 10 {
			id := fmt.Sprintf("p%04d", i)
			if err := repo.Put(ctx, database.StoredSignature{PersonID: id, Vector: testVector(i)}); err != nil {
				t.Fatalf("Failed to put %s: %v", id, err)
			}
		}

		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}

		for pass := range 2 {
			seen := 0
			last := ""
			for sig, err := range repo.Scan(ctx) {
				if err != nil {
					t.Fatalf("Scan failed: %v", err)
				}
				if sig.PersonID <= last {
					t.Fatalf("Scan out of order: %s after %s", sig.PersonID, last)
				}
				last = sig.PersonID
				seen++
			}
			if seen != count {
				t.Errorf("Pass %d: scanned %d signatures, count is %d", pass, seen, count)
			}
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(ctx, "s1"); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		got, _ := repo.Get(ctx, "s1")
		if got != nil {
			t.Error("Expected signature to be deleted")
		}
	})
}

func newTestSession(subject, section string, date time.Time) *database.Session {
	return &database.Session{
		ID:        uuid.NewString(),
		SubjectID: subject,
		SectionID: section,
		Date:      date,
		StartTime: "09:00",
		EndTime:   "10:00",
		CreatedBy: "faculty-1",
		Method:    database.MethodFace,
		Confirmed: true,
	}
}

func TestAttendanceRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewAttendanceRepository(pool)
	outbox := NewOutboxRepository(pool)
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	conf := 0.97
	records := []database.Record{
		{PersonID: "s1", Status: database.StatusPresent, Confidence: &conf, Verified: true},
		{PersonID: "s2", Status: database.StatusAbsent, Verified: true},
	}
	entries := []database.OutboxEntry{
		{PersonID: "s2", Recipient: "parent@example.com", Subject: "Attendance Alert", Body: "absent"},
	}

	session := newTestSession("CS101", "A", day)

	t.Run("CreateAndRead", func(t *testing.T) {
		if err := repo.CreateSessionWithRecords(ctx, session, records, entries); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if session.CreatedAt.IsZero() {
			t.Error("Expected CreatedAt to be set")
		}

		got, err := repo.GetSession(ctx, "CS101", "A", day)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if got == nil || got.ID != session.ID {
			t.Fatalf("Expected session %s, got %+v", session.ID, got)
		}
		if got.StartTime != "09:00" || got.EndTime != "10:00" {
			t.Errorf("Expected 09:00-10:00, got %s-%s", got.StartTime, got.EndTime)
		}
		if got.DateString() != "2024-01-15" {
			t.Errorf("Expected date 2024-01-15, got %s", got.DateString())
		}

		recs, err := repo.GetRecords(ctx, session.ID)
		if err != nil {
			t.Fatalf("Failed to get records: %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(recs))
		}
		if recs[0].Confidence == nil || *recs[0].Confidence != 0.97 {
			t.Errorf("Expected confidence 0.97 for s1, got %v", recs[0].Confidence)
		}
		if recs[1].Confidence != nil {
			t.Errorf("Expected no confidence for s2, got %v", *recs[1].Confidence)
		}
	})

	t.Run("DuplicateIsConflict", func(t *testing.T) {
		err := repo.CreateSessionWithRecords(ctx, newTestSession("CS101", "A", day), records, nil)
		if !errors.Is(err, database.ErrSessionExists) {
			t.Fatalf("Expected ErrSessionExists, got %v", err)
		}
		count, err := repo.CountRecords(ctx, session.ID)
		if err != nil {
			t.Fatalf("Failed to count records: %v", err)
		}
		if count != 2 {
			t.Errorf("Expected 2 records after conflict, got %d", count)
		}
	})

	t.Run("ConcurrentExactlyOnce", func(t *testing.T) {
		other := day.AddDate(0, 0, 1)
		const workers = 8

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- repo.CreateSessionWithRecords(ctx, newTestSession("CS101", "A", other), records, nil)
			}()
		}
		wg.Wait()
		close(errs)

		succeeded, conflicts := 0, 0
		for err := range errs {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, database.ErrSessionExists):
				conflicts++
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}
		if succeeded != 1 || conflicts != workers-1 {
			t.Errorf("Expected 1 success and %d conflicts, got %d and %d", workers-1, succeeded, conflicts)
		}
	})

	t.Run("FailedBatchRollsBack", func(t *testing.T) {
		other := day.AddDate(0, 0, 2)
		dup := []database.Record{
			{PersonID: "s1", Status: database.StatusAbsent},
			{PersonID: "s1", Status: database.StatusAbsent},
		}
		if err := repo.CreateSessionWithRecords(ctx, newTestSession("CS101", "A", other), dup, nil); err == nil {
			t.Fatal("Expected error for duplicate records")
		}
		got, err := repo.GetSession(ctx, "CS101", "A", other)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if got != nil {
			t.Error("Expected no session after rollback")
		}
	})

	t.Run("Outbox", func(t *testing.T) {
		pending, err := outbox.PendingNotifications(ctx, 10, 3)
		if err != nil {
			t.Fatalf("Failed to list pending: %v", err)
		}
		if len(pending) != 1 {
			t.Fatalf("Expected 1 pending entry, got %d", len(pending))
		}
		if pending[0].SessionID != session.ID || pending[0].Recipient != "parent@example.com" {
			t.Errorf("Unexpected entry %+v", pending[0])
		}

		id := pending[0].ID
		for range 3 {
			if err := outbox.MarkNotification(ctx, id, database.NotificationFailed, "smtp down"); err != nil {
				t.Fatalf("Failed to mark: %v", err)
			}
		}
		pending, err = outbox.PendingNotifications(ctx, 10, 3)
		if err != nil {
			t.Fatalf("Failed to list pending: %v", err)
		}
		if len(pending) != 0 {
			t.Errorf("Expected exhausted entry to be excluded, got %d", len(pending))
		}

		if err := outbox.MarkNotification(ctx, 999999, database.NotificationSent, ""); err == nil {
			t.Error("Expected error for unknown entry")
		}
	})
}

func TestAppliedMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	versions, err := pool.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("Failed to list migrations: %v", err)
	}
	if len(versions) == 0 || versions[0] != "001_init.sql" {
		t.Errorf("Expected 001_init.sql to be applied, got %v", versions)
	}

	// A second run is a no-op.
	again, err := pool.Migrate(ctx)
	if err != nil {
		t.Fatalf("Second migrate failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("Second migrate applied %v, want nothing", again)
	}
}
