package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kozaktomas/campus-attendance/internal/database"
	"github.com/kozaktomas/campus-attendance/internal/metrics"
)

const (
	defaultMaxAttempts = 3
	defaultBatchSize   = 50
	defaultSendTimeout = 15 * time.Second
	dedupTTL           = 24 * time.Hour
)

// NotificationError describes one failed absence notice.
type NotificationError struct {
	EntryID   int64
	PersonID  string
	Recipient string
	Err       error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify guardian of %s (entry %d): %v", e.PersonID, e.EntryID, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// DrainStats counts the outcomes of one drain.
type DrainStats struct {
	Sent       int
	Failed     int
	Skipped    int
	Duplicates int
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	MaxAttempts int
	BatchSize   int
	SendTimeout time.Duration
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Dispatcher delivers queued outbox entries. Failures are logged and recorded
// on the entry; they are never returned to whoever queued the entry.
type Dispatcher struct {
	outbox      database.OutboxWriter
	sender      Sender
	maxAttempts int
	batchSize   int
	sendTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger

	// sent remembers delivered (session, person) pairs so overlapping drains
	// do not send twice.
	sent *cache.Cache

	drainMu sync.Mutex
	trigger chan struct{}
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(outbox database.OutboxWriter, sender Sender, opts DispatcherOptions) *Dispatcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		outbox:      outbox,
		sender:      sender,
		maxAttempts: opts.MaxAttempts,
		batchSize:   opts.BatchSize,
		sendTimeout: opts.SendTimeout,
		metrics:     opts.Metrics,
		logger:      opts.Logger.With("module", "notify", "transport", sender.Name()),
		sent:        cache.New(dedupTTL, time.Hour),
		trigger:     make(chan struct{}, 1),
	}
}

// Notify requests an asynchronous drain. It never blocks; requests made while
// one is already pending are coalesced.
func (d *Dispatcher) Notify() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Run drains on every Notify and, when interval is positive, periodically,
// until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.trigger:
		case <-tick:
		}
		if _, err := d.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("notification drain failed", "error", err)
		}
	}
}

// Drain delivers every deliverable entry once. Only one drain runs at a time.
// The returned error reports outbox access failures; delivery failures are
// counted in the stats.
func (d *Dispatcher) Drain(ctx context.Context) (DrainStats, error) {
	d.drainMu.Lock()
	defer d.drainMu.Unlock()

	var stats DrainStats
	processed := make(map[int64]bool)

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		entries, err := d.outbox.PendingNotifications(ctx, d.batchSize, d.maxAttempts)
		if err != nil {
			return stats, fmt.Errorf("list pending notifications: %w", err)
		}

		fresh := 0
		for _, e := range entries {
			if processed[e.ID] {
				continue
			}
			processed[e.ID] = true
			fresh++
			if err := d.deliver(ctx, e, &stats); err != nil {
				return stats, err
			}
		}
		if fresh == 0 || len(entries) < d.batchSize {
			break
		}
	}

	if stats != (DrainStats{}) {
		d.logger.Info("notifications drained",
			"sent", stats.Sent,
			"failed", stats.Failed,
			"skipped", stats.Skipped,
			"duplicates", stats.Duplicates)
	}
	return stats, nil
}

func dedupKey(e database.OutboxEntry) string {
	return e.SessionID + "/" + e.PersonID
}

// deliver sends one entry and records the outcome. Only marking errors are returned.
func (d *Dispatcher) deliver(ctx context.Context, e database.OutboxEntry, stats *DrainStats) error {
	if e.Recipient == "" {
		stats.Skipped++
		d.metrics.RecordNotification("skipped", 0)
		return d.mark(ctx, e.ID, database.NotificationSkipped, "")
	}

	key := dedupKey(e)
	if _, dup := d.sent.Get(key); dup {
		stats.Duplicates++
		d.metrics.RecordNotification("duplicate", 0)
		return d.mark(ctx, e.ID, database.NotificationSent, "")
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	start := time.Now()
	err := d.sender.Send(sendCtx, e.Recipient, e.Subject, e.Body)
	cancel()
	elapsed := time.Since(start)

	if err != nil {
		stats.Failed++
		d.metrics.RecordNotification("failed", elapsed)
		nerr := &NotificationError{EntryID: e.ID, PersonID: e.PersonID, Recipient: e.Recipient, Err: err}
		d.logger.Warn("absence notification failed",
			"session_id", e.SessionID,
			"person_id", e.PersonID,
			"attempt", e.Attempts+1,
			"max_attempts", d.maxAttempts,
			"error", nerr)
		return d.mark(ctx, e.ID, database.NotificationFailed, err.Error())
	}

	d.sent.SetDefault(key, struct{}{})
	stats.Sent++
	d.metrics.RecordNotification("sent", elapsed)
	d.logger.Debug("absence notification sent", "session_id", e.SessionID, "person_id", e.PersonID)
	return d.mark(ctx, e.ID, database.NotificationSent, "")
}

func (d *Dispatcher) mark(ctx context.Context, id int64, status database.NotificationStatus, errMsg string) error {
	if err := d.outbox.MarkNotification(ctx, id, status, errMsg); err != nil {
		return fmt.Errorf("mark notification %d: %w", id, err)
	}
	return nil
}
