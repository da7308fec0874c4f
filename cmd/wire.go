package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kozaktomas/campus-attendance/internal/attendance"
	"github.com/kozaktomas/campus-attendance/internal/config"
	"github.com/kozaktomas/campus-attendance/internal/database"
	"github.com/kozaktomas/campus-attendance/internal/database/mariadb"
	"github.com/kozaktomas/campus-attendance/internal/database/postgres"
	"github.com/kozaktomas/campus-attendance/internal/facematch"
	"github.com/kozaktomas/campus-attendance/internal/metrics"
	"github.com/kozaktomas/campus-attendance/internal/notify"
	"github.com/kozaktomas/campus-attendance/internal/roster"
)

// detectorTimeout bounds one call to the face detection service.
const detectorTimeout = 30 * time.Second

// app holds the components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	signatures      database.SignatureWriter
	signatureReader database.SignatureReader
	attendance      database.AttendanceWriter
	outbox          database.OutboxWriter

	closers []func() error
}

// newApp connects to PostgreSQL and prepares metrics.
func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	logger := slog.Default()
	logger.Debug("connecting to PostgreSQL", "module", "cmd")
	pool, err := postgres.Initialize(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.closers = append(a.closers, pool.Close)

	m, err := metrics.New(a.registry)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.metrics = m

	if a.signatures, err = database.GetSignatureWriter(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if a.signatureReader, err = database.GetSignatureReader(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if a.attendance, err = database.GetAttendanceWriter(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if a.outbox, err = database.GetOutboxWriter(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases database connections.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "module", "cmd", "error", err)
		}
	}
	a.closers = nil
}

// detector returns the HTTP face detector. The whole-image detector is used
// only when DETECTOR_WHOLE_IMAGE is set and no service is configured.
func (a *app) detector() (facematch.Detector, error) {
	switch {
	case a.cfg.Detector.URL != "":
		return facematch.NewHTTPDetector(a.cfg.Detector.URL, a.cfg.Detector.MinFaceSize, 0, detectorTimeout), nil
	case a.cfg.Detector.WholeImage:
		a.logger.Warn("DETECTOR_WHOLE_IMAGE set, treating each image as a single face", "module", "cmd")
		return facematch.StaticDetector{WholeFace: true}, nil
	default:
		return nil, errors.New("DETECTOR_URL is required (or set DETECTOR_WHOLE_IMAGE=true for single-face images)")
	}
}

func (a *app) engine(detector facematch.Detector) (*facematch.Engine, error) {
	assignment, err := facematch.ParseAssignment(a.cfg.Match.Assignment)
	if err != nil {
		return nil, err
	}
	return facematch.NewEngine(detector, a.signatures, facematch.Options{
		Assignment: assignment,
		Workers:    a.cfg.Match.Workers,
		Metrics:    a.metrics,
		Logger:     a.logger,
	}), nil
}

// rosterProvider reads rosters from MariaDB, or from a YAML file.
func (a *app) rosterProvider() (roster.Provider, error) {
	var provider roster.Provider
	switch {
	case a.cfg.Roster.DSN != "":
		pool, err := mariadb.NewPool(a.cfg.Roster.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		provider = pool
	case a.cfg.Roster.File != "":
		fp, err := roster.LoadFile(a.cfg.Roster.File)
		if err != nil {
			return nil, err
		}
		provider = fp
	default:
		return nil, errors.New("ROSTER_DSN or ROSTER_FILE environment variable is required")
	}

	if a.cfg.Roster.CacheTTL > 0 {
		provider = roster.NewCachedProvider(provider, a.cfg.Roster.CacheTTL)
	}
	return provider, nil
}

func (a *app) sender() (notify.Sender, error) {
	n := a.cfg.Notify
	return notify.NewSender(notify.Config{
		Transport:      n.Transport,
		URL:            n.URL,
		SendGridAPIKey: n.SendGridAPIKey,
		From:           n.From,
		FromName:       n.FromName,
	}, a.logger)
}

func (a *app) dispatcher() (*notify.Dispatcher, error) {
	sender, err := a.sender()
	if err != nil {
		return nil, err
	}
	return notify.NewDispatcher(a.outbox, sender, notify.DispatcherOptions{
		MaxAttempts: a.cfg.Notify.MaxAttempts,
		Metrics:     a.metrics,
		Logger:      a.logger,
	}), nil
}

func (a *app) service(matcher attendance.Matcher, notifier attendance.Notifier) (*attendance.Service, error) {
	provider, err := a.rosterProvider()
	if err != nil {
		return nil, err
	}
	loc, err := a.cfg.Attendance.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid ATTENDANCE_TIMEZONE: %w", err)
	}

	window := attendance.Window{Start: a.cfg.Attendance.Start, End: a.cfg.Attendance.End}
	controller := attendance.NewController(a.attendance, window, a.metrics, a.logger)
	return attendance.NewService(controller, provider, matcher, notifier, attendance.ServiceOptions{
		Threshold:    a.cfg.Match.Threshold,
		MatchTimeout: a.cfg.Match.Timeout,
		Location:     loc,
		Composer: notify.Composer{
			Subject:   a.cfg.Notify.Subject,
			Signature: a.cfg.Notify.Signature,
			ASCII:     a.cfg.Notify.ASCII,
		},
		Logger: a.logger,
	}), nil
}
