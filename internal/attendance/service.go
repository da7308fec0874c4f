package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kozaktomas/campus-attendance/internal/database"
	"github.com/kozaktomas/campus-attendance/internal/facematch"
	"github.com/kozaktomas/campus-attendance/internal/notify"
	"github.com/kozaktomas/campus-attendance/internal/roster"
)

// DefaultMatchTimeout bounds face matching of one submission.
const DefaultMatchTimeout = 20 * time.Second

// Matcher maps faces in an encoded image to enrolled identities.
type Matcher interface {
	MatchImage(ctx context.Context, data []byte, threshold float64) (map[string]float64, error)
}

// NoticeComposer renders the absence notice for one student.
type NoticeComposer interface {
	ComposeAbsence(person roster.Person, class roster.Class, session *database.Session) (subject, body string, err error)
}

// Notifier is signalled after a session with queued notices is committed.
type Notifier interface {
	Notify()
}

// Submission is one faculty attendance submission.
type Submission struct {
	SubjectID      string   `json:"subject" validate:"required,max=64"`
	SectionID      string   `json:"section" validate:"required,max=64"`
	Date           string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	CreatedBy      string   `json:"created_by" validate:"required,max=128"`
	ManualPresent  []string `json:"present" validate:"dive,required"`
	FallbackManual bool     `json:"fallback_manual"`
	Threshold      *float64 `json:"threshold" validate:"omitempty,gte=-1,lte=1"`
	Image          []byte   `json:"-"`
}

// Result describes a committed session.
type Result struct {
	Session       *database.Session
	Records       []database.Record
	Present       int
	Absent        int
	Method        database.Method
	Matches       map[string]float64
	Notifications int // Absence notices queued
	FallbackUsed  bool
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Threshold    float64
	MatchTimeout time.Duration
	Location     *time.Location
	Composer     NoticeComposer // notify.Composer{} if nil
	Now          func() time.Time
	Logger       *slog.Logger
}

// Service turns submissions into confirmed sessions.
type Service struct {
	controller   *Controller
	roster       roster.Provider
	matcher      Matcher
	notifier     Notifier
	threshold    float64
	matchTimeout time.Duration
	location     *time.Location
	composer     NoticeComposer
	now          func() time.Time
	validate     *validator.Validate
	logger       *slog.Logger
}

// NewService creates a submission service. matcher and notifier may be nil.
func NewService(controller *Controller, provider roster.Provider, matcher Matcher, notifier Notifier, opts ServiceOptions) *Service {
	if opts.Threshold == 0 {
		opts.Threshold = facematch.DefaultThreshold
	}
	if opts.MatchTimeout <= 0 {
		opts.MatchTimeout = DefaultMatchTimeout
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Composer == nil {
		opts.Composer = notify.Composer{}
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Service{
		controller:   controller,
		roster:       provider,
		matcher:      matcher,
		notifier:     notifier,
		threshold:    opts.Threshold,
		matchTimeout: opts.MatchTimeout,
		location:     opts.Location,
		composer:     opts.Composer,
		now:          opts.Now,
		validate:     v,
		logger:       opts.Logger.With("module", "attendance"),
	}
}

// Submit validates sub, matches faces in its image, reconciles the result
// with the roster and manual overrides and stores the session. Matching runs
// before anything is written. Notification delivery happens afterwards and
// never affects the result.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if err := s.check(sub); err != nil {
		return nil, err
	}
	date, err := s.parseDate(sub.Date)
	if err != nil {
		return nil, err
	}

	class, err := s.roster.Class(ctx, sub.SubjectID, sub.SectionID)
	if err != nil {
		return nil, fmt.Errorf("resolve class: %w", err)
	}
	members, err := s.roster.Roster(ctx, sub.SubjectID, sub.SectionID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	method := database.MethodManual
	matches := map[string]float64{}
	fallback := false
	if len(sub.Image) > 0 {
		found, err := s.match(ctx, sub.Image, s.thresholdOf(sub.Threshold))
		switch {
		case err == nil:
			method = database.MethodFace
			matches = found
		case errors.Is(err, ErrImageDecode) && sub.FallbackManual:
			fallback = true
			s.logger.Warn("face matching failed, continuing with manual attendance",
				"subject_id", sub.SubjectID,
				"section_id", sub.SectionID,
				"error", err)
		default:
			return nil, err
		}
	}

	session := s.controller.NewSession(SessionKey{SubjectID: sub.SubjectID, SectionID: sub.SectionID, Date: date}, method, sub.CreatedBy)
	records := Reconcile(session, members, matches, sub.ManualPresent)
	outbox := s.absenceNotices(session, class, members, records)

	if err := s.controller.Persist(ctx, session, records, outbox); err != nil {
		return nil, err
	}

	if len(outbox) > 0 && s.notifier != nil {
		s.notifier.Notify()
	}

	present, absent := CountStatus(records)
	return &Result{
		Session:       session,
		Records:       records,
		Present:       present,
		Absent:        absent,
		Method:        method,
		Matches:       matches,
		Notifications: len(outbox),
		FallbackUsed:  fallback,
	}, nil
}

// Preview runs face matching without storing anything.
func (s *Service) Preview(ctx context.Context, image []byte, threshold *float64) (map[string]float64, error) {
	if len(image) == 0 {
		return nil, &ValidationError{Field: "image", Reason: "required"}
	}
	if threshold != nil && (*threshold < -1 || *threshold > 1) {
		return nil, &ValidationError{Field: "threshold", Reason: "must be between -1 and 1"}
	}
	return s.match(ctx, image, s.thresholdOf(threshold))
}

// Lookup returns the stored session of a class on date (YYYY-MM-DD) with its
// records, nil if attendance was not taken.
func (s *Service) Lookup(ctx context.Context, subjectID, sectionID, date string) (*database.Session, []database.Record, error) {
	if subjectID == "" {
		return nil, nil, &ValidationError{Field: "subject", Reason: "required"}
	}
	if sectionID == "" {
		return nil, nil, &ValidationError{Field: "section", Reason: "required"}
	}
	d, err := s.parseDate(date)
	if err != nil {
		return nil, nil, err
	}
	return s.controller.Lookup(ctx, SessionKey{SubjectID: subjectID, SectionID: sectionID, Date: d})
}

func (s *Service) thresholdOf(t *float64) float64 {
	if t == nil {
		return s.threshold
	}
	return *t
}

func (s *Service) match(ctx context.Context, image []byte, threshold float64) (map[string]float64, error) {
	if s.matcher == nil {
		return nil, &ValidationError{Field: "image", Reason: "face matching is not configured"}
	}

	matchCtx, cancel := context.WithTimeout(ctx, s.matchTimeout)
	defer cancel()

	found, err := s.matcher.MatchImage(matchCtx, image, threshold)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && !errors.Is(err, ErrImageDecode) {
			return nil, fmt.Errorf("%w: %v", facematch.ErrMatchTimeout, err)
		}
		if errors.Is(err, facematch.ErrInvalidThreshold) {
			return nil, &ValidationError{Field: "threshold", Reason: err.Error()}
		}
		return nil, err
	}
	return found, nil
}

func (s *Service) parseDate(value string) (time.Time, error) {
	if value == "" {
		return database.NormalizeDate(s.now().In(s.location)), nil
	}
	d, err := time.ParseInLocation(database.DateLayout, value, s.location)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	return database.NormalizeDate(d), nil
}

// check maps validator failures to a ValidationError on the first bad field.
func (s *Service) check(sub Submission) error {
	err := s.validate.Struct(sub)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate submission: %w", err)
	}

	fe := verrs[0]
	field, _, _ := strings.Cut(fe.Field(), "[")
	reason := fe.Tag()
	switch fe.Tag() {
	case "required":
		reason = "required"
	case "datetime":
		reason = "must be YYYY-MM-DD"
	case "max":
		reason = "must be at most " + fe.Param() + " characters"
	case "gte", "lte":
		reason = "must be between -1 and 1"
	}
	return &ValidationError{Field: field, Reason: reason}
}

// absenceNotices queues one notice per ABSENT record whose student has a
// guardian contact. A notice that cannot be rendered is logged and dropped.
func (s *Service) absenceNotices(session *database.Session, class *roster.Class, members []roster.Person, records []database.Record) []database.OutboxEntry {
	people := make(map[string]roster.Person, len(members))
	for _, p := range members {
		if _, ok := people[p.ID]; !ok {
			people[p.ID] = p
		}
	}

	var outbox []database.OutboxEntry
	for _, r := range records {
		if r.Status != database.StatusAbsent {
			continue
		}
		p := people[r.PersonID]
		contact := strings.TrimSpace(p.GuardianContact)
		if contact == "" {
			continue
		}
		subject, body, err := s.composer.ComposeAbsence(p, *class, session)
		if err != nil {
			nerr := &NotificationError{PersonID: p.ID, Recipient: contact, Err: fmt.Errorf("compose absence notice: %w", err)}
			s.logger.Error("absence notice dropped", "error", nerr)
			continue
		}
		outbox = append(outbox, database.OutboxEntry{
			SessionID: session.ID,
			PersonID:  p.ID,
			Recipient: contact,
			Subject:   subject,
			Body:      body,
			Status:    database.NotificationPending,
		})
	}
	return outbox
}
