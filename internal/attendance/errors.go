// Package attendance reconciles automatic face matches with manual overrides
// into one confirmed attendance session per class and day.
package attendance

import (
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/campus-attendance/internal/database"
	"github.com/kozaktomas/campus-attendance/internal/facematch"
	"github.com/kozaktomas/campus-attendance/internal/notify"
	"github.com/kozaktomas/campus-attendance/internal/roster"
)

var (
	// ErrImageDecode is returned when the submitted image is unusable,
	// including when matching times out.
	ErrImageDecode = facematch.ErrImageDecode

	// ErrUnknownClass is returned when the subject is not taught to the section.
	ErrUnknownClass = roster.ErrUnknownClass
)

// ValidationError reports a malformed or missing submission field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports that attendance was already recorded for the class
// on that day.
type ConflictError struct {
	SubjectID string
	SectionID string
	Date      time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("attendance already marked for subject %s section %s on %s",
		e.SubjectID, e.SectionID, e.Date.Format(database.DateLayout))
}

// Unwrap lets errors.Is match database.ErrSessionExists.
func (e *ConflictError) Unwrap() error {
	return database.ErrSessionExists
}

// NotificationError reports a failed absence notice. It is logged by the
// dispatcher and never returned from a submission.
type NotificationError = notify.NotificationError

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
