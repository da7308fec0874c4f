// Package roster defines read access to class rosters owned by the campus
// student information system.
package roster

import (
	"context"
	"errors"
)

// ErrUnknownClass is returned when a subject is not taught to a section.
var ErrUnknownClass = errors.New("unknown subject or section")

// Person is a student enrolled in a class.
type Person struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	RollNo          string `yaml:"roll_no" json:"roll_no"`
	GuardianContact string `yaml:"guardian_contact" json:"guardian_contact,omitempty"`
}

// Class identifies a subject taught to a section.
type Class struct {
	SubjectID   string `json:"subject_id"`
	SectionID   string `json:"section_id"`
	SubjectName string `json:"subject_name"`
	SubjectCode string `json:"subject_code"`
}

// Provider resolves classes and their rosters.
type Provider interface {
	// Class returns the class or ErrUnknownClass
	Class(ctx context.Context, subjectID, sectionID string) (*Class, error)
	// Roster returns the students enrolled in the subject within the section
	Roster(ctx context.Context, subjectID, sectionID string) ([]Person, error)
}
