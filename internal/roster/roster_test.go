package roster

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testRoster = `
students:
  - {id: s1, name: Asha Rao, roll_no: "1", guardian_contact: asha.parent@example.com}
  - {id: s2, name: Ben Okafor, roll_no: "2"}
  - {id: s3, name: Chen Li, roll_no: "3", guardian_contact: chen.parent@example.com}
classes:
  - subject: CS101
    section: A
    subject_name: Algorithms
    subject_code: CS101
    students: [s1, s2, s3]
  - subject: CS101
    section: B
    subject_name: Algorithms
    students: []
`

func TestParseFile(t *testing.T) {
	fp, err := ParseFile([]byte(testRoster))
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	ctx := context.Background()

	cls, err := fp.Class(ctx, "CS101", "A")
	if err != nil {
		t.Fatalf("Class failed: %v", err)
	}
	if cls.SubjectName != "Algorithms" {
		t.Errorf("SubjectName = %q, want %q", cls.SubjectName, "Algorithms")
	}

	people, err := fp.Roster(ctx, "CS101", "A")
	if err != nil {
		t.Fatalf("Roster failed: %v", err)
	}
	if len(people) != 3 {
		t.Fatalf("len(Roster) = %d, want 3", len(people))
	}
	if people[0].GuardianContact != "asha.parent@example.com" || people[1].GuardianContact != "" {
		t.Errorf("guardian contacts not parsed: %+v", people)
	}

	empty, err := fp.Roster(ctx, "CS101", "B")
	if err != nil {
		t.Fatalf("Roster(B) failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("len(Roster(B)) = %d, want 0", len(empty))
	}
}

func TestParseFileErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid yaml", "students: [unterminated"},
		{"student without id", "students:\n  - {name: X}\n"},
		{"unknown student", "students: []\nclasses:\n  - {subject: A, section: B, students: [ghost]}\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseFile([]byte(tc.doc)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestFileProviderUnknownClass(t *testing.T) {
	fp, err := ParseFile([]byte(testRoster))
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	ctx := context.Background()

	if _, err := fp.Class(ctx, "CS999", "A"); !errors.Is(err, ErrUnknownClass) {
		t.Errorf("Class err = %v, want ErrUnknownClass", err)
	}
	if _, err := fp.Roster(ctx, "CS101", "Z"); !errors.Is(err, ErrUnknownClass) {
		t.Errorf("Roster err = %v, want ErrUnknownClass", err)
	}
}

type countingProvider struct {
	Provider
	classCalls  int
	rosterCalls int
}

func (c *countingProvider) Class(ctx context.Context, subjectID, sectionID string) (*Class, error) {
	c.classCalls++
	return c.Provider.Class(ctx, subjectID, sectionID)
}

func (c *countingProvider) Roster(ctx context.Context, subjectID, sectionID string) ([]Person, error) {
	c.rosterCalls++
	return c.Provider.Roster(ctx, subjectID, sectionID)
}

func TestCachedProvider(t *testing.T) {
	fp, err := ParseFile([]byte(testRoster))
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	inner := &countingProvider{Provider: fp}
	cached := NewCachedProvider(inner, time.Minute)
	ctx := context.Background()

	for range 3 {
		if _, err := cached.Class(ctx, "CS101", "A"); err != nil {
			t.Fatalf("Class failed: %v", err)
		}
		people, err := cached.Roster(ctx, "CS101", "A")
		if err != nil {
			t.Fatalf("Roster failed: %v", err)
		}
		people[0].Name = "mutated"
	}
	if inner.classCalls != 1 || inner.rosterCalls != 1 {
		t.Errorf("inner calls = %d/%d, want 1/1", inner.classCalls, inner.rosterCalls)
	}

	people, _ := cached.Roster(ctx, "CS101", "A")
	if people[0].Name != "Asha Rao" {
		t.Errorf("cached roster was mutated by caller: %q", people[0].Name)
	}

	// Errors are not cached.
	for range 2 {
		if _, err := cached.Class(ctx, "nope", "A"); !errors.Is(err, ErrUnknownClass) {
			t.Errorf("err = %v, want ErrUnknownClass", err)
		}
	}
	if inner.classCalls != 3 {
		t.Errorf("inner classCalls = %d, want 3", inner.classCalls)
	}

	cached.Flush()
	if _, err := cached.Roster(ctx, "CS101", "A"); err != nil {
		t.Fatalf("Roster failed: %v", err)
	}
	if inner.rosterCalls != 2 {
		t.Errorf("inner rosterCalls after flush = %d, want 2", inner.rosterCalls)
	}
}
