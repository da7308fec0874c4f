package roster

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileClass is one class entry of a roster file.
type fileClass struct {
	Subject     string   `yaml:"subject"`
	Section     string   `yaml:"section"`
	SubjectName string   `yaml:"subject_name"`
	SubjectCode string   `yaml:"subject_code"`
	Students    []string `yaml:"students"`
}

type rosterFile struct {
	Students []Person    `yaml:"students"`
	Classes  []fileClass `yaml:"classes"`
}

type classKey struct{ subject, section string }

// FileProvider serves rosters from a static YAML document.
type FileProvider struct {
	classes map[classKey]Class
	members map[classKey][]Person
}

// LoadFile reads a roster YAML file.
func LoadFile(path string) (*FileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile parses a roster YAML document of the form
//
//	students:
//	  - {id: s1, name: Asha, roll_no: "1", guardian_contact: parent@example.com}
//	classes:
//	  - {subject: CS101, section: A, subject_name: Algorithms, students: [s1]}
func ParseFile(data []byte) (*FileProvider, error) {
	var doc rosterFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse roster file: %w", err)
	}

	people := make(map[string]Person, len(doc.Students))
	for _, p := range doc.Students {
		if p.ID == "" {
			return nil, fmt.Errorf("roster file: student without id")
		}
		people[p.ID] = p
	}

	fp := &FileProvider{
		classes: make(map[classKey]Class, len(doc.Classes)),
		members: make(map[classKey][]Person, len(doc.Classes)),
	}
	for _, c := range doc.Classes {
		key := classKey{c.Subject, c.Section}
		fp.classes[key] = Class{
			SubjectID:   c.Subject,
			SectionID:   c.Section,
			SubjectName: c.SubjectName,
			SubjectCode: c.SubjectCode,
		}
		for _, id := range c.Students {
			p, ok := people[id]
			if !ok {
				return nil, fmt.Errorf("roster file: class %s/%s references unknown student %q", c.Subject, c.Section, id)
			}
			fp.members[key] = append(fp.members[key], p)
		}
	}
	return fp, nil
}

// Class returns the class or ErrUnknownClass
func (f *FileProvider) Class(ctx context.Context, subjectID, sectionID string) (*Class, error) {
	c, ok := f.classes[classKey{subjectID, sectionID}]
	if !ok {
		return nil, ErrUnknownClass
	}
	return &c, nil
}

// Roster returns the students of a class
func (f *FileProvider) Roster(ctx context.Context, subjectID, sectionID string) ([]Person, error) {
	key := classKey{subjectID, sectionID}
	if _, ok := f.classes[key]; !ok {
		return nil, ErrUnknownClass
	}
	return append([]Person(nil), f.members[key]...), nil
}
