package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/kozaktomas/campus-attendance/internal/roster"
)

var _ roster.Provider = (*Pool)(nil)

// Class returns the subject if it is scheduled for the section.
func (p *Pool) Class(ctx context.Context, subjectID, sectionID string) (*roster.Class, error) {
	query := `
		SELECT s.id, s.subject_code, s.subject_name
		FROM academics_subject s
		WHERE s.id = ?
		  AND EXISTS (
			SELECT 1 FROM academics_classschedule cs
			WHERE cs.subject_id = s.id AND cs.section_id = ?
		  )`

	var id int64
	cls := roster.Class{SectionID: sectionID}
	err := p.db.QueryRowContext(ctx, query, subjectID, sectionID).Scan(&id, &cls.SubjectCode, &cls.SubjectName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, roster.ErrUnknownClass
	}
	if err != nil {
		return nil, fmt.Errorf("query class: %w", err)
	}
	cls.SubjectID = strconv.FormatInt(id, 10)
	return &cls, nil
}

// Roster returns the students enrolled in the subject whose profile belongs
// to the section, ordered by roll number.
func (p *Pool) Roster(ctx context.Context, subjectID, sectionID string) ([]roster.Person, error) {
	if _, err := p.Class(ctx, subjectID, sectionID); err != nil {
		return nil, err
	}

	query := `
		SELECT u.user_id, sp.name, sp.roll_no, COALESCE(sp.parent_contact, '')
		FROM academics_enrollment e
		JOIN accounts_user u ON u.user_id = e.student_id
		JOIN accounts_studentprofile sp ON sp.user_id = u.user_id
		WHERE e.subject_id = ? AND sp.section_id = ?
		ORDER BY sp.roll_no, u.user_id`

	rows, err := p.db.QueryContext(ctx, query, subjectID, sectionID)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	var people []roster.Person
	for rows.Next() {
		var rollNo int64
		var person roster.Person
		if err := rows.Scan(&person.ID, &person.Name, &rollNo, &person.GuardianContact); err != nil {
			return nil, fmt.Errorf("scan roster row: %w", err)
		}
		person.RollNo = strconv.FormatInt(rollNo, 10)
		people = append(people, person)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster: %w", err)
	}
	return people, nil
}
