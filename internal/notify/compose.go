package notify

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/kozaktomas/campus-attendance/internal/database"
	"github.com/kozaktomas/campus-attendance/internal/roster"
)

// DefaultSubject is the subject line of absence notices.
const DefaultSubject = "Attendance Alert: Absence Notification"

//go:embed templates/absence.txt
var absenceTemplateText string

var absenceTemplate = template.Must(template.New("absence").Parse(absenceTemplateText))

type absenceData struct {
	Name      string
	RollNo    string
	Subject   string
	Date      string
	Start     string
	End       string
	Signature string
}

// Composer renders absence notices.
type Composer struct {
	Subject   string // Message subject, DefaultSubject if empty
	Signature string // Closing line
	ASCII     bool   // Strip diacritics for transports without Unicode support
}

// ComposeAbsence renders the absence notice for person in class on session.
func (c Composer) ComposeAbsence(person roster.Person, class roster.Class, session *database.Session) (subject, body string, err error) {
	subject = c.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	signature := c.Signature
	if signature == "" {
		signature = "Campus Attendance System"
	}

	subjectName := class.SubjectName
	if subjectName == "" {
		subjectName = class.SubjectID
	}

	data := absenceData{
		Name:      DisplayName(person.Name),
		RollNo:    person.RollNo,
		Subject:   DisplayName(subjectName),
		Date:      session.DateString(),
		Start:     session.StartTime,
		End:       session.EndTime,
		Signature: signature,
	}
	if c.ASCII {
		data.Name = RemoveDiacritics(data.Name)
		data.Subject = RemoveDiacritics(data.Subject)
	}

	var sb strings.Builder
	if err := absenceTemplate.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render absence notice: %w", err)
	}
	return subject, sb.String(), nil
}

// ComposeAbsence renders an absence notice with the default composer.
func ComposeAbsence(person roster.Person, class roster.Class, session *database.Session) (subject, body string, err error) {
	return Composer{}.ComposeAbsence(person, class, session)
}
