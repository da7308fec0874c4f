package attendance

import (
	"github.com/kozaktomas/campus-attendance/internal/database"
	"github.com/kozaktomas/campus-attendance/internal/roster"
)

// Reconcile produces exactly one record per roster member. Everyone starts
// ABSENT. An automatic match marks the person PRESENT with its confidence and
// a manual override marks them PRESENT regardless, leaving any confidence as
// is. Identities outside the roster are ignored and duplicate roster entries
// keep the first occurrence.
func Reconcile(session *database.Session, members []roster.Person, autoMatches map[string]float64, manualOverrides []string) []database.Record {
	manual := make(map[string]struct{}, len(manualOverrides))
	for _, id := range manualOverrides {
		manual[id] = struct{}{}
	}

	sessionID := ""
	if session != nil {
		sessionID = session.ID
	}

	seen := make(map[string]struct{}, len(members))
	records := make([]database.Record, 0, len(members))
	for _, p := range members {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}

		rec := database.Record{
			SessionID: sessionID,
			PersonID:  p.ID,
			Status:    database.StatusAbsent,
			Verified:  true,
		}
		if conf, ok := autoMatches[p.ID]; ok {
			c := conf
			rec.Status = database.StatusPresent
			rec.Confidence = &c
		}
		if _, ok := manual[p.ID]; ok {
			rec.Status = database.StatusPresent
		}
		records = append(records, rec)
	}
	return records
}

// CountStatus returns the number of PRESENT and ABSENT records.
func CountStatus(records []database.Record) (present, absent int) {
	for _, r := range records {
		if r.Status == database.StatusPresent {
			present++
		} else {
			absent++
		}
	}
	return present, absent
}
