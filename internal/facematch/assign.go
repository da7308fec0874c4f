package facematch

import (
	"fmt"
	"sort"
	"strings"
)

// Assignment selects how detected faces are mapped to enrolled people.
type Assignment string

const (
	// AssignGreedy consumes each face and each person at most once, taking
	// pairs in order of descending similarity.
	AssignGreedy Assignment = "greedy"

	// AssignIndependent picks the best person for every face on its own. A
	// person matched by several faces keeps the highest confidence.
	AssignIndependent Assignment = "independent"
)

// ParseAssignment parses an assignment mode name.
func ParseAssignment(s string) (Assignment, error) {
	switch Assignment(strings.ToLower(strings.TrimSpace(s))) {
	case AssignGreedy, "":
		return AssignGreedy, nil
	case AssignIndependent:
		return AssignIndependent, nil
	default:
		return "", fmt.Errorf("unknown assignment mode %q", s)
	}
}

// candidate is a (face, person) pair at or above the threshold.
type candidate struct {
	face       int
	personID   string
	similarity float64
}

// sortCandidates orders by similarity descending, then face index, then person ID.
func sortCandidates(cands []candidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.similarity != b.similarity {
			return a.similarity > b.similarity
		}
		if a.face != b.face {
			return a.face < b.face
		}
		return a.personID < b.personID
	})
}

// assignGreedy returns person -> similarity with every face and person used once.
func assignGreedy(perFace [][]candidate) map[string]float64 {
	var all []candidate
	for _, cands := range perFace {
		all = append(all, cands...)
	}
	sortCandidates(all)

	usedFaces := make(map[int]bool, len(perFace))
	matches := make(map[string]float64)
	for _, c := range all {
		if usedFaces[c.face] {
			continue
		}
		if _, taken := matches[c.personID]; taken {
			continue
		}
		usedFaces[c.face] = true
		matches[c.personID] = c.similarity
	}
	return matches
}

// assignIndependent returns person -> similarity using the best person per face.
func assignIndependent(perFace [][]candidate) map[string]float64 {
	matches := make(map[string]float64)
	for _, cands := range perFace {
		if len(cands) == 0 {
			continue
		}
		sorted := append([]candidate(nil), cands...)
		sortCandidates(sorted)
		best := sorted[0]
		if prev, ok := matches[best.personID]; !ok || best.similarity > prev {
			matches[best.personID] = best.similarity
		}
	}
	return matches
}
