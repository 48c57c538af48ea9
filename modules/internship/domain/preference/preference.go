// Package preference models a student's ranked, once-per-period list of host
// organizations and the per-(student, period) batch that anchors it.
package preference

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type Outcome string

const (
	OutcomeUndecided    Outcome = "undecided"
	OutcomeOrganization Outcome = "organization"
	OutcomeAcademy      Outcome = "academy"
)

func ParseOutcome(s string) (Outcome, bool) {
	switch Outcome(strings.ToLower(strings.TrimSpace(s))) {
	case OutcomeUndecided:
		return OutcomeUndecided, true
	case OutcomeOrganization:
		return OutcomeOrganization, true
	case OutcomeAcademy:
		return OutcomeAcademy, true
	default:
		return "", false
	}
}

var ErrInvalidRankSequence = errors.New("preference: invalid rank sequence")

type Choice struct {
	Rank           int       `json:"rank"`
	OrganizationID uuid.UUID `json:"organization_id"`
}

// ChoicesFromRanked turns an ordered organization list into rank 1..n choices.
func ChoicesFromRanked(orgIDs []uuid.UUID) []Choice {
	out := make([]Choice, 0, len(orgIDs))
	for i, id := range orgIDs {
		out = append(out, Choice{Rank: i + 1, OrganizationID: id})
	}
	return out
}

// NormalizeChoices validates a submitted batch and returns it sorted by rank.
// Ranks must be contiguous from 1, at most maxRanks long, and name each
// organization once.
func NormalizeChoices(choices []Choice, maxRanks int) ([]Choice, error) {
	if len(choices) == 0 {
		return nil, fmt.Errorf("%w: at least one choice is required", ErrInvalidRankSequence)
	}
	if len(choices) > maxRanks {
		return nil, fmt.Errorf("%w: at most %d choices are allowed", ErrInvalidRankSequence, maxRanks)
	}

	sorted := append([]Choice(nil), choices...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	seen := make(map[uuid.UUID]struct{}, len(sorted))
	for i, c := range sorted {
		if c.Rank != i+1 {
			return nil, fmt.Errorf("%w: ranks must be contiguous from 1", ErrInvalidRankSequence)
		}
		if c.OrganizationID == uuid.Nil {
			return nil, fmt.Errorf("%w: organization_id is required at rank %d", ErrInvalidRankSequence, c.Rank)
		}
		if _, dup := seen[c.OrganizationID]; dup {
			return nil, fmt.Errorf("%w: organization %s is ranked twice", ErrInvalidRankSequence, c.OrganizationID)
		}
		seen[c.OrganizationID] = struct{}{}
	}
	return sorted, nil
}

type Preference struct {
	ID             uuid.UUID  `json:"id"`
	StudentID      uuid.UUID  `json:"student_id"`
	PeriodID       uuid.UUID  `json:"period_id"`
	Rank           int        `json:"rank"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	Status         Status     `json:"status"`
	Note           string     `json:"note,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	DecidedBy      *uuid.UUID `json:"decided_by,omitempty"`
}

func (p Preference) Pending() bool {
	return p.Status == StatusPending
}

// Batch is the per-(student, period) submission anchor. Decisions for one
// student serialize on it.
type Batch struct {
	StudentID            uuid.UUID  `json:"student_id"`
	PeriodID             uuid.UUID  `json:"period_id"`
	SubmittedAt          time.Time  `json:"submitted_at"`
	Note                 string     `json:"note,omitempty"`
	Outcome              Outcome    `json:"outcome"`
	PlacedOrganizationID *uuid.UUID `json:"placed_organization_id,omitempty"`
	DecidedAt            *time.Time `json:"decided_at,omitempty"`
	DecidedBy            *uuid.UUID `json:"decided_by,omitempty"`
}

func (b Batch) Decided() bool {
	return b.Outcome != OutcomeUndecided
}

func (b Batch) HasNote() bool {
	return strings.TrimSpace(b.Note) != ""
}

// NewBatch builds the pending rows for a normalized choice list.
func NewBatch(studentID, periodID uuid.UUID, choices []Choice, note string, now time.Time) (Batch, []Preference) {
	note = strings.TrimSpace(note)
	b := Batch{
		StudentID:   studentID,
		PeriodID:    periodID,
		SubmittedAt: now,
		Note:        note,
		Outcome:     OutcomeUndecided,
	}
	prefs := make([]Preference, 0, len(choices))
	for _, c := range choices {
		prefs = append(prefs, Preference{
			ID:             uuid.New(),
			StudentID:      studentID,
			PeriodID:       periodID,
			Rank:           c.Rank,
			OrganizationID: c.OrganizationID,
			Status:         StatusPending,
			Note:           note,
			CreatedAt:      now,
		})
	}
	return b, prefs
}
