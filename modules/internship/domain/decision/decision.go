// Package decision is the append-only journal of reviewer actions.
package decision

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindApprove Kind = "approve"
	KindReject  Kind = "reject"
	KindAcademy Kind = "academy"
)

// Reasons recorded by the engine itself. Reviewer-supplied reasons are free text.
const (
	ReasonCascade = "cascade"
	ReasonAcademy = "academy_override"
)

type Entry struct {
	ID           uuid.UUID  `json:"id"`
	PeriodID     uuid.UUID  `json:"period_id"`
	StudentID    uuid.UUID  `json:"student_id"`
	PreferenceID *uuid.UUID `json:"preference_id,omitempty"`
	Kind         Kind       `json:"kind"`
	ReviewerID   uuid.UUID  `json:"reviewer_id"`
	Reason       string     `json:"reason,omitempty"`
	DecidedAt    time.Time  `json:"decided_at"`
}

func NewEntry(periodID, studentID uuid.UUID, preferenceID *uuid.UUID, kind Kind, reviewerID uuid.UUID, reason string, at time.Time) Entry {
	return Entry{
		ID:           uuid.New(),
		PeriodID:     periodID,
		StudentID:    studentID,
		PreferenceID: preferenceID,
		Kind:         kind,
		ReviewerID:   reviewerID,
		Reason:       reason,
		DecidedAt:    at,
	}
}
