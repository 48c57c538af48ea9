package assignment

import (
	"time"

	"github.com/google/uuid"
)

// Assignment binds a student to a guiding staff member for one period. A
// replaced row is kept for audit; at most one row per pair is live.
type Assignment struct {
	ID         uuid.UUID  `json:"id"`
	StudentID  uuid.UUID  `json:"student_id"`
	PeriodID   uuid.UUID  `json:"period_id"`
	StaffID    uuid.UUID  `json:"staff_id"`
	AssignedAt time.Time  `json:"assigned_at"`
	ReplacedAt *time.Time `json:"replaced_at,omitempty"`
}

func (a Assignment) Live() bool {
	return a.ReplacedAt == nil
}
