// Package period models the registration window that gates every placement
// write for a cohort.
package period

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusDraft  Status = "draft"
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusDraft:
		return StatusDraft, true
	case StatusOpen:
		return StatusOpen, true
	case StatusClosed:
		return StatusClosed, true
	default:
		return "", false
	}
}

type Period struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	OpensAt   time.Time `json:"opens_at"`
	ClosesAt  time.Time `json:"closes_at"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOpen reports whether writes are accepted at now. Both window bounds are inclusive.
func (p Period) IsOpen(now time.Time) bool {
	return p.Status == StatusOpen && p.Contains(now)
}

func (p Period) Contains(now time.Time) bool {
	return !now.Before(p.OpensAt) && !now.After(p.ClosesAt)
}

// Ended reports whether now lies past the closing timestamp.
func (p Period) Ended(now time.Time) bool {
	return now.After(p.ClosesAt)
}

// ValidWindow reports whether the window is non-empty.
func ValidWindow(opensAt, closesAt time.Time) bool {
	return !opensAt.IsZero() && closesAt.After(opensAt)
}
