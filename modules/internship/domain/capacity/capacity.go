// Package capacity holds the slot accounts that bound how many students a
// host organization or a guiding staff member takes per period.
package capacity

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SubjectKind string

const (
	KindEnterprise SubjectKind = "enterprise"
	KindStaff      SubjectKind = "staff"
)

func ParseSubjectKind(s string) (SubjectKind, bool) {
	switch SubjectKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindEnterprise:
		return KindEnterprise, true
	case KindStaff:
		return KindStaff, true
	default:
		return "", false
	}
}

var (
	ErrNotAccepting = errors.New("capacity: subject is not accepting")
	ErrFull         = errors.New("capacity: no slots left")
)

type Key struct {
	PeriodID  uuid.UUID   `json:"period_id"`
	Kind      SubjectKind `json:"subject_kind"`
	SubjectID uuid.UUID   `json:"subject_id"`
}

func NewKey(periodID uuid.UUID, kind SubjectKind, subjectID uuid.UUID) Key {
	return Key{PeriodID: periodID, Kind: kind, SubjectID: subjectID}
}

type Account struct {
	Key
	MaxSlots  int       `json:"max_slots"`
	UsedSlots int       `json:"used_slots"`
	Accepting bool      `json:"accepting"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a Account) Remaining() int {
	if a.UsedSlots >= a.MaxSlots {
		return 0
	}
	return a.MaxSlots - a.UsedSlots
}

// CheckAdmit returns nil when one more slot can be taken.
func (a Account) CheckAdmit() error {
	if !a.Accepting {
		return ErrNotAccepting
	}
	if a.UsedSlots >= a.MaxSlots {
		return ErrFull
	}
	return nil
}

// Valid reports whether 0 <= used <= max holds.
func (a Account) Valid() bool {
	return a.UsedSlots >= 0 && a.UsedSlots <= a.MaxSlots
}
