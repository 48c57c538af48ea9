package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fit-portal/placement/modules/internship/domain/assignment"
	"github.com/fit-portal/placement/modules/internship/domain/capacity"
	"github.com/fit-portal/placement/modules/internship/domain/decision"
	"github.com/fit-portal/placement/modules/internship/domain/events"
	"github.com/fit-portal/placement/modules/internship/domain/period"
	"github.com/fit-portal/placement/modules/internship/domain/preference"
	"github.com/fit-portal/placement/modules/internship/domain/student"
)

// Transactor runs fn as one unit of work. Repositories called with the
// context handed to fn join that unit.
type Transactor interface {
	InTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// SnapshotReader is implemented by transactors that can run read-only work
// against a single consistent snapshot.
type SnapshotReader interface {
	InSnapshot(ctx context.Context, fn func(txCtx context.Context) error) error
}

type PeriodRepository interface {
	Create(ctx context.Context, p period.Period) error
	Get(ctx context.Context, id uuid.UUID) (period.Period, bool, error)
	List(ctx context.Context) ([]period.Period, error)
	SetStatus(ctx context.Context, id uuid.UUID, status period.Status, at time.Time) error
}

// CapacityRepository mutates accounts only through conditional single-row
// updates. A false result means the condition did not hold (or the account
// is missing); callers re-read to classify.
type CapacityRepository interface {
	Create(ctx context.Context, acc capacity.Account) error
	Get(ctx context.Context, key capacity.Key) (capacity.Account, bool, error)
	List(ctx context.Context, periodID uuid.UUID, kind *capacity.SubjectKind) ([]capacity.Account, error)
	TryAdmit(ctx context.Context, key capacity.Key, at time.Time) (capacity.Account, bool, error)
	Release(ctx context.Context, key capacity.Key, at time.Time) (capacity.Account, bool, error)
	Resize(ctx context.Context, key capacity.Key, maxSlots int, at time.Time) (capacity.Account, bool, error)
	SetAccepting(ctx context.Context, key capacity.Key, accepting bool, at time.Time) (capacity.Account, bool, error)
}

type AssignmentRepository interface {
	Live(ctx context.Context, studentID, periodID uuid.UUID) (assignment.Assignment, bool, error)
	// LockLive is Live under a row lock for the rest of the unit of work.
	LockLive(ctx context.Context, studentID, periodID uuid.UUID) (assignment.Assignment, bool, error)
	History(ctx context.Context, studentID, periodID uuid.UUID) ([]assignment.Assignment, error)
	MarkReplaced(ctx context.Context, id uuid.UUID, at time.Time) error
	Insert(ctx context.Context, a assignment.Assignment) error
}

type PreferenceRepository interface {
	InsertBatch(ctx context.Context, b preference.Batch, prefs []preference.Preference) error
	GetBatch(ctx context.Context, studentID, periodID uuid.UUID) (preference.Batch, bool, error)
	// LockBatch serializes decisions for one student.
	LockBatch(ctx context.Context, studentID, periodID uuid.UUID) (preference.Batch, bool, error)
	UpdateOutcome(ctx context.Context, b preference.Batch) error
	ListBatches(ctx context.Context, periodID uuid.UUID) ([]preference.Batch, error)

	Get(ctx context.Context, id uuid.UUID) (preference.Preference, bool, error)
	ListFor(ctx context.Context, studentID, periodID uuid.UUID) ([]preference.Preference, error)
	ListByPeriod(ctx context.Context, periodID uuid.UUID) ([]preference.Preference, error)
	// Transition moves id from one status to another and reports whether it did.
	Transition(ctx context.Context, id uuid.UUID, from, to preference.Status, at time.Time, by uuid.UUID) (bool, error)
	// RejectPending rejects every pending row of the pair except keep and
	// returns the rejected ids in rank order.
	RejectPending(ctx context.Context, studentID, periodID, keep uuid.UUID, at time.Time, by uuid.UUID) ([]uuid.UUID, error)
}

type DecisionRepository interface {
	Append(ctx context.Context, entries ...decision.Entry) error
	List(ctx context.Context, studentID, periodID uuid.UUID) ([]decision.Entry, error)
}

// EventRecorder stores an event in the same unit of work as the change it
// describes.
type EventRecorder interface {
	Record(ctx context.Context, ev events.PlacementEventV1) error
}

// StudentDirectory reads the student-records collaborator. Unknown ids are
// absent from the result.
type StudentDirectory interface {
	Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]student.Student, error)
}

type Repositories struct {
	Tx          Transactor
	Periods     PeriodRepository
	Capacity    CapacityRepository
	Assignments AssignmentRepository
	Preferences PreferenceRepository
	Decisions   DecisionRepository
	Events      EventRecorder
	Students    StudentDirectory
}

type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }
