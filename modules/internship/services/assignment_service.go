package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fit-portal/placement/modules/internship/domain/assignment"
	"github.com/fit-portal/placement/modules/internship/domain/capacity"
	"github.com/fit-portal/placement/modules/internship/domain/events"
	"github.com/fit-portal/placement/pkg/composables"
)

type AssignmentService struct {
	tx          Transactor
	assignments AssignmentRepository
	events      EventRecorder
	periods     *PeriodService
	capacity    *CapacityService
	now         Clock
}

func NewAssignmentService(repos Repositories, periods *PeriodService, capacity *CapacityService, clock Clock) *AssignmentService {
	if clock == nil {
		clock = systemClock
	}
	return &AssignmentService{
		tx:          repos.Tx,
		assignments: repos.Assignments,
		events:      repos.Events,
		periods:     periods,
		capacity:    capacity,
		now:         clock,
	}
}

// Assign binds the student to staffID. A change of guide admits the new staff
// account before releasing the old one, so a refused admit leaves the prior
// assignment and both accounts as they were. Re-assigning the same guide is a
// no-op returning the live row.
func (s *AssignmentService) Assign(ctx context.Context, studentID, periodID, staffID uuid.UUID) (out assignment.Assignment, err error) {
	ctx, span := startSpan(ctx, "assignment.assign",
		attribute.String("student_id", studentID.String()),
		attribute.String("period_id", periodID.String()),
		attribute.String("staff_id", staffID.String()),
	)
	defer func() { endSpan(span, err) }()

	if studentID == uuid.Nil || periodID == uuid.Nil || staffID == uuid.Nil {
		return assignment.Assignment{}, fail(ErrInvalidBody, "student_id, period_id and staff_id are required", nil)
	}

	err = s.tx.InTx(ctx, func(txCtx context.Context) error {
		now := s.now()
		if _, err := s.periods.requireOpen(txCtx, periodID, now); err != nil {
			return err
		}

		cur, hasCur, err := s.assignments.LockLive(txCtx, studentID, periodID)
		if err != nil {
			return asServiceError(err)
		}
		if hasCur && cur.StaffID == staffID {
			out = cur
			return nil
		}

		if _, err := s.capacity.admit(txCtx, capacity.NewKey(periodID, capacity.KindStaff, staffID)); err != nil {
			return err
		}

		change := events.ChangeAssigned
		if hasCur {
			change = events.ChangeReplaced
			if _, err := s.capacity.release(txCtx, capacity.NewKey(periodID, capacity.KindStaff, cur.StaffID)); err != nil {
				return err
			}
			if err := s.assignments.MarkReplaced(txCtx, cur.ID, now); err != nil {
				return asServiceError(err)
			}
		}

		out = assignment.Assignment{
			ID:         uuid.New(),
			StudentID:  studentID,
			PeriodID:   periodID,
			StaffID:    staffID,
			AssignedAt: now,
		}
		if err := s.assignments.Insert(txCtx, out); err != nil {
			return asServiceError(err)
		}

		actor, _ := composables.UseActor(txCtx)
		return asServiceError(s.events.Record(txCtx, events.PlacementEventV1{
			EventID:      uuid.New(),
			EventVersion: events.EventVersionV1,
			RequestID:    composables.UseRequestID(txCtx),
			PeriodID:     periodID,
			StudentID:    studentID,
			ActorID:      actor,
			ChangeType:   change,
			StaffID:      &staffID,
			OccurredAt:   now,
		}))
	})
	if err != nil {
		logRejected(ctx, "internship.assignment.assign", err, logrus.Fields{
			"student_id": studentID.String(),
			"period_id":  periodID.String(),
			"staff_id":   staffID.String(),
		})
		return assignment.Assignment{}, err
	}

	logWithFields(ctx, logrus.InfoLevel, "internship.assignment.assigned", logrus.Fields{
		"student_id": studentID.String(),
		"period_id":  periodID.String(),
		"staff_id":   staffID.String(),
	})
	return out, nil
}

// Current returns the live assignment, or nil when the student has none.
func (s *AssignmentService) Current(ctx context.Context, studentID, periodID uuid.UUID) (*assignment.Assignment, error) {
	a, ok, err := s.assignments.Live(ctx, studentID, periodID)
	if err != nil {
		return nil, asServiceError(err)
	}
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// History returns every assignment of the pair, oldest first.
func (s *AssignmentService) History(ctx context.Context, studentID, periodID uuid.UUID) ([]assignment.Assignment, error) {
	out, err := s.assignments.History(ctx, studentID, periodID)
	if err != nil {
		return nil, asServiceError(err)
	}
	return out, nil
}
