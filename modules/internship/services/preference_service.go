package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fit-portal/placement/modules/internship/domain/capacity"
	"github.com/fit-portal/placement/modules/internship/domain/events"
	"github.com/fit-portal/placement/modules/internship/domain/preference"
	"github.com/fit-portal/placement/pkg/composables"
	"github.com/fit-portal/placement/pkg/configuration"
)

type PreferenceService struct {
	tx          Transactor
	preferences PreferenceRepository
	assignments AssignmentRepository
	capacity    CapacityRepository
	events      EventRecorder
	periods     *PeriodService
	maxRanks    int
	now         Clock
}

func NewPreferenceService(repos Repositories, periods *PeriodService, maxRanks int, clock Clock) *PreferenceService {
	if clock == nil {
		clock = systemClock
	}
	if maxRanks < 1 || maxRanks > configuration.MaxPreferenceRanks {
		maxRanks = configuration.MaxPreferenceRanks
	}
	return &PreferenceService{
		tx:          repos.Tx,
		preferences: repos.Preferences,
		assignments: repos.Assignments,
		capacity:    repos.Capacity,
		events:      repos.Events,
		periods:     periods,
		maxRanks:    maxRanks,
		now:         clock,
	}
}

func (s *PreferenceService) MaxRanks() int {
	return s.maxRanks
}

// Submit stores the student's ranked batch, all pending. The batch is
// immutable afterwards except through the decision engine.
func (s *PreferenceService) Submit(ctx context.Context, studentID, periodID uuid.UUID, choices []preference.Choice, note string) (out []preference.Preference, err error) {
	ctx, span := startSpan(ctx, "preference.submit",
		attribute.String("student_id", studentID.String()),
		attribute.String("period_id", periodID.String()),
		attribute.Int("choices", len(choices)),
	)
	defer func() { endSpan(span, err) }()

	if studentID == uuid.Nil || periodID == uuid.Nil {
		return nil, fail(ErrInvalidBody, "student_id and period_id are required", nil)
	}

	err = s.tx.InTx(ctx, func(txCtx context.Context) error {
		now := s.now()
		if _, err := s.periods.requireOpen(txCtx, periodID, now); err != nil {
			return err
		}
		if _, ok, err := s.assignments.Live(txCtx, studentID, periodID); err != nil {
			return asServiceError(err)
		} else if !ok {
			return fail(ErrGuideRequired, "", nil)
		}
		if _, ok, err := s.preferences.GetBatch(txCtx, studentID, periodID); err != nil {
			return asServiceError(err)
		} else if ok {
			return fail(ErrDuplicateSubmission, "", nil)
		}

		normalized, err := preference.NormalizeChoices(choices, s.maxRanks)
		if err != nil {
			if errors.Is(err, preference.ErrInvalidRankSequence) {
				return fail(ErrInvalidRankSequence, err.Error(), nil)
			}
			return asServiceError(err)
		}
		for _, c := range normalized {
			key := capacity.NewKey(periodID, capacity.KindEnterprise, c.OrganizationID)
			if _, ok, err := s.capacity.Get(txCtx, key); err != nil {
				return asServiceError(err)
			} else if !ok {
				return failf(ErrNotEnrolled, "organization %s is not enrolled in period", c.OrganizationID)
			}
		}

		batch, prefs := preference.NewBatch(studentID, periodID, normalized, note, now)
		if err := s.preferences.InsertBatch(txCtx, batch, prefs); err != nil {
			return asServiceError(err)
		}
		out = prefs

		actor, _ := composables.UseActor(txCtx)
		return asServiceError(s.events.Record(txCtx, events.PlacementEventV1{
			EventID:      uuid.New(),
			EventVersion: events.EventVersionV1,
			RequestID:    composables.UseRequestID(txCtx),
			PeriodID:     periodID,
			StudentID:    studentID,
			ActorID:      actor,
			ChangeType:   events.ChangeSubmitted,
			Outcome:      string(preference.OutcomeUndecided),
			OccurredAt:   now,
		}))
	})
	if err != nil {
		logRejected(ctx, "internship.preference.submit", err, logrus.Fields{
			"student_id": studentID.String(),
			"period_id":  periodID.String(),
		})
		return nil, err
	}

	logWithFields(ctx, logrus.InfoLevel, "internship.preference.submitted", logrus.Fields{
		"student_id": studentID.String(),
		"period_id":  periodID.String(),
		"choices":    len(out),
	})
	return out, nil
}

// ListFor returns the batch ordered by rank; empty when nothing was submitted.
func (s *PreferenceService) ListFor(ctx context.Context, studentID, periodID uuid.UUID) ([]preference.Preference, error) {
	out, err := s.preferences.ListFor(ctx, studentID, periodID)
	if err != nil {
		return nil, asServiceError(err)
	}
	return out, nil
}

func (s *PreferenceService) Batch(ctx context.Context, studentID, periodID uuid.UUID) (preference.Batch, error) {
	b, ok, err := s.preferences.GetBatch(ctx, studentID, periodID)
	if err != nil {
		return preference.Batch{}, asServiceError(err)
	}
	if !ok {
		return preference.Batch{}, fail(ErrNotFound, "no preferences submitted", nil)
	}
	return b, nil
}
