package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fit-portal/placement/modules/internship/domain/capacity"
	"github.com/fit-portal/placement/modules/internship/domain/decision"
	"github.com/fit-portal/placement/modules/internship/domain/events"
	"github.com/fit-portal/placement/modules/internship/domain/preference"
	"github.com/fit-portal/placement/pkg/composables"
)

// DecisionService is the placement state machine. Per preference:
// pending -> approved | rejected. Per (student, period): undecided ->
// organization | academy. Every transition is terminal; there is no
// un-approve.
type DecisionService struct {
	tx          Transactor
	preferences PreferenceRepository
	decisions   DecisionRepository
	events      EventRecorder
	periods     *PeriodService
	capacity    *CapacityService
	now         Clock
}

func NewDecisionService(repos Repositories, periods *PeriodService, capacity *CapacityService, clock Clock) *DecisionService {
	if clock == nil {
		clock = systemClock
	}
	return &DecisionService{
		tx:          repos.Tx,
		preferences: repos.Preferences,
		decisions:   repos.Decisions,
		events:      repos.Events,
		periods:     periods,
		capacity:    capacity,
		now:         clock,
	}
}

type DecisionResult struct {
	Preference *preference.Preference `json:"preference,omitempty"`
	Batch      preference.Batch       `json:"batch"`
	Rejected   []uuid.UUID            `json:"rejected_ids,omitempty"`
	Account    *capacity.Account      `json:"account,omitempty"`
}

func requireReviewer(reviewerID uuid.UUID) error {
	if reviewerID == uuid.Nil {
		return fail(ErrInvalidBody, "reviewer identity is required", nil)
	}
	return nil
}

// lockPending loads a preference under its batch lock and checks it is still
// pending.
func (s *DecisionService) lockPending(ctx context.Context, preferenceID uuid.UUID, now time.Time) (preference.Preference, preference.Batch, error) {
	pref, ok, err := s.preferences.Get(ctx, preferenceID)
	if err != nil {
		return preference.Preference{}, preference.Batch{}, asServiceError(err)
	}
	if !ok {
		return preference.Preference{}, preference.Batch{}, failf(ErrNotFound, "preference %s not found", preferenceID)
	}
	if _, err := s.periods.requireOpen(ctx, pref.PeriodID, now); err != nil {
		return preference.Preference{}, preference.Batch{}, err
	}

	batch, ok, err := s.preferences.LockBatch(ctx, pref.StudentID, pref.PeriodID)
	if err != nil {
		return preference.Preference{}, preference.Batch{}, asServiceError(err)
	}
	if !ok {
		return preference.Preference{}, preference.Batch{}, failf(ErrNotFound, "preference batch for %s not found", pref.StudentID)
	}

	// Re-read under the lock; a concurrent reviewer may have moved it.
	pref, _, err = s.preferences.Get(ctx, preferenceID)
	if err != nil {
		return preference.Preference{}, preference.Batch{}, asServiceError(err)
	}
	if !pref.Pending() {
		return preference.Preference{}, preference.Batch{}, failf(ErrNotPending, "preference is %s", pref.Status)
	}
	return pref, batch, nil
}

// Approve places the student at the preference's organization. The slot
// admit, the approval, the cascade rejection of every other pending sibling,
// the outcome, the journal and the event commit together or not at all.
func (s *DecisionService) Approve(ctx context.Context, preferenceID, reviewerID uuid.UUID) (res DecisionResult, err error) {
	ctx, span := startSpan(ctx, "decision.approve", attribute.String("preference_id", preferenceID.String()))
	defer func() {
		recordDecision(string(decision.KindApprove), err)
		endSpan(span, err)
	}()

	if err := requireReviewer(reviewerID); err != nil {
		return DecisionResult{}, err
	}

	err = s.tx.InTx(ctx, func(txCtx context.Context) error {
		now := s.now()
		pref, batch, err := s.lockPending(txCtx, preferenceID, now)
		if err != nil {
			return err
		}
		if batch.Decided() {
			return failf(ErrAlreadyDecided, "student already placed (%s)", batch.Outcome)
		}

		acc, err := s.capacity.admit(txCtx, capacity.NewKey(pref.PeriodID, capacity.KindEnterprise, pref.OrganizationID))
		if err != nil {
			return err
		}

		moved, err := s.preferences.Transition(txCtx, pref.ID, preference.StatusPending, preference.StatusApproved, now, reviewerID)
		if err != nil {
			return asServiceError(err)
		}
		if !moved {
			return fail(ErrNotPending, "", nil)
		}
		rejected, err := s.preferences.RejectPending(txCtx, pref.StudentID, pref.PeriodID, pref.ID, now, reviewerID)
		if err != nil {
			return asServiceError(err)
		}

		orgID := pref.OrganizationID
		batch.Outcome = preference.OutcomeOrganization
		batch.PlacedOrganizationID = &orgID
		batch.DecidedAt = &now
		batch.DecidedBy = &reviewerID
		if err := s.preferences.UpdateOutcome(txCtx, batch); err != nil {
			return asServiceError(err)
		}

		prefID := pref.ID
		entries := []decision.Entry{decision.NewEntry(pref.PeriodID, pref.StudentID, &prefID, decision.KindApprove, reviewerID, "", now)}
		entries = append(entries, cascadeEntries(pref.PeriodID, pref.StudentID, rejected, reviewerID, decision.ReasonCascade, now)...)
		if err := s.decisions.Append(txCtx, entries...); err != nil {
			return asServiceError(err)
		}

		if err := s.record(txCtx, events.PlacementEventV1{
			PeriodID:       pref.PeriodID,
			StudentID:      pref.StudentID,
			ActorID:        reviewerID,
			ChangeType:     events.ChangeApproved,
			PreferenceID:   &prefID,
			OrganizationID: &orgID,
			RejectedIDs:    rejected,
			Outcome:        string(batch.Outcome),
			OccurredAt:     now,
		}); err != nil {
			return err
		}

		pref.Status = preference.StatusApproved
		pref.DecidedAt = &now
		pref.DecidedBy = &reviewerID
		res = DecisionResult{Preference: &pref, Batch: batch, Rejected: rejected, Account: &acc}
		return nil
	})
	if err != nil {
		logRejected(ctx, "internship.approve", err, logrus.Fields{
			"preference_id": preferenceID.String(),
			"reviewer_id":   idField(reviewerID),
		})
		return DecisionResult{}, err
	}

	logWithFields(ctx, logrus.InfoLevel, "internship.approve.committed", logrus.Fields{
		"preference_id":   preferenceID.String(),
		"student_id":      res.Batch.StudentID.String(),
		"organization_id": res.Preference.OrganizationID.String(),
		"cascade_count":   len(res.Rejected),
		"reviewer_id":     reviewerID.String(),
	})
	return res, nil
}

// Reject moves one pending preference to rejected. No capacity is touched.
func (s *DecisionService) Reject(ctx context.Context, preferenceID, reviewerID uuid.UUID, reason string) (res DecisionResult, err error) {
	ctx, span := startSpan(ctx, "decision.reject", attribute.String("preference_id", preferenceID.String()))
	defer func() {
		recordDecision(string(decision.KindReject), err)
		endSpan(span, err)
	}()

	if err := requireReviewer(reviewerID); err != nil {
		return DecisionResult{}, err
	}

	err = s.tx.InTx(ctx, func(txCtx context.Context) error {
		now := s.now()
		pref, batch, err := s.lockPending(txCtx, preferenceID, now)
		if err != nil {
			return err
		}
		moved, err := s.preferences.Transition(txCtx, pref.ID, preference.StatusPending, preference.StatusRejected, now, reviewerID)
		if err != nil {
			return asServiceError(err)
		}
		if !moved {
			return fail(ErrNotPending, "", nil)
		}

		prefID := pref.ID
		if err := s.decisions.Append(txCtx, decision.NewEntry(pref.PeriodID, pref.StudentID, &prefID, decision.KindReject, reviewerID, strings.TrimSpace(reason), now)); err != nil {
			return asServiceError(err)
		}
		if err := s.record(txCtx, events.PlacementEventV1{
			PeriodID:     pref.PeriodID,
			StudentID:    pref.StudentID,
			ActorID:      reviewerID,
			ChangeType:   events.ChangeRejected,
			PreferenceID: &prefID,
			Outcome:      string(batch.Outcome),
			OccurredAt:   now,
		}); err != nil {
			return err
		}

		pref.Status = preference.StatusRejected
		pref.DecidedAt = &now
		pref.DecidedBy = &reviewerID
		res = DecisionResult{Preference: &pref, Batch: batch}
		return nil
	})
	if err != nil {
		logRejected(ctx, "internship.reject", err, logrus.Fields{
			"preference_id": preferenceID.String(),
			"reviewer_id":   idField(reviewerID),
		})
		return DecisionResult{}, err
	}
	return res, nil
}

// ApproveToAcademy places the student without an organization: every pending
// preference is rejected and no capacity account is touched.
func (s *DecisionService) ApproveToAcademy(ctx context.Context, studentID, periodID, reviewerID uuid.UUID) (res DecisionResult, err error) {
	ctx, span := startSpan(ctx, "decision.academy",
		attribute.String("student_id", studentID.String()),
		attribute.String("period_id", periodID.String()),
	)
	defer func() {
		recordDecision(string(decision.KindAcademy), err)
		endSpan(span, err)
	}()

	if err := requireReviewer(reviewerID); err != nil {
		return DecisionResult{}, err
	}

	err = s.tx.InTx(ctx, func(txCtx context.Context) error {
		now := s.now()
		if _, err := s.periods.requireOpen(txCtx, periodID, now); err != nil {
			return err
		}
		batch, ok, err := s.preferences.LockBatch(txCtx, studentID, periodID)
		if err != nil {
			return asServiceError(err)
		}
		if !ok {
			return fail(ErrNotFound, "no preferences submitted", nil)
		}
		if batch.Decided() {
			return failf(ErrAlreadyDecided, "student already placed (%s)", batch.Outcome)
		}

		prefs, err := s.preferences.ListFor(txCtx, studentID, periodID)
		if err != nil {
			return asServiceError(err)
		}
		for _, p := range prefs {
			if p.Status == preference.StatusApproved {
				return fail(ErrAlreadyDecided, "a preference is already approved", nil)
			}
		}

		rejected, err := s.preferences.RejectPending(txCtx, studentID, periodID, uuid.Nil, now, reviewerID)
		if err != nil {
			return asServiceError(err)
		}

		batch.Outcome = preference.OutcomeAcademy
		batch.PlacedOrganizationID = nil
		batch.DecidedAt = &now
		batch.DecidedBy = &reviewerID
		if err := s.preferences.UpdateOutcome(txCtx, batch); err != nil {
			return asServiceError(err)
		}

		entries := []decision.Entry{decision.NewEntry(periodID, studentID, nil, decision.KindAcademy, reviewerID, decision.ReasonAcademy, now)}
		entries = append(entries, cascadeEntries(periodID, studentID, rejected, reviewerID, decision.ReasonAcademy, now)...)
		if err := s.decisions.Append(txCtx, entries...); err != nil {
			return asServiceError(err)
		}
		if err := s.record(txCtx, events.PlacementEventV1{
			PeriodID:    periodID,
			StudentID:   studentID,
			ActorID:     reviewerID,
			ChangeType:  events.ChangeAcademy,
			RejectedIDs: rejected,
			Outcome:     string(batch.Outcome),
			OccurredAt:  now,
		}); err != nil {
			return err
		}

		res = DecisionResult{Batch: batch, Rejected: rejected}
		return nil
	})
	if err != nil {
		logRejected(ctx, "internship.academy", err, logrus.Fields{
			"student_id":  studentID.String(),
			"period_id":   periodID.String(),
			"reviewer_id": idField(reviewerID),
		})
		return DecisionResult{}, err
	}
	return res, nil
}

type Outcome struct {
	StudentID      uuid.UUID          `json:"student_id"`
	PeriodID       uuid.UUID          `json:"period_id"`
	Outcome        preference.Outcome `json:"outcome"`
	OrganizationID *uuid.UUID         `json:"organization_id,omitempty"`
	DecidedAt      *time.Time         `json:"decided_at,omitempty"`
	DecidedBy      *uuid.UUID         `json:"decided_by,omitempty"`
}

// Outcome derives the placement outcome of a submitted batch.
func (s *DecisionService) Outcome(ctx context.Context, studentID, periodID uuid.UUID) (Outcome, error) {
	b, ok, err := s.preferences.GetBatch(ctx, studentID, periodID)
	if err != nil {
		return Outcome{}, asServiceError(err)
	}
	if !ok {
		return Outcome{}, fail(ErrNotFound, "no preferences submitted", nil)
	}
	return Outcome{
		StudentID:      b.StudentID,
		PeriodID:       b.PeriodID,
		Outcome:        b.Outcome,
		OrganizationID: b.PlacedOrganizationID,
		DecidedAt:      b.DecidedAt,
		DecidedBy:      b.DecidedBy,
	}, nil
}

// Journal returns the decision trail of the pair, oldest first.
func (s *DecisionService) Journal(ctx context.Context, studentID, periodID uuid.UUID) ([]decision.Entry, error) {
	out, err := s.decisions.List(ctx, studentID, periodID)
	if err != nil {
		return nil, asServiceError(err)
	}
	return out, nil
}

func (s *DecisionService) record(ctx context.Context, ev events.PlacementEventV1) error {
	ev.EventID = uuid.New()
	ev.EventVersion = events.EventVersionV1
	ev.RequestID = composables.UseRequestID(ctx)
	return asServiceError(s.events.Record(ctx, ev))
}

func cascadeEntries(periodID, studentID uuid.UUID, rejected []uuid.UUID, reviewerID uuid.UUID, reason string, at time.Time) []decision.Entry {
	out := make([]decision.Entry, 0, len(rejected))
	for _, id := range rejected {
		id := id
		out = append(out, decision.NewEntry(periodID, studentID, &id, decision.KindReject, reviewerID, reason, at))
	}
	return out
}
