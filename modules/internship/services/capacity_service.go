package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fit-portal/placement/modules/internship/domain/capacity"
)

type CapacityService struct {
	tx       Transactor
	capacity CapacityRepository
	now      Clock
}

func NewCapacityService(repos Repositories, clock Clock) *CapacityService {
	if clock == nil {
		clock = systemClock
	}
	return &CapacityService{tx: repos.Tx, capacity: repos.Capacity, now: clock}
}

func keyFields(key capacity.Key) logrus.Fields {
	return logrus.Fields{
		"period_id":    key.PeriodID.String(),
		"subject_kind": string(key.Kind),
		"subject_id":   key.SubjectID.String(),
	}
}

func validateKey(key capacity.Key) error {
	if key.PeriodID == uuid.Nil || key.SubjectID == uuid.Nil {
		return fail(ErrInvalidBody, "period_id and subject_id are required", nil)
	}
	if _, ok := capacity.ParseSubjectKind(string(key.Kind)); !ok {
		return failf(ErrInvalidBody, "unknown subject kind %q", key.Kind)
	}
	return nil
}

// Enroll opens an account with no slots used.
func (s *CapacityService) Enroll(ctx context.Context, key capacity.Key, maxSlots int) (capacity.Account, error) {
	if err := validateKey(key); err != nil {
		return capacity.Account{}, err
	}
	if maxSlots < 0 {
		return capacity.Account{}, fail(ErrInvalidBody, "max_slots must be non-negative", nil)
	}

	var out capacity.Account
	err := s.tx.InTx(ctx, func(txCtx context.Context) error {
		if _, ok, err := s.capacity.Get(txCtx, key); err != nil {
			return asServiceError(err)
		} else if ok {
			return fail(ErrAlreadyEnrolled, "", nil)
		}
		now := s.now()
		out = capacity.Account{
			Key:       key,
			MaxSlots:  maxSlots,
			Accepting: true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return asServiceError(s.capacity.Create(txCtx, out))
	})
	if err != nil {
		logRejected(ctx, "internship.capacity.enroll", err, keyFields(key))
		return capacity.Account{}, err
	}
	return out, nil
}

// Resize changes max slots; shrinking below current usage is refused.
func (s *CapacityService) Resize(ctx context.Context, key capacity.Key, maxSlots int) (capacity.Account, error) {
	if err := validateKey(key); err != nil {
		return capacity.Account{}, err
	}
	if maxSlots < 0 {
		return capacity.Account{}, fail(ErrInvalidBody, "max_slots must be non-negative", nil)
	}

	var out capacity.Account
	err := s.tx.InTx(ctx, func(txCtx context.Context) error {
		acc, ok, err := s.capacity.Resize(txCtx, key, maxSlots, s.now())
		if err != nil {
			return asServiceError(err)
		}
		if ok {
			out = acc
			return nil
		}
		cur, found, err := s.capacity.Get(txCtx, key)
		if err != nil {
			return asServiceError(err)
		}
		if !found {
			return fail(ErrNotEnrolled, "", nil)
		}
		return failf(ErrBelowUsage, "max_slots %d is below used slots %d", maxSlots, cur.UsedSlots)
	})
	if err != nil {
		logRejected(ctx, "internship.capacity.resize", err, keyFields(key))
		return capacity.Account{}, err
	}
	return out, nil
}

func (s *CapacityService) SetAccepting(ctx context.Context, key capacity.Key, accepting bool) (capacity.Account, error) {
	if err := validateKey(key); err != nil {
		return capacity.Account{}, err
	}
	acc, ok, err := s.capacity.SetAccepting(ctx, key, accepting, s.now())
	if err != nil {
		return capacity.Account{}, asServiceError(err)
	}
	if !ok {
		return capacity.Account{}, fail(ErrNotEnrolled, "", nil)
	}
	return acc, nil
}

// Admit takes one slot. Admits for the last slot never both succeed.
func (s *CapacityService) Admit(ctx context.Context, key capacity.Key) (capacity.Account, error) {
	if err := validateKey(key); err != nil {
		return capacity.Account{}, err
	}
	var out capacity.Account
	err := s.tx.InTx(ctx, func(txCtx context.Context) error {
		acc, err := s.admit(txCtx, key)
		out = acc
		return err
	})
	if err != nil {
		return capacity.Account{}, err
	}
	return out, nil
}

// admit must run inside the caller's unit of work.
func (s *CapacityService) admit(ctx context.Context, key capacity.Key) (acc capacity.Account, err error) {
	ctx, span := startSpan(ctx, "capacity.admit",
		attribute.String("subject_kind", string(key.Kind)),
		attribute.String("subject_id", key.SubjectID.String()),
	)
	defer func() {
		recordAdmit(key.Kind, err)
		endSpan(span, err)
	}()

	acc, ok, err := s.capacity.TryAdmit(ctx, key, s.now())
	if err != nil {
		return capacity.Account{}, asServiceError(err)
	}
	if ok {
		return acc, nil
	}

	cur, found, err := s.capacity.Get(ctx, key)
	if err != nil {
		return capacity.Account{}, asServiceError(err)
	}
	if !found {
		err = failf(ErrNotEnrolled, "%s %s is not enrolled in period", key.Kind, key.SubjectID)
	} else if errors.Is(cur.CheckAdmit(), capacity.ErrNotAccepting) {
		err = failf(ErrNotAccepting, "%s %s is not accepting students", key.Kind, key.SubjectID)
	} else {
		err = failf(ErrCapacityExceeded, "%s %s has no slots left (%d/%d)", key.Kind, key.SubjectID, cur.UsedSlots, cur.MaxSlots)
	}
	logRejected(ctx, "internship.capacity.admit", err, keyFields(key))
	return capacity.Account{}, err
}

// Release frees one slot, floored at zero. Releasing an empty account succeeds.
func (s *CapacityService) Release(ctx context.Context, key capacity.Key) (capacity.Account, error) {
	if err := validateKey(key); err != nil {
		return capacity.Account{}, err
	}
	var out capacity.Account
	err := s.tx.InTx(ctx, func(txCtx context.Context) error {
		acc, err := s.release(txCtx, key)
		out = acc
		return err
	})
	if err != nil {
		return capacity.Account{}, err
	}
	return out, nil
}

func (s *CapacityService) release(ctx context.Context, key capacity.Key) (capacity.Account, error) {
	acc, ok, err := s.capacity.Release(ctx, key, s.now())
	if err != nil {
		return capacity.Account{}, asServiceError(err)
	}
	if !ok {
		return capacity.Account{}, failf(ErrNotEnrolled, "%s %s is not enrolled in period", key.Kind, key.SubjectID)
	}
	return acc, nil
}

func (s *CapacityService) CurrentUsage(ctx context.Context, key capacity.Key) (capacity.Account, error) {
	if err := validateKey(key); err != nil {
		return capacity.Account{}, err
	}
	acc, ok, err := s.capacity.Get(ctx, key)
	if err != nil {
		return capacity.Account{}, asServiceError(err)
	}
	if !ok {
		return capacity.Account{}, failf(ErrNotFound, "no %s account for %s", key.Kind, key.SubjectID)
	}
	return acc, nil
}

// List returns the accounts of a period, optionally of one kind.
func (s *CapacityService) List(ctx context.Context, periodID uuid.UUID, kind *capacity.SubjectKind) ([]capacity.Account, error) {
	out, err := s.capacity.List(ctx, periodID, kind)
	if err != nil {
		return nil, asServiceError(err)
	}
	return out, nil
}
