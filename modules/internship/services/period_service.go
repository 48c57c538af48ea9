package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fit-portal/placement/modules/internship/domain/period"
)

type PeriodService struct {
	tx      Transactor
	periods PeriodRepository
	now     Clock
}

func NewPeriodService(repos Repositories, clock Clock) *PeriodService {
	if clock == nil {
		clock = systemClock
	}
	return &PeriodService{tx: repos.Tx, periods: repos.Periods, now: clock}
}

type DefinePeriodInput struct {
	Name     string
	Label    string
	OpensAt  time.Time
	ClosesAt time.Time
}

// Define creates a draft period.
func (s *PeriodService) Define(ctx context.Context, in DefinePeriodInput) (period.Period, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return period.Period{}, fail(ErrInvalidWindow, "name is required", nil)
	}
	if !period.ValidWindow(in.OpensAt, in.ClosesAt) {
		return period.Period{}, fail(ErrInvalidWindow, "closes_at must be after opens_at", nil)
	}

	now := s.now()
	p := period.Period{
		ID:        uuid.New(),
		Name:      name,
		Label:     strings.TrimSpace(in.Label),
		OpensAt:   in.OpensAt.UTC(),
		ClosesAt:  in.ClosesAt.UTC(),
		Status:    period.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.periods.Create(ctx, p); err != nil {
		return period.Period{}, asServiceError(err)
	}
	logWithFields(ctx, logrus.InfoLevel, "internship.period.defined", logrus.Fields{
		"period_id": p.ID.String(),
		"name":      p.Name,
	})
	return p, nil
}

func (s *PeriodService) Get(ctx context.Context, id uuid.UUID) (period.Period, error) {
	p, ok, err := s.periods.Get(ctx, id)
	if err != nil {
		return period.Period{}, asServiceError(err)
	}
	if !ok {
		return period.Period{}, failf(ErrNotFound, "period %s not found", id)
	}
	return p, nil
}

// List returns every period, latest opening first.
func (s *PeriodService) List(ctx context.Context) ([]period.Period, error) {
	out, err := s.periods.List(ctx)
	if err != nil {
		return nil, asServiceError(err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpensAt.After(out[j].OpensAt) })
	return out, nil
}

// Current picks the open period whose window contains now, preferring the
// latest opening. It is a UI default only.
func (s *PeriodService) Current(ctx context.Context, now time.Time) (period.Period, error) {
	all, err := s.List(ctx)
	if err != nil {
		return period.Period{}, err
	}
	for _, p := range all {
		if p.IsOpen(now) {
			return p, nil
		}
	}
	return period.Period{}, fail(ErrNotFound, "no open period", nil)
}

// Open moves a draft or closed period to open. Opening an open period is a
// no-op; a window that has already ended cannot be opened.
func (s *PeriodService) Open(ctx context.Context, id uuid.UUID, now time.Time) (p period.Period, err error) {
	ctx, span := startSpan(ctx, "period.open", attribute.String("period_id", id.String()))
	defer func() { endSpan(span, err) }()

	err = s.tx.InTx(ctx, func(txCtx context.Context) error {
		cur, err := s.Get(txCtx, id)
		if err != nil {
			return err
		}
		if cur.Status == period.StatusOpen {
			p = cur
			return nil
		}
		if cur.Ended(now) {
			return failf(ErrPeriodClosed, "period window ended at %s", cur.ClosesAt.Format(time.RFC3339))
		}
		if err := s.periods.SetStatus(txCtx, id, period.StatusOpen, now); err != nil {
			return asServiceError(err)
		}
		cur.Status = period.StatusOpen
		cur.UpdatedAt = now
		p = cur
		return nil
	})
	if err != nil {
		logRejected(ctx, "internship.period.open", err, logrus.Fields{"period_id": id.String()})
		return period.Period{}, err
	}
	return p, nil
}

// Close is idempotent, including on periods whose window has already ended.
func (s *PeriodService) Close(ctx context.Context, id uuid.UUID, now time.Time) (p period.Period, err error) {
	ctx, span := startSpan(ctx, "period.close", attribute.String("period_id", id.String()))
	defer func() { endSpan(span, err) }()

	err = s.tx.InTx(ctx, func(txCtx context.Context) error {
		cur, err := s.Get(txCtx, id)
		if err != nil {
			return err
		}
		if cur.Status == period.StatusClosed {
			p = cur
			return nil
		}
		if err := s.periods.SetStatus(txCtx, id, period.StatusClosed, now); err != nil {
			return asServiceError(err)
		}
		cur.Status = period.StatusClosed
		cur.UpdatedAt = now
		p = cur
		return nil
	})
	if err != nil {
		logRejected(ctx, "internship.period.close", err, logrus.Fields{"period_id": id.String()})
		return period.Period{}, err
	}
	return p, nil
}

func (s *PeriodService) IsOpen(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return p.IsOpen(now), nil
}

// requireOpen gates every assignment, preference and decision write.
func (s *PeriodService) requireOpen(ctx context.Context, id uuid.UUID, now time.Time) (period.Period, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return period.Period{}, err
	}
	if !p.IsOpen(now) {
		return period.Period{}, failf(ErrPeriodClosed, "period %s is not open", id)
	}
	return p, nil
}

// Now reports the service clock, so callers gate on the same instant the
// service would.
func (s *PeriodService) Now() time.Time {
	return s.now()
}
