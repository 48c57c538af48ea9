package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fit-portal/placement/modules/internship/domain/assignment"
	"github.com/fit-portal/placement/modules/internship/domain/capacity"
	"github.com/fit-portal/placement/modules/internship/domain/decision"
	"github.com/fit-portal/placement/modules/internship/domain/period"
	"github.com/fit-portal/placement/modules/internship/domain/preference"
	"github.com/fit-portal/placement/modules/internship/services"
)

type periodRepo struct{ s *Store }

func (r periodRepo) Create(ctx context.Context, p period.Period) error {
	return r.s.view(ctx, func(st *state) error {
		st.periods[p.ID] = p
		return nil
	})
}

func (r periodRepo) Get(ctx context.Context, id uuid.UUID) (out period.Period, ok bool, err error) {
	err = r.s.view(ctx, func(st *state) error {
		out, ok = st.periods[id]
		return nil
	})
	return out, ok, err
}

func (r periodRepo) List(ctx context.Context) (out []period.Period, err error) {
	err = r.s.view(ctx, func(st *state) error {
		out = make([]period.Period, 0, len(st.periods))
		for _, p := range st.periods {
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

func (r periodRepo) SetStatus(ctx context.Context, id uuid.UUID, status period.Status, at time.Time) error {
	return r.s.view(ctx, func(st *state) error {
		p, ok := st.periods[id]
		if !ok {
			return services.ErrNotFound
		}
		p.Status = status
		p.UpdatedAt = at
		st.periods[id] = p
		return nil
	})
}

type capacityRepo struct{ s *Store }

func (r capacityRepo) Create(ctx context.Context, acc capacity.Account) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.accounts[acc.Key]; ok {
			return services.ErrAlreadyEnrolled
		}
		if !acc.Valid() {
			return services.ErrCapacityExceeded
		}
		st.accounts[acc.Key] = acc
		return nil
	})
}

func (r capacityRepo) Get(ctx context.Context, key capacity.Key) (out capacity.Account, ok bool, err error) {
	err = r.s.view(ctx, func(st *state) error {
		out, ok = st.accounts[key]
		return nil
	})
	return out, ok, err
}

func (r capacityRepo) List(ctx context.Context, periodID uuid.UUID, kind *capacity.SubjectKind) (out []capacity.Account, err error) {
	err = r.s.view(ctx, func(st *state) error {
		out = make([]capacity.Account, 0)
		for k, acc := range st.accounts {
			if k.PeriodID != periodID || (kind != nil && k.Kind != *kind) {
				continue
			}
			out = append(out, acc)
		}
		return nil
	})
	sortAccounts(out)
	return out, err
}

// update applies fn to an existing account when cond holds.
func (r capacityRepo) update(ctx context.Context, key capacity.Key, at time.Time, cond func(capacity.Account) bool, fn func(*capacity.Account)) (out capacity.Account, ok bool, err error) {
	err = r.s.view(ctx, func(st *state) error {
		acc, found := st.accounts[key]
		if !found || !cond(acc) {
			return nil
		}
		fn(&acc)
		acc.UpdatedAt = at
		st.accounts[key] = acc
		out, ok = acc, true
		return nil
	})
	return out, ok, err
}

func (r capacityRepo) TryAdmit(ctx context.Context, key capacity.Key, at time.Time) (capacity.Account, bool, error) {
	return r.update(ctx, key, at,
		func(a capacity.Account) bool { return a.CheckAdmit() == nil },
		func(a *capacity.Account) { a.UsedSlots++ },
	)
}

func (r capacityRepo) Release(ctx context.Context, key capacity.Key, at time.Time) (capacity.Account, bool, error) {
	return r.update(ctx, key, at,
		func(capacity.Account) bool { return true },
		func(a *capacity.Account) {
			if a.UsedSlots > 0 {
				a.UsedSlots--
			}
		},
	)
}

func (r capacityRepo) Resize(ctx context.Context, key capacity.Key, maxSlots int, at time.Time) (capacity.Account, bool, error) {
	return r.update(ctx, key, at,
		func(a capacity.Account) bool { return maxSlots >= a.UsedSlots },
		func(a *capacity.Account) { a.MaxSlots = maxSlots },
	)
}

func (r capacityRepo) SetAccepting(ctx context.Context, key capacity.Key, accepting bool, at time.Time) (capacity.Account, bool, error) {
	return r.update(ctx, key, at,
		func(capacity.Account) bool { return true },
		func(a *capacity.Account) { a.Accepting = accepting },
	)
}

type assignmentRepo struct{ s *Store }

func (r assignmentRepo) Live(ctx context.Context, studentID, periodID uuid.UUID) (out assignment.Assignment, ok bool, err error) {
	err = r.s.view(ctx, func(st *state) error {
		for _, a := range st.assignments {
			if a.StudentID == studentID && a.PeriodID == periodID && a.Live() {
				out, ok = a, true
				return nil
			}
		}
		return nil
	})
	return out, ok, err
}

// LockLive needs no extra lock: units of work already hold the store mutex.
func (r assignmentRepo) LockLive(ctx context.Context, studentID, periodID uuid.UUID) (assignment.Assignment, bool, error) {
	return r.Live(ctx, studentID, periodID)
}

func (r assignmentRepo) History(ctx context.Context, studentID, periodID uuid.UUID) (out []assignment.Assignment, err error) {
	err = r.s.view(ctx, func(st *state) error {
		out = make([]assignment.Assignment, 0)
		for _, a := range st.assignments {
			if a.StudentID == studentID && a.PeriodID == periodID {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

func (r assignmentRepo) MarkReplaced(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.s.view(ctx, func(st *state) error {
		for i, a := range st.assignments {
			if a.ID == id {
				t := at
				st.assignments[i].ReplacedAt = &t
				return nil
			}
		}
		return services.ErrNotFound
	})
}

func (r assignmentRepo) Insert(ctx context.Context, a assignment.Assignment) error {
	return r.s.view(ctx, func(st *state) error {
		for _, cur := range st.assignments {
			if cur.StudentID == a.StudentID && cur.PeriodID == a.PeriodID && cur.Live() {
				return services.ErrConflict
			}
		}
		st.assignments = append(st.assignments, a)
		return nil
	})
}

type preferenceRepo struct{ s *Store }

func (r preferenceRepo) InsertBatch(ctx context.Context, b preference.Batch, prefs []preference.Preference) error {
	return r.s.view(ctx, func(st *state) error {
		k := pairKey{studentID: b.StudentID, periodID: b.PeriodID}
		if _, ok := st.batches[k]; ok {
			return services.ErrDuplicateSubmission
		}
		st.batches[k] = b
		for _, p := range prefs {
			st.prefs[p.ID] = p
		}
		return nil
	})
}

func (r preferenceRepo) GetBatch(ctx context.Context, studentID, periodID uuid.UUID) (out preference.Batch, ok bool, err error) {
	err = r.s.view(ctx, func(st *state) error {
		out, ok = st.batches[pairKey{studentID: studentID, periodID: periodID}]
		return nil
	})
	return out, ok, err
}

func (r preferenceRepo) LockBatch(ctx context.Context, studentID, periodID uuid.UUID) (preference.Batch, bool, error) {
	return r.GetBatch(ctx, studentID, periodID)
}

func (r preferenceRepo) UpdateOutcome(ctx context.Context, b preference.Batch) error {
	return r.s.view(ctx, func(st *state) error {
		k := pairKey{studentID: b.StudentID, periodID: b.PeriodID}
		if _, ok := st.batches[k]; !ok {
			return services.ErrNotFound
		}
		st.batches[k] = b
		return nil
	})
}

func (r preferenceRepo) ListBatches(ctx context.Context, periodID uuid.UUID) (out []preference.Batch, err error) {
	err = r.s.view(ctx, func(st *state) error {
		for k, b := range st.batches {
			if k.periodID == periodID {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, err
}

func (r preferenceRepo) Get(ctx context.Context, id uuid.UUID) (out preference.Preference, ok bool, err error) {
	err = r.s.view(ctx, func(st *state) error {
		out, ok = st.prefs[id]
		return nil
	})
	return out, ok, err
}

func (r preferenceRepo) filter(ctx context.Context, keep func(preference.Preference) bool) (out []preference.Preference, err error) {
	err = r.s.view(ctx, func(st *state) error {
		out = make([]preference.Preference, 0)
		for _, p := range st.prefs {
			if keep(p) {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID.String() < out[j].StudentID.String()
		}
		return out[i].Rank < out[j].Rank
	})
	return out, err
}

func (r preferenceRepo) ListFor(ctx context.Context, studentID, periodID uuid.UUID) ([]preference.Preference, error) {
	return r.filter(ctx, func(p preference.Preference) bool {
		return p.StudentID == studentID && p.PeriodID == periodID
	})
}

func (r preferenceRepo) ListByPeriod(ctx context.Context, periodID uuid.UUID) ([]preference.Preference, error) {
	return r.filter(ctx, func(p preference.Preference) bool { return p.PeriodID == periodID })
}

func (r preferenceRepo) Transition(ctx context.Context, id uuid.UUID, from, to preference.Status, at time.Time, by uuid.UUID) (moved bool, err error) {
	err = r.s.view(ctx, func(st *state) error {
		p, ok := st.prefs[id]
		if !ok || p.Status != from {
			return nil
		}
		decide(&p, to, at, by)
		st.prefs[id] = p
		moved = true
		return nil
	})
	return moved, err
}

func (r preferenceRepo) RejectPending(ctx context.Context, studentID, periodID, keep uuid.UUID, at time.Time, by uuid.UUID) ([]uuid.UUID, error) {
	pending, err := r.filter(ctx, func(p preference.Preference) bool {
		return p.StudentID == studentID && p.PeriodID == periodID && p.Pending() && p.ID != keep
	})
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(pending))
	err = r.s.view(ctx, func(st *state) error {
		for _, p := range pending {
			decide(&p, preference.StatusRejected, at, by)
			st.prefs[p.ID] = p
			ids = append(ids, p.ID)
		}
		return nil
	})
	return ids, err
}

func decide(p *preference.Preference, to preference.Status, at time.Time, by uuid.UUID) {
	t, b := at, by
	p.Status = to
	p.DecidedAt = &t
	p.DecidedBy = &b
}

type decisionRepo struct{ s *Store }

func (r decisionRepo) Append(ctx context.Context, entries ...decision.Entry) error {
	return r.s.view(ctx, func(st *state) error {
		st.journal = append(st.journal, entries...)
		return nil
	})
}

func (r decisionRepo) List(ctx context.Context, studentID, periodID uuid.UUID) (out []decision.Entry, err error) {
	err = r.s.view(ctx, func(st *state) error {
		out = make([]decision.Entry, 0)
		for _, e := range st.journal {
			if e.StudentID == studentID && e.PeriodID == periodID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}
