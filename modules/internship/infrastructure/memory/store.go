// Package memory is a process-local store for the internship module. Units
// of work run under one mutex and roll back by restoring a snapshot, which
// gives serializable semantics for tests and local demos.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/fit-portal/placement/modules/internship/domain/assignment"
	"github.com/fit-portal/placement/modules/internship/domain/capacity"
	"github.com/fit-portal/placement/modules/internship/domain/decision"
	"github.com/fit-portal/placement/modules/internship/domain/events"
	"github.com/fit-portal/placement/modules/internship/domain/period"
	"github.com/fit-portal/placement/modules/internship/domain/preference"
	"github.com/fit-portal/placement/modules/internship/domain/student"
	"github.com/fit-portal/placement/modules/internship/services"
	"github.com/fit-portal/placement/pkg/eventbus"
	"github.com/fit-portal/placement/pkg/outbox"
)

type pairKey struct {
	studentID uuid.UUID
	periodID  uuid.UUID
}

type state struct {
	periods     map[uuid.UUID]period.Period
	accounts    map[capacity.Key]capacity.Account
	assignments []assignment.Assignment
	batches     map[pairKey]preference.Batch
	prefs       map[uuid.UUID]preference.Preference
	journal     []decision.Entry
	students    map[uuid.UUID]student.Student
}

func newState() *state {
	return &state{
		periods:  make(map[uuid.UUID]period.Period),
		accounts: make(map[capacity.Key]capacity.Account),
		batches:  make(map[pairKey]preference.Batch),
		prefs:    make(map[uuid.UUID]preference.Preference),
		students: make(map[uuid.UUID]student.Student),
	}
}

// clone copies everything a unit of work can mutate. Students are read-only
// and shared.
func (s *state) clone() *state {
	out := &state{
		periods:     make(map[uuid.UUID]period.Period, len(s.periods)),
		accounts:    make(map[capacity.Key]capacity.Account, len(s.accounts)),
		assignments: append([]assignment.Assignment(nil), s.assignments...),
		batches:     make(map[pairKey]preference.Batch, len(s.batches)),
		prefs:       make(map[uuid.UUID]preference.Preference, len(s.prefs)),
		journal:     append([]decision.Entry(nil), s.journal...),
		students:    s.students,
	}
	for k, v := range s.periods {
		out.periods[k] = v
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.batches {
		out.batches[k] = v
	}
	for k, v := range s.prefs {
		out.prefs[k] = v
	}
	return out
}

type txKey struct{}

type memTx struct {
	store  *Store
	events []events.PlacementEventV1
}

type Store struct {
	mu    sync.Mutex
	state *state
	bus   eventbus.EventBus
}

// New returns an empty store. Committed events are published to bus as
// (*outbox.Meta, *events.PlacementEventV1), the same shape the outbox relay
// delivers; bus may be nil.
func New(bus eventbus.EventBus) *Store {
	return &Store{state: newState(), bus: bus}
}

func (s *Store) txFrom(ctx context.Context) *memTx {
	tx, ok := ctx.Value(txKey{}).(*memTx)
	if !ok || tx.store != s {
		return nil
	}
	return tx
}

// view runs fn against the live state, taking the lock unless ctx already
// holds it.
func (s *Store) view(ctx context.Context, fn func(st *state) error) error {
	if s.txFrom(ctx) != nil {
		return fn(s.state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func (s *Store) InTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	tx := &memTx{store: s}
	if err := s.apply(ctx, tx, fn); err != nil {
		return err
	}
	for i := range tx.events {
		s.publish(tx.events[i])
	}
	return nil
}

// apply runs fn under the store lock. The snapshot is restored when fn fails
// or panics.
func (s *Store) apply(ctx context.Context, tx *memTx, fn func(txCtx context.Context) error) error {
	s.mu.Lock()
	snapshot := s.state.clone()
	committed := false
	defer func() {
		if !committed {
			s.state = snapshot
			tx.events = nil
		}
		s.mu.Unlock()
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) publish(ev events.PlacementEventV1) {
	if s.bus == nil {
		return
	}
	meta := &outbox.Meta{
		Topic:       events.Topic(ev.ChangeType),
		EventID:     ev.EventID,
		AggregateID: ev.PeriodID,
		Attempts:    1,
	}
	s.bus.Publish(meta, &ev)
}

// Record buffers ev until the surrounding unit of work commits.
func (s *Store) Record(ctx context.Context, ev events.PlacementEventV1) error {
	if tx := s.txFrom(ctx); tx != nil {
		tx.events = append(tx.events, ev)
		return nil
	}
	s.publish(ev)
	return nil
}

// PutStudent seeds the student-records projection.
func (s *Store) PutStudent(st student.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.students[st.ID] = st
}

func (s *Store) Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]student.Student, error) {
	out := make(map[uuid.UUID]student.Student, len(ids))
	err := s.view(ctx, func(st *state) error {
		for _, id := range ids {
			if v, ok := st.students[id]; ok {
				out[id] = v
			}
		}
		return nil
	})
	return out, err
}

// Repositories wires the store behind every service contract.
func (s *Store) Repositories() services.Repositories {
	return services.Repositories{
		Tx:          s,
		Periods:     periodRepo{s},
		Capacity:    capacityRepo{s},
		Assignments: assignmentRepo{s},
		Preferences: preferenceRepo{s},
		Decisions:   decisionRepo{s},
		Events:      s,
		Students:    s,
	}
}

func sortAccounts(out []capacity.Account) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].SubjectID.String() < out[j].SubjectID.String()
	})
}
