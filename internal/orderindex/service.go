package orderindex

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"
)

// Service is the entry point used by the task layer. It owns one of each
// component and serializes work per scope.
type Service struct {
	store      Store
	space      Space
	allocator  *Allocator
	rebalancer *Rebalancer
	planner    *Planner
	locks      *scopeLocks
	logger     *log.Logger
}

// New validates space (after defaults) and returns a Service over store.
func New(store Store, space Space, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("order index: store is nil")
	}
	space = space.WithDefaults()
	if err := space.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Service{
		store:      store,
		space:      space,
		allocator:  NewAllocator(store, space, opts...),
		rebalancer: NewRebalancer(store, space, opts...),
		planner:    NewPlanner(store, space, opts...),
		locks:      newScopeLocks(),
		logger:     o.logger,
	}, nil
}

// Space returns the effective key space.
func (s *Service) Space() Space { return s.space }

// Store returns the underlying store.
func (s *Service) Store() Store { return s.store }

// Append allocates a key after the last row of scope.
func (s *Service) Append(ctx context.Context, scope string) (Key, error) {
	var k Key
	err := s.Do(ctx, scope, func(ctx context.Context, tx *Scoped) error {
		var err error
		k, err = tx.Append(ctx)
		return err
	})
	return k, err
}

// First allocates a key before the first row of scope.
func (s *Service) First(ctx context.Context, scope string) (Key, error) {
	var k Key
	err := s.Do(ctx, scope, func(ctx context.Context, tx *Scoped) error {
		var err error
		k, err = tx.First(ctx)
		return err
	})
	return k, err
}

// Between allocates a key between two adjacent keys of scope.
func (s *Service) Between(ctx context.Context, scope string, before, after Key) (Key, error) {
	var k Key
	err := s.Do(ctx, scope, func(ctx context.Context, tx *Scoped) error {
		var err error
		k, err = tx.Between(ctx, before, after)
		return err
	})
	return k, err
}

// PlanMove computes a move plan for scope.
func (s *Service) PlanMove(ctx context.Context, scope string, m Move) ([]Assignment, error) {
	var plan []Assignment
	err := s.Do(ctx, scope, func(ctx context.Context, tx *Scoped) error {
		var err error
		plan, err = tx.PlanMove(ctx, m)
		return err
	})
	return plan, err
}

// Rebalance respaces the whole scope from Gap.
func (s *Service) Rebalance(ctx context.Context, scope string) ([]Assignment, error) {
	var out []Assignment
	err := s.Do(ctx, scope, func(ctx context.Context, tx *Scoped) error {
		var err error
		out, err = tx.Rebalance(ctx)
		return err
	})
	return out, err
}

// Do runs fn while holding the lock of scope. Calls made through tx are not
// locked again, so a read-plan-apply sequence stays atomic with respect to
// other callers of this Service.
func (s *Service) Do(ctx context.Context, scope string, fn func(ctx context.Context, tx *Scoped) error) error {
	unlock, err := s.locks.lock(ctx, scope)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx, &Scoped{svc: s, scope: scope})
}

// Scoped exposes the operations of one locked scope. It is only valid inside
// the callback passed to Service.Do.
type Scoped struct {
	svc   *Service
	scope string
}

// Scope returns the locked scope.
func (tx *Scoped) Scope() string { return tx.scope }

// Append allocates a key after the last row.
func (tx *Scoped) Append(ctx context.Context) (Key, error) {
	return tx.svc.allocator.Append(ctx, tx.scope)
}

// First allocates a key before the first row.
func (tx *Scoped) First(ctx context.Context) (Key, error) {
	return tx.svc.allocator.First(ctx, tx.scope)
}

// Between allocates a key between two adjacent keys.
func (tx *Scoped) Between(ctx context.Context, before, after Key) (Key, error) {
	return tx.svc.allocator.Between(ctx, tx.scope, before, after)
}

// PlanMove computes a move plan.
func (tx *Scoped) PlanMove(ctx context.Context, m Move) ([]Assignment, error) {
	return tx.svc.planner.PlanMove(ctx, tx.scope, m)
}

// Rebalance respaces the whole scope from Gap.
func (tx *Scoped) Rebalance(ctx context.Context) ([]Assignment, error) {
	return tx.svc.rebalancer.RebalanceScope(ctx, tx.scope)
}

// Apply persists a plan.
func (tx *Scoped) Apply(ctx context.Context, plan []Assignment) error {
	return ApplyAssignments(ctx, tx.svc.store, tx.scope, plan)
}

// scopeLocks hands out one weighted semaphore per scope and forgets it once
// nobody holds or waits on it.
type scopeLocks struct {
	mu   sync.Mutex
	sems map[string]*scopeSem
}

type scopeSem struct {
	sem  *semaphore.Weighted
	refs int
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{sems: make(map[string]*scopeSem)}
}

func (l *scopeLocks) lock(ctx context.Context, scope string) (func(), error) {
	l.mu.Lock()
	e, ok := l.sems[scope]
	if !ok {
		e = &scopeSem{sem: semaphore.NewWeighted(1)}
		l.sems[scope] = e
	}
	e.refs++
	l.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.release(scope, e)
		return nil, err
	}
	return func() {
		e.sem.Release(1)
		l.release(scope, e)
	}, nil
}

func (l *scopeLocks) release(scope string, e *scopeSem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.sems, scope)
	}
}

func (l *scopeLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sems)
}
