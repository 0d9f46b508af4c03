package orderindex

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/charmbracelet/log"
)

// Allocator hands out keys for new positions in a scope.
type Allocator struct {
	store      Store
	space      Space
	rebalancer *Rebalancer
	logger     *log.Logger
	observer   Observer
}

// NewAllocator returns an Allocator over store. Zero Space fields take defaults.
func NewAllocator(store Store, space Space, opts ...Option) *Allocator {
	o := buildOptions(opts)
	return &Allocator{
		store:      store,
		space:      space.WithDefaults(),
		rebalancer: NewRebalancer(store, space, opts...),
		logger:     o.logger,
		observer:   o.observer,
	}
}

// allocation is a key plus the rows rewritten to make room for it.
type allocation struct {
	key        Key
	rebalanced []respaced
}

// Append returns a key after every existing key of the scope.
func (a *Allocator) Append(ctx context.Context, scope string) (Key, error) {
	maxKey, ok, err := a.store.MaxKey(ctx, scope)
	if err != nil {
		return 0, storageErr("read max key", scope, err)
	}
	if !ok {
		a.observer.ObserveAllocation(KindAppend)
		return a.space.Seed, nil
	}
	al, err := a.afterLast(maxKey)
	if err != nil {
		return 0, err
	}
	return al.key, nil
}

// First returns a key before every existing key of the scope. When the front
// of the key space is used up the leading rows are respaced first.
func (a *Allocator) First(ctx context.Context, scope string) (Key, error) {
	al, err := a.first(ctx, scope)
	if err != nil {
		return 0, err
	}
	return al.key, nil
}

// Between returns a key strictly between two adjacent keys of the scope.
func (a *Allocator) Between(ctx context.Context, scope string, before, after Key) (Key, error) {
	al, err := a.between(ctx, scope, before, after, "")
	if err != nil {
		return 0, err
	}
	return al.key, nil
}

func (a *Allocator) first(ctx context.Context, scope string) (allocation, error) {
	minKey, ok, err := a.store.MinKey(ctx, scope)
	if err != nil {
		return allocation{}, storageErr("read min key", scope, err)
	}
	if !ok {
		a.observer.ObserveAllocation(KindFirst)
		return allocation{key: a.space.Seed}, nil
	}
	return a.beforeFirst(ctx, scope, minKey)
}

func (a *Allocator) afterLast(last Key) (allocation, error) {
	if last > Key(math.MaxInt64)-a.space.Gap {
		return allocation{}, fmt.Errorf("append after %d: %w", last, ErrKeyOverflow)
	}
	a.observer.ObserveAllocation(KindAppend)
	return allocation{key: last + a.space.Gap}, nil
}

// beforeFirst allocates below first, which must be the smallest key of the scope.
func (a *Allocator) beforeFirst(ctx context.Context, scope string, first Key) (allocation, error) {
	if k := first - a.space.Gap; k > 0 {
		a.observer.ObserveAllocation(KindFirst)
		return allocation{key: k}, nil
	}

	rows, err := a.rebalancer.rebalanceLeading(ctx, scope, a.space.LeadingWindow)
	if errors.Is(err, ErrRebalanceExhausted) {
		rows, err = a.respaceScope(ctx, scope, a.space.Seed+a.space.Gap, err)
	}
	if err != nil {
		return allocation{}, err
	}
	minKey, ok, err := a.store.MinKey(ctx, scope)
	if err != nil {
		return allocation{}, storageErr("verify min key", scope, err)
	}
	if ok && minKey <= a.space.Seed {
		return allocation{}, fmt.Errorf("scope %s: min key %d still at or below seed %d after leading rebalance: %w",
			scope, minKey, a.space.Seed, ErrRebalanceExhausted)
	}
	a.logger.Debug("made room at the front", "scope", scope, "rows", len(rows))
	a.observer.ObserveAllocation(KindFirst)
	return allocation{key: a.space.Seed, rebalanced: rows}, nil
}

// between allocates a key right after before. after must be the next key of
// the scope, ignoring the item exclude (the item being moved, if any).
func (a *Allocator) between(ctx context.Context, scope string, before, after Key, exclude string) (allocation, error) {
	if before >= after {
		return allocation{}, &RangeError{Op: "allocate between", Before: before, After: after}
	}
	if after-before >= a.space.MinGap {
		a.observer.ObserveAllocation(KindBetween)
		return allocation{key: midpoint(before, after)}, nil
	}

	lower := before - a.space.Gap
	upper := after
	if upper <= Key(math.MaxInt64)-a.space.Gap {
		upper += a.space.Gap
	}
	rows, err := a.rebalancer.rebalanceRange(ctx, scope, &lower, &upper, a.space.Window)
	if errors.Is(err, ErrRebalanceExhausted) {
		return a.betweenRespaced(ctx, scope, before, after, exclude, nil, err)
	}
	if err != nil {
		return allocation{}, err
	}
	anchor := before
	if lo, hi, found := slotAfter(rows, before, after, exclude); found {
		if hi-lo >= a.space.MinGap {
			a.observer.ObserveAllocation(KindBetween)
			return allocation{key: midpoint(lo, hi), rebalanced: rows}, nil
		}
		anchor = lo
	}

	// Either the window filled up below before, or the row after it could not
	// move. Respace again starting at before's row.
	anchored, err := a.rebalancer.rebalanceRange(ctx, scope, &anchor, nil, a.space.Window)
	if errors.Is(err, ErrRebalanceExhausted) {
		return a.betweenRespaced(ctx, scope, anchor, after, exclude, rows, err)
	}
	if err != nil {
		return allocation{}, err
	}
	rows = mergeRespaced(rows, anchored)
	lo, hi, found := slotAfter(anchored, anchor, after, exclude)
	if found && hi-lo >= a.space.MinGap {
		a.observer.ObserveAllocation(KindBetween)
		return allocation{key: midpoint(lo, hi), rebalanced: rows}, nil
	}
	if found {
		anchor = lo
	}
	return a.betweenRespaced(ctx, scope, anchor, after, exclude, rows,
		fmt.Errorf("no room after %d in window of %d rows", anchor, a.space.Window))
}

// betweenRespaced respaces the whole scope and allocates right after the row
// keyed anchor. rows are earlier respaced rows to report with the result.
func (a *Allocator) betweenRespaced(ctx context.Context, scope string, anchor, after Key, exclude string, rows []respaced, cause error) (allocation, error) {
	full, err := a.respaceScope(ctx, scope, a.space.Gap, cause)
	if err != nil {
		return allocation{}, err
	}
	rows = mergeRespaced(rows, full)
	if lo, hi, found := slotAfter(full, anchor, after, exclude); found && hi-lo >= a.space.MinGap {
		a.observer.ObserveAllocation(KindBetween)
		return allocation{key: midpoint(lo, hi), rebalanced: rows}, nil
	}
	return allocation{}, fmt.Errorf("scope %s: no room between %d and %d: %w",
		scope, anchor, after, ErrRebalanceExhausted)
}

// respaceScope respaces every row of the scope from base, once a bounded
// window could not make room.
func (a *Allocator) respaceScope(ctx context.Context, scope string, base Key, cause error) ([]respaced, error) {
	a.logger.Warn("window rebalance exhausted, respacing scope", "scope", scope, "cause", cause)
	return a.rebalancer.rebalanceScope(ctx, scope, base)
}

// slotAfter finds the new bounds around the position right after the row
// keyed before. When no rewritten row follows it, the untouched key after
// bounds the slot. found is false when no row was keyed before.
func slotAfter(rows []respaced, before, after Key, exclude string) (lo, hi Key, found bool) {
	idx := -1
	for i, r := range rows {
		if r.Key == before && r.ID != exclude {
			idx = i
		}
	}
	if idx < 0 {
		return 0, 0, false
	}
	lo, hi = rows[idx].New, after
	for _, r := range rows[idx+1:] {
		if r.ID != exclude {
			hi = r.New
			break
		}
	}
	return lo, hi, true
}

// mergeRespaced returns a with entries of b replacing those with the same ID.
func mergeRespaced(a, b []respaced) []respaced {
	pos := make(map[string]int, len(a))
	out := make([]respaced, 0, len(a)+len(b))
	for _, r := range a {
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	for _, r := range b {
		if i, ok := pos[r.ID]; ok {
			out[i].New = r.New
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}
