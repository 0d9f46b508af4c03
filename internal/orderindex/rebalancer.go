package orderindex

import (
	"context"
	"fmt"
	"math"

	"github.com/charmbracelet/log"
)

// Rebalancer respaces bounded windows of a scope.
type Rebalancer struct {
	store    Store
	space    Space
	logger   *log.Logger
	observer Observer
}

// NewRebalancer returns a Rebalancer over store. Zero Space fields take defaults.
func NewRebalancer(store Store, space Space, opts ...Option) *Rebalancer {
	o := buildOptions(opts)
	return &Rebalancer{
		store:    store,
		space:    space.WithDefaults(),
		logger:   o.logger,
		observer: o.observer,
	}
}

// respaced is one rewritten row: the entry as read and its new key.
type respaced struct {
	Entry
	New Key
}

type window struct {
	lower *Key
	upper *Key
	limit int
	base  Key
}

// RebalanceRange respaces up to limit rows with lower <= key <= upper,
// starting at lower (clamped to at least Gap) and stepping by Gap.
// A nil bound is open. limit <= 0 uses the configured Window.
//
// The returned assignments cover every row of the window, in order, whether
// or not its key changed. Only changed keys are written.
func (r *Rebalancer) RebalanceRange(ctx context.Context, scope string, lower, upper *Key, limit int) ([]Assignment, error) {
	rows, err := r.rebalanceRange(ctx, scope, lower, upper, limit)
	return assignments(rows), err
}

// RebalanceLeading respaces the first rows of the scope so that the slot at
// Seed is free. limit <= 0 uses the configured LeadingWindow.
func (r *Rebalancer) RebalanceLeading(ctx context.Context, scope string, limit int) ([]Assignment, error) {
	rows, err := r.rebalanceLeading(ctx, scope, limit)
	return assignments(rows), err
}

// RebalanceScope respaces every row of the scope from Gap. It has no window
// cap: the scope is read in chunks of MaxWindow rows and written in an order
// that keeps every prefix sorted.
func (r *Rebalancer) RebalanceScope(ctx context.Context, scope string) ([]Assignment, error) {
	rows, err := r.rebalanceScope(ctx, scope, r.space.Gap)
	return assignments(rows), err
}

func (r *Rebalancer) rebalanceRange(ctx context.Context, scope string, lower, upper *Key, limit int) ([]respaced, error) {
	if lower != nil && upper != nil && *lower > *upper {
		return nil, &RangeError{Op: "rebalance", Before: *lower, After: *upper}
	}
	if limit <= 0 {
		limit = r.space.Window
	}
	base := r.space.Gap
	if lower != nil && *lower >= r.space.Gap {
		base = *lower
	}
	return r.rebalance(ctx, scope, window{lower: lower, upper: upper, limit: limit, base: base})
}

func (r *Rebalancer) rebalanceLeading(ctx context.Context, scope string, limit int) ([]respaced, error) {
	if limit <= 0 {
		limit = r.space.LeadingWindow
	}
	minKey, ok, err := r.store.MinKey(ctx, scope)
	if err != nil {
		return nil, storageErr("read min key", scope, err)
	}
	if !ok {
		return nil, nil
	}
	upper := minKey + r.space.Gap*Key(r.space.LeadingSpan)
	return r.rebalance(ctx, scope, window{upper: &upper, limit: limit, base: r.space.Seed + r.space.Gap})
}

func (r *Rebalancer) rebalance(ctx context.Context, scope string, w window) ([]respaced, error) {
	limit := w.limit
	upper := w.upper
	for {
		rows, err := r.store.Window(ctx, scope, WindowQuery{
			Lower:     w.lower,
			Limit:     limit + 1,
			Direction: Ascending,
		})
		if err != nil {
			err = storageErr("read window", scope, err)
			r.observer.ObserveRebalance(0, err)
			return nil, err
		}

		n := 0
		for n < len(rows) && n < limit && (upper == nil || rows[n].Key <= *upper) {
			n++
		}
		if n == 0 {
			return nil, nil
		}

		last := w.base + Key(n-1)*r.space.Gap
		if last < w.base {
			r.observer.ObserveRebalance(0, ErrKeyOverflow)
			return nil, ErrKeyOverflow
		}
		if n < len(rows) && last >= rows[n].Key {
			if limit >= r.space.MaxWindow {
				err := fmt.Errorf("scope %s: %d rows from %d reach key %d: %w",
					scope, n, w.base, rows[n].Key, ErrRebalanceExhausted)
				r.observer.ObserveRebalance(0, err)
				return nil, err
			}
			// Grown windows drop the caller's upper bound.
			limit = min(limit*2, r.space.MaxWindow)
			upper = nil
			continue
		}

		plan := make([]respaced, n)
		for i := range plan {
			plan[i] = respaced{Entry: rows[i], New: w.base + Key(i)*r.space.Gap}
		}
		written, err := r.write(ctx, scope, plan)
		r.observer.ObserveRebalance(written, err)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("rebalanced window", "scope", scope, "rows", n, "written", written,
			"base", int64(w.base), "last", int64(last))
		return plan, nil
	}
}

func (r *Rebalancer) rebalanceScope(ctx context.Context, scope string, base Key) ([]respaced, error) {
	rows, err := r.readScope(ctx, scope)
	if err != nil {
		r.observer.ObserveRebalance(0, err)
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if Key(len(rows)-1) > (Key(math.MaxInt64)-base)/r.space.Gap {
		r.observer.ObserveRebalance(0, ErrKeyOverflow)
		return nil, fmt.Errorf("scope %s: %d rows from %d: %w", scope, len(rows), base, ErrKeyOverflow)
	}

	plan := make([]respaced, len(rows))
	for i := range plan {
		plan[i] = respaced{Entry: rows[i], New: base + Key(i)*r.space.Gap}
	}
	written, err := r.write(ctx, scope, plan)
	r.observer.ObserveRebalance(written, err)
	if err != nil {
		return nil, err
	}
	r.logger.Info("respaced scope", "scope", scope, "rows", len(plan), "written", written)
	return plan, nil
}

// readScope reads the whole scope in ascending order, MaxWindow rows at a
// time. Each chunk starts at the last key read; rows already seen with that
// key lead the chunk and are dropped.
func (r *Rebalancer) readScope(ctx context.Context, scope string) ([]Entry, error) {
	var (
		rows  []Entry
		lower *Key
		seen  int
	)
	for {
		chunk, err := r.store.Window(ctx, scope, WindowQuery{
			Lower:     lower,
			Limit:     seen + r.space.MaxWindow,
			Direction: Ascending,
		})
		if err != nil {
			return nil, storageErr("read scope", scope, err)
		}
		chunk = chunk[min(seen, len(chunk)):]
		rows = append(rows, chunk...)
		if len(chunk) < r.space.MaxWindow {
			return rows, nil
		}

		last := rows[len(rows)-1].Key
		seen = 0
		for i := len(rows) - 1; i >= 0 && rows[i].Key == last; i-- {
			seen++
		}
		lower = KeyPtr(last)
	}
}

// write persists the changed keys of plan and returns how many were written.
func (r *Rebalancer) write(ctx context.Context, scope string, plan []respaced) (int, error) {
	changed := writeOrder(plan)
	if len(changed) == 0 {
		return 0, nil
	}
	if bw, ok := r.store.(BatchWriter); ok {
		if err := bw.UpdateKeys(ctx, scope, changed); err != nil {
			return 0, storageErr("write rebalanced keys", scope, err)
		}
		return len(changed), nil
	}
	for i, a := range changed {
		if err := r.store.UpdateKey(ctx, scope, a.ID, a.Key); err != nil {
			return i, storageErr(fmt.Sprintf("write rebalanced key %d/%d", i+1, len(changed)), scope, err)
		}
	}
	return len(changed), nil
}

// writeOrder returns the changed rows of plan in an order where every prefix
// keeps the scope sorted: rows moving down first (ascending), then rows
// moving up (descending).
func writeOrder(plan []respaced) []Assignment {
	var out []Assignment
	for _, p := range plan {
		if p.New < p.Key {
			out = append(out, Assignment{ID: p.ID, Key: p.New})
		}
	}
	for i := len(plan) - 1; i >= 0; i-- {
		if plan[i].New > plan[i].Key {
			out = append(out, Assignment{ID: plan[i].ID, Key: plan[i].New})
		}
	}
	return out
}

func assignments(rows []respaced) []Assignment {
	if len(rows) == 0 {
		return nil
	}
	out := make([]Assignment, len(rows))
	for i, r := range rows {
		out[i] = Assignment{ID: r.ID, Key: r.New}
	}
	return out
}
