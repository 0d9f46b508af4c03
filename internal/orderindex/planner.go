package orderindex

import (
	"context"

	"github.com/charmbracelet/log"
)

// Move describes a drag-and-drop inside a displayed window.
type Move struct {
	// Window is the displayed rows, in display order.
	Window []Entry
	// ItemID is the row being moved. It must be part of Window.
	ItemID string
	// Target is the index the item should land on, counted over Window with
	// the item removed. 0 is the top, len(Window)-1 the bottom.
	Target int
	// Direction is the display order of Window.
	Direction Direction
}

// Planner computes the assignments for a move without writing them.
type Planner struct {
	store     Store
	allocator *Allocator
	logger    *log.Logger
	observer  Observer
}

// NewPlanner returns a Planner over store. Zero Space fields take defaults.
func NewPlanner(store Store, space Space, opts ...Option) *Planner {
	o := buildOptions(opts)
	return &Planner{
		store:     store,
		allocator: NewAllocator(store, space, opts...),
		logger:    o.logger,
		observer:  o.observer,
	}
}

// PlanMove returns the keys to persist so that m.ItemID displays at m.Target.
//
// The result holds the moved item's key and, when a rebalance was needed,
// the new key of every rebalanced row, one entry per item. Rebalanced keys
// are already persisted. An empty result means nothing has to change.
func (p *Planner) PlanMove(ctx context.Context, scope string, m Move) ([]Assignment, error) {
	from := -1
	for i, e := range m.Window {
		if e.ID == m.ItemID {
			from = i
			break
		}
	}
	if from < 0 {
		return nil, ErrUnknownItem
	}

	rest := make([]Entry, 0, len(m.Window)-1)
	rest = append(rest, m.Window[:from]...)
	rest = append(rest, m.Window[from+1:]...)
	if m.Target < 0 || m.Target > len(rest) {
		return nil, &TargetError{Target: m.Target, Max: len(rest)}
	}
	if len(rest) == 0 || m.Target == from {
		p.observer.ObservePlan(0)
		return nil, nil
	}

	var above, below *Entry
	if m.Target > 0 {
		above = &rest[m.Target-1]
	}
	if m.Target < len(rest) {
		below = &rest[m.Target]
	}
	lower, upper := above, below
	if m.Direction == Descending {
		lower, upper = below, above
	}

	var err error
	switch {
	case lower == nil:
		if lower, err = p.neighbor(ctx, scope, upper.Key, Descending, m.ItemID); err != nil {
			return nil, err
		}
	default:
		// Filtered or stale windows may hide rows between the display
		// neighbors; the row stored right after lower is the real bound.
		next, err := p.neighbor(ctx, scope, lower.Key, Ascending, m.ItemID)
		if err != nil {
			return nil, err
		}
		if upper == nil || (next != nil && next.Key < upper.Key) {
			upper = next
		}
	}

	var al allocation
	switch {
	case lower == nil:
		al, err = p.allocator.beforeFirst(ctx, scope, upper.Key)
	case upper == nil:
		al, err = p.allocator.afterLast(lower.Key)
	default:
		al, err = p.allocator.between(ctx, scope, lower.Key, upper.Key, m.ItemID)
	}
	if err != nil {
		return nil, err
	}

	plan := make([]Assignment, 0, len(al.rebalanced)+1)
	for _, r := range al.rebalanced {
		if r.ID != m.ItemID {
			plan = append(plan, Assignment{ID: r.ID, Key: r.New})
		}
	}
	plan = append(plan, Assignment{ID: m.ItemID, Key: al.key})

	p.logger.Debug("planned move", "scope", scope, "item", m.ItemID, "from", from, "to", m.Target,
		"key", int64(al.key), "rebalanced", len(al.rebalanced))
	p.observer.ObservePlan(len(plan))
	return plan, nil
}

// neighbor returns the closest stored row strictly below (Descending) or
// above (Ascending) key, skipping the moved item. Rows outside a paged
// window are found this way.
func (p *Planner) neighbor(ctx context.Context, scope string, key Key, dir Direction, skip string) (*Entry, error) {
	q := WindowQuery{Limit: 2, Direction: dir}
	if dir == Descending {
		q.Upper = KeyPtr(key - 1)
	} else {
		q.Lower = KeyPtr(key + 1)
	}
	rows, err := p.store.Window(ctx, scope, q)
	if err != nil {
		return nil, storageErr("read neighbor", scope, err)
	}
	for i := range rows {
		if rows[i].ID != skip {
			return &rows[i], nil
		}
	}
	return nil, nil
}
