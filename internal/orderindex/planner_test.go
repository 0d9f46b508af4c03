package orderindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// display returns the rows of ids in the given order, as a client would
// hold them.
func display(f *fakeStore, ids ...string) []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Entry, len(ids))
	for i, id := range ids {
		out[i] = f.rows[scope][id]
	}
	return out
}

func reversed(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}

func TestPlanMoveNoop(t *testing.T) {
	f := newFakeStore()
	ids := f.seed(scope, 10000, 20000, 30000)
	p := NewPlanner(f, DefaultSpace())
	ctx := context.Background()

	plan, err := p.PlanMove(ctx, scope, Move{Window: display(f, ids[0]), ItemID: ids[0], Target: 0})
	require.NoError(t, err)
	assert.Empty(t, plan, "single row window")

	plan, err = p.PlanMove(ctx, scope, Move{Window: display(f, ids...), ItemID: ids[1], Target: 1})
	require.NoError(t, err)
	assert.Empty(t, plan, "target is the current index")
	assert.Equal(t, 0, f.windowCalls)
}

func TestPlanMoveRejectsBadInput(t *testing.T) {
	f := newFakeStore()
	ids := f.seed(scope, 10000, 20000)
	p := NewPlanner(f, DefaultSpace())
	ctx := context.Background()

	_, err := p.PlanMove(ctx, scope, Move{Window: display(f, ids...), ItemID: "missing", Target: 0})
	require.ErrorIs(t, err, ErrUnknownItem)

	_, err = p.PlanMove(ctx, scope, Move{Window: display(f, ids...), ItemID: ids[0], Target: 2})
	var targetErr *TargetError
	require.ErrorAs(t, err, &targetErr)
	assert.Equal(t, 1, targetErr.Max)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = p.PlanMove(ctx, scope, Move{Window: display(f, ids...), ItemID: ids[0], Target: -1})
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestPlanMoveAscending(t *testing.T) {
	tests := []struct {
		name      string
		keys      []Key
		item      int
		target    int
		wantOrder []int
		wantPlan  int
	}{
		{name: "to top with room", keys: []Key{30000, 40000, 50000}, item: 2, target: 0, wantOrder: []int{2, 0, 1}, wantPlan: 1},
		{name: "to top without room", keys: []Key{10000, 20000, 30000}, item: 2, target: 0, wantOrder: []int{2, 0, 1}, wantPlan: 3},
		{name: "to bottom", keys: []Key{10000, 20000, 30000}, item: 0, target: 2, wantOrder: []int{1, 2, 0}, wantPlan: 1},
		{name: "down one", keys: []Key{10000, 20000, 30000}, item: 0, target: 1, wantOrder: []int{1, 0, 2}, wantPlan: 1},
		{name: "up one", keys: []Key{10000, 20000, 30000}, item: 2, target: 1, wantOrder: []int{0, 2, 1}, wantPlan: 1},
		{name: "into a tight gap", keys: []Key{10000, 10001, 10002}, item: 2, target: 1, wantOrder: []int{0, 2, 1}, wantPlan: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeStore()
			ids := f.seed(scope, tt.keys...)
			plan, err := NewPlanner(f, DefaultSpace()).PlanMove(context.Background(), scope, Move{
				Window: display(f, ids...),
				ItemID: ids[tt.item],
				Target: tt.target,
			})
			require.NoError(t, err)
			require.Len(t, plan, tt.wantPlan)
			assert.Equal(t, ids[tt.item], plan[len(plan)-1].ID, "moved item comes last")

			applyPlan(t, f, scope, plan)
			want := make([]string, len(tt.wantOrder))
			for i, idx := range tt.wantOrder {
				want[i] = ids[idx]
			}
			assert.Equal(t, want, f.ordered(scope))
			requireStrictlyIncreasing(t, f, scope)
		})
	}
}

func TestPlanMoveTightGapReturnsRebalancedRows(t *testing.T) {
	f := newFakeStore()
	ids := f.seed(scope, 10000, 10001, 10002)
	plan, err := NewPlanner(f, DefaultSpace()).PlanMove(context.Background(), scope, Move{
		Window: display(f, ids...),
		ItemID: ids[2],
		Target: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []Assignment{
		{ID: ids[0], Key: 10000},
		{ID: ids[1], Key: 20000},
		{ID: ids[2], Key: 15000},
	}, plan)
}

func TestPlanMoveDenseScopePastMaxWindow(t *testing.T) {
	f := newFakeStore()
	ids := f.seed(scope, denseKeys(400)...)
	moved := ids[399]

	plan, err := NewPlanner(f, DefaultSpace()).PlanMove(context.Background(), scope, Move{
		Window: display(f, ids...),
		ItemID: moved,
		Target: 1,
	})
	require.NoError(t, err)
	require.Len(t, plan, 400)
	assert.Equal(t, Assignment{ID: moved, Key: 15000}, plan[len(plan)-1])

	// Rebalanced keys are already persisted.
	assert.Equal(t, Key(10000), f.key(scope, ids[0]))
	assert.Equal(t, Key(20000), f.key(scope, ids[1]))

	applyPlan(t, f, scope, plan)
	order := f.ordered(scope)
	assert.Equal(t, []string{ids[0], moved, ids[1]}, order[:3])
	requireStrictlyIncreasing(t, f, scope)
}

func TestPlanMoveDescending(t *testing.T) {
	tests := []struct {
		name      string
		item      int
		target    int
		wantOrder []int
	}{
		{name: "to display top", item: 0, target: 0, wantOrder: []int{1, 2, 0}},
		{name: "to display bottom", item: 2, target: 2, wantOrder: []int{2, 0, 1}},
		{name: "middle", item: 2, target: 1, wantOrder: []int{0, 2, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeStore()
			ids := f.seed(scope, 10000, 20000, 30000)
			shown := reversed(ids)
			plan, err := NewPlanner(f, DefaultSpace()).PlanMove(context.Background(), scope, Move{
				Window:    display(f, shown...),
				ItemID:    ids[tt.item],
				Target:    tt.target,
				Direction: Descending,
			})
			require.NoError(t, err)
			applyPlan(t, f, scope, plan)

			want := make([]string, len(tt.wantOrder))
			for i, idx := range tt.wantOrder {
				want[i] = ids[idx]
			}
			assert.Equal(t, want, f.ordered(scope), "ascending key order")
			requireStrictlyIncreasing(t, f, scope)
		})
	}
}

func TestPlanMovePagedWindowLooksPastTheEdge(t *testing.T) {
	f := newFakeStore()
	ids := f.seed(scope, 10000, 20000, 30000, 40000, 50000, 60000)
	page := display(f, ids[2], ids[3])

	plan, err := NewPlanner(f, DefaultSpace()).PlanMove(context.Background(), scope, Move{
		Window: page,
		ItemID: ids[2],
		Target: 1,
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, Key(45000), plan[0].Key)

	applyPlan(t, f, scope, plan)
	assert.Equal(t, []string{ids[0], ids[1], ids[3], ids[2], ids[4], ids[5]}, f.ordered(scope))
}

func TestPlanMovePagedWindowToPageTop(t *testing.T) {
	f := newFakeStore()
	ids := f.seed(scope, 10000, 20000, 30000, 40000)
	page := display(f, ids[2], ids[3])

	plan, err := NewPlanner(f, DefaultSpace()).PlanMove(context.Background(), scope, Move{
		Window: page,
		ItemID: ids[3],
		Target: 0,
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, Key(25000), plan[0].Key)
}

func TestPlanMoveFilteredWindowSkipsHiddenRows(t *testing.T) {
	f := newFakeStore()
	ids := f.seed(scope, 10000, 20000, 30000, 40000)
	// ids[1] is hidden by a filter.
	shown := display(f, ids[0], ids[2], ids[3])

	plan, err := NewPlanner(f, DefaultSpace()).PlanMove(context.Background(), scope, Move{
		Window: shown,
		ItemID: ids[3],
		Target: 1,
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, Key(15000), plan[0].Key)

	applyPlan(t, f, scope, plan)
	requireStrictlyIncreasing(t, f, scope)
}

func TestPlanMoveStorageFailure(t *testing.T) {
	f := newFakeStore()
	ids := f.seed(scope, 10000, 20000, 30000)
	f.failReads = true
	obs := newCountingObserver()

	_, err := NewPlanner(f, DefaultSpace(), WithObserver(obs)).PlanMove(context.Background(), scope, Move{
		Window: display(f, ids...),
		ItemID: ids[0],
		Target: 2,
	})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 0, obs.plans)
}
