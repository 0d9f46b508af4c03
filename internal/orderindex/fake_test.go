package orderindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected failure")

// fakeStore is an in-memory Store. failWritesAfter >= 0 makes every write
// after that many successful ones fail; failReads makes reads fail.
type fakeStore struct {
	mu              sync.Mutex
	rows            map[string]map[string]Entry
	writes          int
	windowCalls     int
	failWritesAfter int
	failReads       bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]map[string]Entry), failWritesAfter: -1}
}

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// seed adds rows with the given keys, ids "t0", "t1"... and strictly
// increasing creation times.
func (f *fakeStore) seed(scope string, keys ...Key) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows[scope] == nil {
		f.rows[scope] = make(map[string]Entry)
	}
	n := len(f.rows[scope])
	ids := make([]string, len(keys))
	for i, k := range keys {
		id := fmt.Sprintf("t%d", n+i)
		f.rows[scope][id] = Entry{ID: id, Key: k, CreatedAt: baseTime.Add(time.Duration(n+i) * time.Minute)}
		ids[i] = id
	}
	return ids
}

func (f *fakeStore) insert(scope, id string, key Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows[scope] == nil {
		f.rows[scope] = make(map[string]Entry)
	}
	f.rows[scope][id] = Entry{ID: id, Key: key, CreatedAt: baseTime.Add(time.Duration(len(f.rows[scope])) * time.Minute)}
}

func (f *fakeStore) sorted(scope string) []Entry {
	out := make([]Entry, 0, len(f.rows[scope]))
	for _, e := range f.rows[scope] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// ordered returns the ids of scope in ascending order.
func (f *fakeStore) ordered(scope string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, e := range f.sorted(scope) {
		ids = append(ids, e.ID)
	}
	return ids
}

func (f *fakeStore) key(scope, id string) Key {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[scope][id].Key
}

func (f *fakeStore) entries(scope string) []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(scope)
}

func (f *fakeStore) MaxKey(_ context.Context, scope string) (Key, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return 0, false, errInjected
	}
	rows := f.sorted(scope)
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[len(rows)-1].Key, true, nil
}

func (f *fakeStore) MinKey(_ context.Context, scope string) (Key, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return 0, false, errInjected
	}
	rows := f.sorted(scope)
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].Key, true, nil
}

func (f *fakeStore) Window(_ context.Context, scope string, q WindowQuery) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windowCalls++
	if f.failReads {
		return nil, errInjected
	}
	rows := f.sorted(scope)
	if q.Direction == Descending {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	var out []Entry
	for _, e := range rows {
		if q.Lower != nil && e.Key < *q.Lower {
			continue
		}
		if q.Upper != nil && e.Key > *q.Upper {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateKey(_ context.Context, scope, id string, key Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWritesAfter >= 0 && f.writes >= f.failWritesAfter {
		return errInjected
	}
	e, ok := f.rows[scope][id]
	if !ok {
		return fmt.Errorf("no row %s", id)
	}
	e.Key = key
	f.rows[scope][id] = e
	f.writes++
	return nil
}

// batchStore adds an all-or-nothing BatchWriter to fakeStore.
type batchStore struct {
	*fakeStore
	batches int
}

func (b *batchStore) UpdateKeys(_ context.Context, scope string, as []Assignment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWritesAfter >= 0 {
		return errInjected
	}
	for _, a := range as {
		if _, ok := b.rows[scope][a.ID]; !ok {
			return fmt.Errorf("no row %s", a.ID)
		}
	}
	for _, a := range as {
		e := b.rows[scope][a.ID]
		e.Key = a.Key
		b.rows[scope][a.ID] = e
	}
	b.batches++
	b.writes += len(as)
	return nil
}

// countingObserver records events for assertions.
type countingObserver struct {
	mu          sync.Mutex
	allocations map[string]int
	rebalances  int
	failures    int
	plans       int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{allocations: make(map[string]int)}
}

func (c *countingObserver) ObserveAllocation(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allocations[kind]++
}

func (c *countingObserver) ObserveRebalance(_ int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failures++
		return
	}
	c.rebalances++
}

func (c *countingObserver) ObservePlan(int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans++
}

// requireStrictlyIncreasing checks that the keys of scope are unique, and
// therefore that key order and display order agree.
func requireStrictlyIncreasing(t *testing.T, f *fakeStore, scope string) {
	t.Helper()
	rows := f.entries(scope)
	for i := 1; i < len(rows); i++ {
		require.Less(t, rows[i-1].Key, rows[i].Key, "rows %s and %s", rows[i-1].ID, rows[i].ID)
	}
}

// applyPlan writes a plan into f the way a caller would.
func applyPlan(t *testing.T, f *fakeStore, scope string, plan []Assignment) {
	t.Helper()
	require.NoError(t, ApplyAssignments(context.Background(), f, scope, plan))
}

// denseKeys returns the keys 1..n, the way a max+1 append leaves a scope.
func denseKeys(n int) []Key {
	keys := make([]Key, n)
	for i := range keys {
		keys[i] = Key(i + 1)
	}
	return keys
}
