// Package memstore keeps tasks in memory, one B-tree per user ordered the
// way lists display.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/nibzard/ordo/internal/orderindex"
	"github.com/nibzard/ordo/internal/tasks"
	"github.com/nibzard/ordo/internal/todo"
)

const degree = 16

// maxID sorts after every real task id with the same key and creation time.
const maxID = "\U0010FFFF"

type item struct {
	key     orderindex.Key
	created time.Time
	id      string
}

func (it item) entry() orderindex.Entry {
	return orderindex.Entry{ID: it.id, Key: it.key, CreatedAt: it.created}
}

func less(a, b item) bool {
	return orderindex.Less(a.entry(), b.entry())
}

func itemOf(t todo.Task) item {
	return item{key: orderindex.Key(t.OrderIndex), created: t.CreatedAt, id: t.ID}
}

type scope struct {
	byID  map[string]todo.Task
	index *btree.BTreeG[item]
}

// Store is a goroutine-safe in-memory tasks.Repository.
type Store struct {
	mu     sync.RWMutex
	scopes map[string]*scope
}

var (
	_ tasks.Repository       = (*Store)(nil)
	_ orderindex.BatchWriter = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{scopes: make(map[string]*scope)}
}

// Load returns a store holding a copy of tasks.
func Load(list []todo.Task) (*Store, error) {
	s := New()
	for _, t := range list {
		if err := s.Insert(context.Background(), t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) scope(user string, create bool) *scope {
	sc := s.scopes[user]
	if sc == nil && create {
		sc = &scope{byID: make(map[string]todo.Task), index: btree.NewG(degree, less)}
		s.scopes[user] = sc
	}
	return sc
}

func notFound(id string) error {
	return fmt.Errorf("task %q: %w", id, todo.ErrNotFound)
}

// MaxKey implements orderindex.Store.
func (s *Store) MaxKey(_ context.Context, user string) (orderindex.Key, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc := s.scope(user, false)
	if sc == nil {
		return 0, false, nil
	}
	it, ok := sc.index.Max()
	return it.key, ok, nil
}

// MinKey implements orderindex.Store.
func (s *Store) MinKey(_ context.Context, user string) (orderindex.Key, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc := s.scope(user, false)
	if sc == nil {
		return 0, false, nil
	}
	it, ok := sc.index.Min()
	return it.key, ok, nil
}

// Window implements orderindex.Store.
func (s *Store) Window(_ context.Context, user string, q orderindex.WindowQuery) ([]orderindex.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc := s.scope(user, false)
	if sc == nil {
		return nil, nil
	}

	var out []orderindex.Entry
	visit := func(it item) bool {
		if q.Direction == orderindex.Descending && q.Lower != nil && it.key < *q.Lower {
			return false
		}
		if q.Direction == orderindex.Ascending && q.Upper != nil && it.key > *q.Upper {
			return false
		}
		out = append(out, it.entry())
		return q.Limit <= 0 || len(out) < q.Limit
	}

	switch {
	case q.Direction == orderindex.Descending && q.Upper != nil:
		sc.index.DescendLessOrEqual(item{key: *q.Upper, id: maxID}, visit)
	case q.Direction == orderindex.Descending:
		sc.index.Descend(visit)
	case q.Lower != nil:
		sc.index.AscendGreaterOrEqual(item{key: *q.Lower, created: time.Unix(1<<62, 0)}, visit)
	default:
		sc.index.Ascend(visit)
	}
	return out, nil
}

// UpdateKey implements orderindex.Store.
func (s *Store) UpdateKey(_ context.Context, user, id string, key orderindex.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scope(user, false)
	if sc == nil {
		return notFound(id)
	}
	t, ok := sc.byID[id]
	if !ok {
		return notFound(id)
	}
	sc.setKey(t, key)
	return nil
}

// UpdateKeys implements orderindex.BatchWriter. Either every key is written
// or none is.
func (s *Store) UpdateKeys(_ context.Context, user string, as []orderindex.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scope(user, false)
	for _, a := range as {
		if sc == nil {
			return notFound(a.ID)
		}
		if _, ok := sc.byID[a.ID]; !ok {
			return notFound(a.ID)
		}
	}
	for _, a := range as {
		sc.setKey(sc.byID[a.ID], a.Key)
	}
	return nil
}

func (sc *scope) setKey(t todo.Task, key orderindex.Key) {
	sc.index.Delete(itemOf(t))
	t.OrderIndex = int64(key)
	sc.byID[t.ID] = t
	sc.index.ReplaceOrInsert(itemOf(t))
}

// Insert implements tasks.Repository.
func (s *Store) Insert(_ context.Context, t todo.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scope(t.UserID, true)
	if _, ok := sc.byID[t.ID]; ok {
		return fmt.Errorf("task %q already exists", t.ID)
	}
	sc.byID[t.ID] = t
	sc.index.ReplaceOrInsert(itemOf(t))
	return nil
}

// Get implements tasks.Repository.
func (s *Store) Get(_ context.Context, user, id string) (todo.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sc := s.scope(user, false); sc != nil {
		if t, ok := sc.byID[id]; ok {
			return t, nil
		}
	}
	return todo.Task{}, notFound(id)
}

// List implements tasks.Repository.
func (s *Store) List(_ context.Context, user string) ([]todo.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc := s.scope(user, false)
	if sc == nil {
		return []todo.Task{}, nil
	}
	out := make([]todo.Task, 0, sc.index.Len())
	sc.index.Ascend(func(it item) bool {
		out = append(out, sc.byID[it.id])
		return true
	})
	return out, nil
}

// Replace implements tasks.Repository.
func (s *Store) Replace(_ context.Context, t todo.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scope(t.UserID, false)
	if sc == nil {
		return notFound(t.ID)
	}
	old, ok := sc.byID[t.ID]
	if !ok {
		return notFound(t.ID)
	}
	sc.index.Delete(itemOf(old))
	sc.byID[t.ID] = t
	sc.index.ReplaceOrInsert(itemOf(t))
	return nil
}

// Delete implements tasks.Repository.
func (s *Store) Delete(_ context.Context, user, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scope(user, false)
	if sc == nil {
		return notFound(id)
	}
	t, ok := sc.byID[id]
	if !ok {
		return notFound(id)
	}
	sc.index.Delete(itemOf(t))
	delete(sc.byID, id)
	if len(sc.byID) == 0 {
		delete(s.scopes, user)
	}
	return nil
}

// Users implements tasks.Repository.
func (s *Store) Users(_ context.Context) ([]tasks.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tasks.UserStats, 0, len(s.scopes))
	for user, sc := range s.scopes {
		st := tasks.UserStats{User: user, Total: len(sc.byID)}
		for _, t := range sc.byID {
			if t.Completed {
				st.Completed++
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out, nil
}
