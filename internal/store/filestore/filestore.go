// Package filestore keeps every user's tasks in one JSON task file, on disk
// or in an object store. Each write loads the file, changes it, validates
// the result and saves it back in one piece.
package filestore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/nibzard/ordo/internal/orderindex"
	"github.com/nibzard/ordo/internal/tasks"
	"github.com/nibzard/ordo/internal/todo"
)

// Store is a tasks.Repository over a task file.
type Store struct {
	mu         sync.Mutex
	backend    Backend
	validation todo.ValidationOptions
	logger     *log.Logger
}

var (
	_ tasks.Repository       = (*Store)(nil)
	_ orderindex.BatchWriter = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithValidation sets how the file is validated before each save.
func WithValidation(opts todo.ValidationOptions) Option {
	return func(s *Store) { s.validation = opts }
}

// New returns a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend, logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend { return s.backend }

func (s *Store) view(ctx context.Context, fn func(*todo.File) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.backend.Load(ctx)
	if err != nil {
		return err
	}
	return fn(f)
}

func (s *Store) update(ctx context.Context, fn func(*todo.File) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.backend.Load(ctx)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		return err
	}
	result := f.Validate(s.validation)
	for _, w := range result.Warnings {
		s.logger.Warn("task file", "location", s.backend.Location(), "warning", w)
	}
	if err := result.Err(); err != nil {
		return fmt.Errorf("refusing to save %s: %w", s.backend.Location(), err)
	}
	if err := s.backend.Save(ctx, f); err != nil {
		return err
	}
	s.logger.Debug("task file saved", "location", s.backend.Location(), "tasks", len(f.Tasks))
	return nil
}

func entries(list []todo.Task) []orderindex.Entry {
	out := make([]orderindex.Entry, len(list))
	for i, t := range list {
		out[i] = tasks.EntryOf(t)
	}
	return out
}

// MaxKey implements orderindex.Store.
func (s *Store) MaxKey(ctx context.Context, user string) (key orderindex.Key, ok bool, err error) {
	err = s.view(ctx, func(f *todo.File) error {
		if list := f.UserTasks(user); len(list) > 0 {
			key, ok = orderindex.Key(list[len(list)-1].OrderIndex), true
		}
		return nil
	})
	return key, ok, err
}

// MinKey implements orderindex.Store.
func (s *Store) MinKey(ctx context.Context, user string) (key orderindex.Key, ok bool, err error) {
	err = s.view(ctx, func(f *todo.File) error {
		if list := f.UserTasks(user); len(list) > 0 {
			key, ok = orderindex.Key(list[0].OrderIndex), true
		}
		return nil
	})
	return key, ok, err
}

// Window implements orderindex.Store.
func (s *Store) Window(ctx context.Context, user string, q orderindex.WindowQuery) ([]orderindex.Entry, error) {
	var out []orderindex.Entry
	err := s.view(ctx, func(f *todo.File) error {
		out = selectWindow(entries(f.UserTasks(user)), q)
		return nil
	})
	return out, err
}

// selectWindow applies q to rows sorted in ascending display order.
func selectWindow(rows []orderindex.Entry, q orderindex.WindowQuery) []orderindex.Entry {
	if q.Direction == orderindex.Descending {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	out := make([]orderindex.Entry, 0, len(rows))
	for _, e := range rows {
		if (q.Lower != nil && e.Key < *q.Lower) || (q.Upper != nil && e.Key > *q.Upper) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}

// UpdateKey implements orderindex.Store.
func (s *Store) UpdateKey(ctx context.Context, user, id string, key orderindex.Key) error {
	return s.update(ctx, func(f *todo.File) error {
		return setKey(f, user, id, key)
	})
}

// UpdateKeys implements orderindex.BatchWriter. The keys land in a single
// save, so either all of them are written or none is.
func (s *Store) UpdateKeys(ctx context.Context, user string, as []orderindex.Assignment) error {
	return s.update(ctx, func(f *todo.File) error {
		for _, a := range as {
			if err := setKey(f, user, a.ID, a.Key); err != nil {
				return err
			}
		}
		return nil
	})
}

func setKey(f *todo.File, user, id string, key orderindex.Key) error {
	t := f.GetTask(user, id)
	if t == nil {
		return fmt.Errorf("task %q: %w", id, todo.ErrNotFound)
	}
	t.OrderIndex = int64(key)
	return nil
}

// Insert implements tasks.Repository.
func (s *Store) Insert(ctx context.Context, t todo.Task) error {
	return s.update(ctx, func(f *todo.File) error { return f.AddTask(t) })
}

// Get implements tasks.Repository.
func (s *Store) Get(ctx context.Context, user, id string) (todo.Task, error) {
	var out todo.Task
	err := s.view(ctx, func(f *todo.File) error {
		t := f.GetTask(user, id)
		if t == nil {
			return fmt.Errorf("task %q: %w", id, todo.ErrNotFound)
		}
		out = *t
		return nil
	})
	return out, err
}

// List implements tasks.Repository.
func (s *Store) List(ctx context.Context, user string) ([]todo.Task, error) {
	out := []todo.Task{}
	err := s.view(ctx, func(f *todo.File) error {
		out = append(out, f.UserTasks(user)...)
		return nil
	})
	return out, err
}

// Replace implements tasks.Repository.
func (s *Store) Replace(ctx context.Context, t todo.Task) error {
	return s.update(ctx, func(f *todo.File) error { return f.ReplaceTask(t) })
}

// Delete implements tasks.Repository.
func (s *Store) Delete(ctx context.Context, user, id string) error {
	return s.update(ctx, func(f *todo.File) error { return f.RemoveTask(user, id) })
}

// Users implements tasks.Repository.
func (s *Store) Users(ctx context.Context) ([]tasks.UserStats, error) {
	var out []tasks.UserStats
	err := s.view(ctx, func(f *todo.File) error {
		byUser := make(map[string]*tasks.UserStats)
		for _, t := range f.Tasks {
			st := byUser[t.UserID]
			if st == nil {
				st = &tasks.UserStats{User: t.UserID}
				byUser[t.UserID] = st
			}
			st.Total++
			if t.Completed {
				st.Completed++
			}
		}
		out = make([]tasks.UserStats, 0, len(byUser))
		for _, st := range byUser {
			out = append(out, *st)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
		return nil
	})
	return out, err
}
