// Package tasks implements task list operations on top of a Repository and
// the order index service.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/nibzard/ordo/internal/orderindex"
	"github.com/nibzard/ordo/internal/todo"
	"github.com/nibzard/ordo/internal/utils"
)

// ErrInvalidInput is returned for malformed drafts, patches and pages.
var ErrInvalidInput = errors.New("invalid input")

// ErrStaleWindow is returned by Move when the displayed window names a task
// that no longer exists. It matches orderindex.ErrUnknownItem.
var ErrStaleWindow = fmt.Errorf("%w: window is stale", orderindex.ErrUnknownItem)

// MaxTitleLength is the longest accepted title, in runes.
const MaxTitleLength = 500

// Service runs task operations. Order-changing calls for one user are
// serialized through the order index service.
type Service struct {
	repo   Repository
	order  *orderindex.Service
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService returns a Service. order must have been built over repo.
func NewService(repo Repository, order *orderindex.Service, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		order:  order,
		logger: log.New(io.Discard),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Draft holds the fields of a new task.
type Draft struct {
	Title     string        `json:"title"`
	Priority  todo.Priority `json:"priority,omitempty"`
	Status    todo.Status   `json:"status,omitempty"`
	StartDate string        `json:"start_date,omitempty"`
	DueDate   string        `json:"due_date,omitempty"`
}

// Create adds a task for user at the given placement.
func (s *Service) Create(ctx context.Context, user string, d Draft, p Placement) (todo.Task, error) {
	if err := checkUser(user); err != nil {
		return todo.Task{}, err
	}
	task, err := s.taskFromDraft(user, d)
	if err != nil {
		return todo.Task{}, err
	}

	err = s.order.Do(ctx, user, func(ctx context.Context, tx *orderindex.Scoped) error {
		key, err := s.allocate(ctx, tx, user, p)
		if err != nil {
			return err
		}
		task.OrderIndex = int64(key)
		return s.repo.Insert(ctx, task)
	})
	if err != nil {
		return todo.Task{}, fmt.Errorf("create task: %w", err)
	}
	s.logger.Info("task created", "user", user, "id", task.ID, "placement", p.String(), "order_index", task.OrderIndex)
	return task, nil
}

func (s *Service) taskFromDraft(user string, d Draft) (todo.Task, error) {
	title, err := normalizeTitle(d.Title)
	if err != nil {
		return todo.Task{}, err
	}
	priority, err := todo.ParsePriority(string(d.Priority))
	if err != nil {
		return todo.Task{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	status, err := todo.ParseStatus(string(d.Status))
	if err != nil {
		return todo.Task{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := checkDates(d.StartDate, d.DueDate); err != nil {
		return todo.Task{}, err
	}

	now := s.now()
	task := todo.Task{
		ID:        s.newID(),
		UserID:    user,
		Title:     title,
		Priority:  priority,
		Status:    status,
		StartDate: d.StartDate,
		DueDate:   d.DueDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	task.SetCompleted(status == todo.StatusDone)
	return task, nil
}

func (s *Service) allocate(ctx context.Context, tx *orderindex.Scoped, user string, p Placement) (orderindex.Key, error) {
	switch p.Kind {
	case PlaceFirst:
		return tx.First(ctx)
	case PlaceAfter, PlaceBefore:
		anchor, err := s.repo.Get(ctx, user, p.Anchor)
		if err != nil {
			return 0, fmt.Errorf("anchor %q: %w", p.Anchor, err)
		}
		key := orderindex.Key(anchor.OrderIndex)
		if p.Kind == PlaceAfter {
			next, err := s.neighbor(ctx, user, key, orderindex.Ascending)
			if err != nil {
				return 0, err
			}
			if next == nil {
				return tx.Append(ctx)
			}
			return tx.Between(ctx, key, next.Key)
		}
		prev, err := s.neighbor(ctx, user, key, orderindex.Descending)
		if err != nil {
			return 0, err
		}
		if prev == nil {
			return tx.First(ctx)
		}
		return tx.Between(ctx, prev.Key, key)
	default:
		return tx.Append(ctx)
	}
}

func (s *Service) neighbor(ctx context.Context, user string, key orderindex.Key, dir orderindex.Direction) (*orderindex.Entry, error) {
	q := orderindex.WindowQuery{Limit: 1, Direction: dir}
	if dir == orderindex.Ascending {
		q.Lower = orderindex.KeyPtr(key + 1)
	} else {
		q.Upper = orderindex.KeyPtr(key - 1)
	}
	rows, err := s.repo.Window(ctx, user, q)
	if err != nil {
		return nil, &orderindex.StorageError{Op: "read neighbor", Scope: user, Err: err}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Get returns one task.
func (s *Service) Get(ctx context.Context, user, id string) (todo.Task, error) {
	return s.repo.Get(ctx, user, id)
}

// Patch holds optional task field changes. Nil fields are left alone; an
// empty date string clears the date.
type Patch struct {
	Title     *string        `json:"title,omitempty"`
	Priority  *todo.Priority `json:"priority,omitempty"`
	Status    *todo.Status   `json:"status,omitempty"`
	StartDate *string        `json:"start_date,omitempty"`
	DueDate   *string        `json:"due_date,omitempty"`
	Completed *bool          `json:"completed,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Priority == nil && p.Status == nil &&
		p.StartDate == nil && p.DueDate == nil && p.Completed == nil
}

// Update applies a patch and returns the updated task.
func (s *Service) Update(ctx context.Context, user, id string, p Patch) (todo.Task, error) {
	if p.IsEmpty() {
		return todo.Task{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	return s.modify(ctx, user, id, func(t *todo.Task) error {
		if p.Title != nil {
			title, err := normalizeTitle(*p.Title)
			if err != nil {
				return err
			}
			t.Title = title
		}
		if p.Priority != nil {
			pr, err := todo.ParsePriority(string(*p.Priority))
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			t.Priority = pr
		}
		if p.Status != nil {
			st, err := todo.ParseStatus(string(*p.Status))
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			t.Status = st
			t.Completed = st == todo.StatusDone
		}
		if p.Completed != nil {
			t.SetCompleted(*p.Completed)
		}
		if p.StartDate != nil {
			t.StartDate = *p.StartDate
		}
		if p.DueDate != nil {
			t.DueDate = *p.DueDate
		}
		return checkDates(t.StartDate, t.DueDate)
	})
}

// Toggle flips the completion state of a task.
func (s *Service) Toggle(ctx context.Context, user, id string) (todo.Task, error) {
	return s.modify(ctx, user, id, func(t *todo.Task) error {
		t.SetCompleted(!t.Completed)
		return nil
	})
}

func (s *Service) modify(ctx context.Context, user, id string, fn func(*todo.Task) error) (todo.Task, error) {
	var task todo.Task
	err := s.order.Do(ctx, user, func(ctx context.Context, _ *orderindex.Scoped) error {
		var err error
		if task, err = s.repo.Get(ctx, user, id); err != nil {
			return err
		}
		if err := fn(&task); err != nil {
			return err
		}
		task.UpdatedAt = s.now()
		return s.repo.Replace(ctx, task)
	})
	if err != nil {
		return todo.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	s.logger.Info("task updated", "user", user, "id", id, "completed", task.Completed, "status", task.Status)
	return task, nil
}

// Delete removes a task.
func (s *Service) Delete(ctx context.Context, user, id string) error {
	err := s.order.Do(ctx, user, func(ctx context.Context, _ *orderindex.Scoped) error {
		return s.repo.Delete(ctx, user, id)
	})
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	s.logger.Info("task deleted", "user", user, "id", id)
	return nil
}

// MoveRequest asks for ItemID to land at Target within the displayed Window
// (task ids in display order). An empty Window means the whole list.
type MoveRequest struct {
	Window    []string             `json:"window,omitempty"`
	ItemID    string               `json:"item_id"`
	Target    int                  `json:"target"`
	Direction orderindex.Direction `json:"-"`
}

// Move reorders a task and returns the applied assignments. Keys are read
// fresh from storage; the client only supplies ids and positions.
func (s *Service) Move(ctx context.Context, user string, req MoveRequest) ([]orderindex.Assignment, error) {
	var plan []orderindex.Assignment
	err := s.order.Do(ctx, user, func(ctx context.Context, tx *orderindex.Scoped) error {
		all, err := s.repo.List(ctx, user)
		if err != nil {
			return &orderindex.StorageError{Op: "load window", Scope: user, Err: err}
		}
		if !slices.ContainsFunc(all, func(t todo.Task) bool { return t.ID == req.ItemID }) {
			return fmt.Errorf("task %q: %w", req.ItemID, todo.ErrNotFound)
		}
		window, err := buildWindow(all, req.Window, req.Direction)
		if err != nil {
			return err
		}
		plan, err = tx.PlanMove(ctx, orderindex.Move{
			Window:    window,
			ItemID:    req.ItemID,
			Target:    req.Target,
			Direction: req.Direction,
		})
		if err != nil {
			return err
		}
		return tx.Apply(ctx, plan)
	})
	if err != nil {
		return nil, fmt.Errorf("move task %s: %w", req.ItemID, err)
	}
	s.logger.Info("task moved", "user", user, "id", req.ItemID, "target", req.Target, "assignments", len(plan))
	return plan, nil
}

func buildWindow(all []todo.Task, ids []string, dir orderindex.Direction) ([]orderindex.Entry, error) {
	if len(ids) == 0 {
		out := make([]orderindex.Entry, len(all))
		for i, t := range all {
			out[i] = EntryOf(t)
		}
		if dir == orderindex.Descending {
			for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
				out[i], out[j] = out[j], out[i]
			}
		}
		return out, nil
	}

	byID := make(map[string]todo.Task, len(all))
	for _, t := range all {
		byID[t.ID] = t
	}
	out := make([]orderindex.Entry, 0, len(ids))
	seen := mapset.NewThreadUnsafeSetWithSize[string](len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("window task %q is gone: %w", id, ErrStaleWindow)
		}
		if !seen.Add(id) {
			return nil, fmt.Errorf("%w: task %q appears twice in window", ErrInvalidInput, id)
		}
		out = append(out, EntryOf(t))
	}
	return out, nil
}

// EntryOf returns the order index view of a task.
func EntryOf(t todo.Task) orderindex.Entry {
	return orderindex.Entry{ID: t.ID, Key: orderindex.Key(t.OrderIndex), CreatedAt: t.CreatedAt}
}

// Rebalance respaces a user's list from the start.
func (s *Service) Rebalance(ctx context.Context, user string) ([]orderindex.Assignment, error) {
	out, err := s.order.Rebalance(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("rebalance %s: %w", user, err)
	}
	s.logger.Info("list rebalanced", "user", user, "tasks", len(out))
	return out, nil
}

func checkUser(user string) error {
	if strings.TrimSpace(user) == "" {
		return fmt.Errorf("%w: user is empty", ErrInvalidInput)
	}
	return nil
}

func normalizeTitle(title string) (string, error) {
	title = utils.NormalizeTitle(title)
	switch {
	case title == "":
		return "", fmt.Errorf("%w: title is empty", ErrInvalidInput)
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return "", fmt.Errorf("%w: title longer than %d characters", ErrInvalidInput, MaxTitleLength)
	}
	return title, nil
}

func checkDates(start, due string) error {
	var startAt, dueAt time.Time
	var err error
	if start != "" {
		if startAt, err = time.Parse(todo.DateLayout, start); err != nil {
			return fmt.Errorf("%w: start date %q is not YYYY-MM-DD", ErrInvalidInput, start)
		}
	}
	if due != "" {
		if dueAt, err = time.Parse(todo.DateLayout, due); err != nil {
			return fmt.Errorf("%w: due date %q is not YYYY-MM-DD", ErrInvalidInput, due)
		}
	}
	if start != "" && due != "" && dueAt.Before(startAt) {
		return fmt.Errorf("%w: due date %s is before start date %s", ErrInvalidInput, due, start)
	}
	return nil
}
