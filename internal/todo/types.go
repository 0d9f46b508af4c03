// Package todo defines tasks and the task file format.
package todo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned by stores for a missing task.
var ErrNotFound = errors.New("task not found")

// Priority is a task priority.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists the valid priorities, lowest first.
var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

// ParsePriority accepts a priority name (case-insensitive). Empty is normal.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityNormal, nil
	}
	for _, p := range Priorities {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid priority %q, must be one of: low, normal, high, urgent", s)
}

// Status is a task workflow status.
type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusOnHold     Status = "on_hold"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists the valid statuses.
var Statuses = []Status{StatusPlanned, StatusInProgress, StatusDone, StatusOnHold, StatusCancelled}

// ParseStatus accepts a status name (case-insensitive, "-" for "_"). Empty is planned.
func ParseStatus(s string) (Status, error) {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if s == "" {
		return StatusPlanned, nil
	}
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid status %q, must be one of: planned, in_progress, done, on_hold, cancelled", s)
}

// DateLayout is the layout of StartDate and DueDate.
const DateLayout = "2006-01-02"

// Task is one entry of a user's task list.
type Task struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	Completed  bool      `json:"completed"`
	OrderIndex int64     `json:"order_index"`
	Priority   Priority  `json:"priority"`
	Status     Status    `json:"status"`
	StartDate  string    `json:"start_date,omitempty"`
	DueDate    string    `json:"due_date,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsZero returns true if the task is empty (has no ID).
func (t *Task) IsZero() bool {
	return t.ID == ""
}

// SetCompleted flips the completion flag and keeps Status consistent with it.
func (t *Task) SetCompleted(done bool) {
	t.Completed = done
	switch {
	case done:
		t.Status = StatusDone
	case t.Status == StatusDone:
		t.Status = StatusPlanned
	}
}

// Before reports whether t displays before u in ascending order: order index
// first, then newest first, then id.
func (t *Task) Before(u *Task) bool {
	if t.OrderIndex != u.OrderIndex {
		return t.OrderIndex < u.OrderIndex
	}
	if !t.CreatedAt.Equal(u.CreatedAt) {
		return t.CreatedAt.After(u.CreatedAt)
	}
	return t.ID < u.ID
}

// SortByOrder sorts tasks in ascending display order.
func SortByOrder(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Before(&tasks[j]) })
}

// File is the task file: every user's tasks in one document.
type File struct {
	SchemaVersion int    `json:"schema_version"`
	Tasks         []Task `json:"tasks"`
}

// NewFile returns an empty file at the current schema version.
func NewFile() *File {
	return &File{SchemaVersion: 1, Tasks: []Task{}}
}

// GetTask returns the task of user with id, or nil if not found.
func (f *File) GetTask(user, id string) *Task {
	for i := range f.Tasks {
		if f.Tasks[i].ID == id && f.Tasks[i].UserID == user {
			return &f.Tasks[i]
		}
	}
	return nil
}

// UserTasks returns a copy of user's tasks in ascending display order.
func (f *File) UserTasks(user string) []Task {
	var out []Task
	for _, t := range f.Tasks {
		if t.UserID == user {
			out = append(out, t)
		}
	}
	SortByOrder(out)
	return out
}

// AddTask appends a task, stamping CreatedAt and UpdatedAt when unset.
func (f *File) AddTask(task Task) error {
	if f.GetTask(task.UserID, task.ID) != nil {
		return fmt.Errorf("task %q already exists", task.ID)
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = task.CreatedAt
	}
	f.Tasks = append(f.Tasks, task)
	return nil
}

// ReplaceTask overwrites the stored task with the same user and id.
func (f *File) ReplaceTask(task Task) error {
	t := f.GetTask(task.UserID, task.ID)
	if t == nil {
		return fmt.Errorf("task %q: %w", task.ID, ErrNotFound)
	}
	*t = task
	return nil
}

// UpdateTask updates an existing task and sets UpdatedAt.
func (f *File) UpdateTask(user, id string, updater func(*Task)) error {
	t := f.GetTask(user, id)
	if t == nil {
		return fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	updater(t)
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// RemoveTask deletes a task.
func (f *File) RemoveTask(user, id string) error {
	for i := range f.Tasks {
		if f.Tasks[i].ID == id && f.Tasks[i].UserID == user {
			f.Tasks = append(f.Tasks[:i], f.Tasks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("task %q: %w", id, ErrNotFound)
}
