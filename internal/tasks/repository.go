package tasks

import (
	"context"

	"github.com/nibzard/ordo/internal/orderindex"
	"github.com/nibzard/ordo/internal/todo"
)

// Repository stores tasks. The order index methods come from
// orderindex.Store with the user id as scope. Missing tasks are reported as
// todo.ErrNotFound.
type Repository interface {
	orderindex.Store

	// Insert stores a new task.
	Insert(ctx context.Context, task todo.Task) error
	// Get returns one task of user.
	Get(ctx context.Context, user, id string) (todo.Task, error)
	// List returns every task of user in ascending display order.
	List(ctx context.Context, user string) ([]todo.Task, error)
	// Replace overwrites a stored task, order index included.
	Replace(ctx context.Context, task todo.Task) error
	// Delete removes a task.
	Delete(ctx context.Context, user, id string) error
	// Users returns per-user task counts, sorted by user.
	Users(ctx context.Context) ([]UserStats, error)
}

// UserStats counts the tasks of one user.
type UserStats struct {
	User      string `json:"user"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
}

// Active is the number of open tasks.
func (s UserStats) Active() int {
	return s.Total - s.Completed
}
