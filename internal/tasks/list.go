package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/nibzard/ordo/internal/orderindex"
	"github.com/nibzard/ordo/internal/todo"
)

// Filter selects tasks by completion.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

// ParseFilter accepts all (or empty), active and completed.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterActive, FilterCompleted:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown filter %q", ErrInvalidInput, s)
	}
}

func (f Filter) match(t todo.Task) bool {
	switch f {
	case FilterActive:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	default:
		return true
	}
}

// Page selects a slice of a user's list. Limit <= 0 means no limit.
type Page struct {
	Offset    int
	Limit     int
	Direction orderindex.Direction
	Filter    Filter
}

// Listing is one page of tasks plus list-wide counts.
type Listing struct {
	Tasks []todo.Task `json:"tasks"`
	// Total is the number of tasks matching the filter.
	Total int       `json:"total"`
	Stats UserStats `json:"stats"`
}

// List returns a page of user's tasks in display order.
func (s *Service) List(ctx context.Context, user string, p Page) (Listing, error) {
	if err := checkUser(user); err != nil {
		return Listing{}, err
	}
	if p.Offset < 0 {
		return Listing{}, fmt.Errorf("%w: negative offset %d", ErrInvalidInput, p.Offset)
	}
	all, err := s.repo.List(ctx, user)
	if err != nil {
		return Listing{}, fmt.Errorf("list tasks: %w", err)
	}

	listing := Listing{Stats: statsOf(user, all), Tasks: []todo.Task{}}
	matched := make([]todo.Task, 0, len(all))
	for _, t := range all {
		if p.Filter.match(t) {
			matched = append(matched, t)
		}
	}
	if p.Direction == orderindex.Descending {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	listing.Total = len(matched)

	if p.Offset >= len(matched) {
		return listing, nil
	}
	end := len(matched)
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	listing.Tasks = matched[p.Offset:end]
	return listing, nil
}

// Stats returns the counts of user's list.
func (s *Service) Stats(ctx context.Context, user string) (UserStats, error) {
	all, err := s.repo.List(ctx, user)
	if err != nil {
		return UserStats{}, fmt.Errorf("list tasks: %w", err)
	}
	return statsOf(user, all), nil
}

func statsOf(user string, all []todo.Task) UserStats {
	st := UserStats{User: user, Total: len(all)}
	for _, t := range all {
		if t.Completed {
			st.Completed++
		}
	}
	return st
}
