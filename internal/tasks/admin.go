package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/nibzard/ordo/internal/parallel"
)

// Users lists every user with task counts.
func (s *Service) Users(ctx context.Context) ([]UserStats, error) {
	users, err := s.repo.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// RebalanceReport is the outcome of rebalancing one user's list.
type RebalanceReport struct {
	User  string
	Tasks int
	Err   error
}

// RebalanceAll rebalances the lists of users (every user when empty) with at
// most workers lists in flight. One report per attempted user is returned,
// sorted by user; the error joins the individual failures.
func (s *Service) RebalanceAll(ctx context.Context, users []string, workers int) ([]RebalanceReport, error) {
	if len(users) == 0 {
		stats, err := s.Users(ctx)
		if err != nil {
			return nil, err
		}
		for _, st := range stats {
			users = append(users, st.User)
		}
	}

	pool := parallel.NewWorkerPool[int](ctx, workers, false)
	for _, u := range users {
		pool.Submit(u, func(ctx context.Context) (int, error) {
			out, err := s.Rebalance(ctx, u)
			return len(out), err
		})
	}
	results, errs := pool.Wait()

	reports := make([]RebalanceReport, len(results))
	for i, r := range results {
		reports[i] = RebalanceReport{User: r.Key, Tasks: r.Value, Err: r.Error}
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].User < reports[j].User })
	return reports, errors.Join(errs...)
}
