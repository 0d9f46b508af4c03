// Package parallel runs keyed jobs on a bounded worker pool.
//
// The admin commands use it to rebalance many users' lists at once: each
// user is one job, so the per-user lock in package orderindex never sees
// two jobs for the same list.
package parallel
