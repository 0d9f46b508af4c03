// Package orderindex assigns and rebalances order_index values for task lists.
//
// Every task in a list (a "scope", one per user) carries an integer key. Keys
// are sparse: freshly spaced keys are Gap apart, so most inserts and moves
// touch a single row.
//
//	First   = min - Gap          (or a leading rebalance when min - Gap <= 0)
//	Append  = max + Gap          (Seed for an empty scope)
//	Between = floor((lo+hi)/2)   (or a local rebalance when hi-lo < MinGap)
//
// # Rebalancing
//
// A rebalance rewrites a bounded window of keys to base, base+Gap, base+2*Gap...
// The first untouched key above the window acts as a fence; when the spread
// would reach it the window grows (doubling, up to MaxWindow). Writes go
// through BatchWriter when the store provides it, otherwise key by key in an
// order that never inverts two rows if the batch stops half way.
//
// # Planning moves
//
// Planner.PlanMove turns "put this task at position P of the displayed window"
// into assignments. When a rebalance was needed, every rebalanced task is part
// of the plan. The planner only reads; applying the plan is up to the caller.
//
// # Concurrency
//
// Components are stateless. Service serializes mutating calls per scope with
// a context-aware semaphore; different scopes never block each other.
package orderindex
