// Package experiment runs many independent simulations in parallel and
// aggregates their results.
//
// A Driver describes one experiment: it loads input rows, turns a row into
// independent tasks (one per trial), folds task results into an Aggregator
// and writes the aggregate of each row. RunExperiment drives it with a
// bounded worker pool. Each task owns its simulator, process set and
// protocols; the Aggregator is the only shared mutable state.
package experiment

import (
	"context"
	"errors"
)

// ErrNoRows is returned by Driver.Load when there are no more rows.
var ErrNoRows = errors.New("experiment: no more rows")

// Task is one independent simulation run.
type Task[R any] interface {
	Run(ctx context.Context) (R, error)
}

// TaskFunc adapts a function to Task.
type TaskFunc[R any] func(ctx context.Context) (R, error)

// Run calls f.
func (f TaskFunc[R]) Run(ctx context.Context) (R, error) { return f(ctx) }

// Driver is the contract between an experiment and the worker pool.
//
// Load and CreateTask are called from the dispatching goroutine only.
// Aggregate is called concurrently from workers and must only touch the
// Aggregator it is given.
type Driver[D, R any] interface {
	// Load returns the data of row, or ErrNoRows past the last row.
	Load(row int) (D, error)
	// CreateTask builds trial id of a row.
	CreateTask(id int, data D) Task[R]
	// Aggregate folds one result into agg.
	Aggregate(agg *Aggregator, result R)
	// Output publishes the final aggregate of row.
	Output(row int, agg *Aggregator) error
}
