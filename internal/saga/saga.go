// Package saga runs multi-step operations against stores that offer no
// cross-table transactions, compensating completed steps in reverse order
// when a later step fails.
package saga

import (
	"context"
	"fmt"
)

// Step pairs an action with the compensating action that undoes it. A nil
// Compensate marks a step that needs no undo (for example the final step).
type Step struct {
	Name       string
	Run        func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Result reports how an execution ended.
type Result struct {
	// FailedStep names the step whose Run returned an error, empty when
	// every step succeeded.
	FailedStep string
	// Err is the error returned by the failed step.
	Err error
	// CompensationErrs collects failures of compensating actions, in the
	// order they were attempted. Never aborts the unwind.
	CompensationErrs []error
}

// Ok reports whether all steps completed.
func (r Result) Ok() bool {
	return r.Err == nil
}

// Error renders the primary failure with any compensation failures appended.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	msg := fmt.Sprintf("step %s: %v", r.FailedStep, r.Err)
	for _, cerr := range r.CompensationErrs {
		msg += fmt.Sprintf("; rollback: %v", cerr)
	}
	return msg
}

// Execute runs steps in order. On the first failure it invokes the
// compensating actions of every previously completed step, most recent
// first, and returns. Compensation errors are collected, never thrown.
func Execute(ctx context.Context, steps []Step) Result {
	completed := make([]Step, 0, len(steps))
	for _, step := range steps {
		if err := step.Run(ctx); err != nil {
			result := Result{FailedStep: step.Name, Err: err}
			for i := len(completed) - 1; i >= 0; i-- {
				comp := completed[i].Compensate
				if comp == nil {
					continue
				}
				if cerr := comp(ctx); cerr != nil {
					result.CompensationErrs = append(result.CompensationErrs,
						fmt.Errorf("compensate %s: %w", completed[i].Name, cerr))
				}
			}
			return result
		}
		completed = append(completed, step)
	}
	return Result{}
}
