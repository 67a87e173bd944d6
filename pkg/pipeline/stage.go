// Package pipeline holds the types shared by the export components: frame
// requests, captured frames, archive entries, jobs and the error taxonomy.
package pipeline

import (
	"context"
)

// Stage is one step of an export that turns an input into an output.
// The capture step is a Stage so that loops can be tested with a StageFunc.
type Stage[In, Out any] interface {
	Execute(ctx context.Context, input In) (Out, error)
}

// StageFunc is a function adapter for Stage.
type StageFunc[In, Out any] func(ctx context.Context, input In) (Out, error)

// Execute implements Stage.
func (f StageFunc[In, Out]) Execute(ctx context.Context, input In) (Out, error) {
	return f(ctx, input)
}
