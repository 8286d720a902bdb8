package pipeline

import "context"

// Stage is one named unit of the scan pipeline: one input in, one output out
// per invocation. Implementations must be deterministic given identical
// input and context, or cached intermediates become unsound.
type Stage interface {
	Name() string
	Execute(ctx context.Context, input any, pc *Context) (any, error)
}

// StageFunc adapts a plain function into a Stage.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, input any, pc *Context) (any, error)
}

func (s StageFunc) Name() string { return s.StageName }

func (s StageFunc) Execute(ctx context.Context, input any, pc *Context) (any, error) {
	return s.Fn(ctx, input, pc)
}
