package contracts

import "context"

// Stage is one step of the validate→transform→load pipeline.
// Stages share a single signature and are composed in order; no
// inheritance, selection happens via tagged configuration.
type Stage interface {
	Name() string
	Run(ctx context.Context, batch *Batch) (*Batch, error)
}

// StageFunc adapts a function to the Stage interface
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, batch *Batch) (*Batch, error)
}

// Name returns the stage name
func (s StageFunc) Name() string {
	return s.StageName
}

// Run executes the stage
func (s StageFunc) Run(ctx context.Context, batch *Batch) (*Batch, error) {
	return s.Fn(ctx, batch)
}
