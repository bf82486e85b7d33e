package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// Step is one stage of a Pipeline.
type Step[T any] interface {
	// Do processes item. A non-nil error ends the pipeline for item unless
	// the pipeline continues on error.
	Do(ctx context.Context, item T) error

	// Name identifies the step in logs and errors.
	Name() string
}

// StepFunc adapts a function to Step.
type StepFunc[T any] struct {
	name string
	fn   func(ctx context.Context, item T) error
}

// NewStep returns a Step named name running fn.
func NewStep[T any](name string, fn func(ctx context.Context, item T) error) StepFunc[T] {
	return StepFunc[T]{name: name, fn: fn}
}

// Do implements Step.
func (s StepFunc[T]) Do(ctx context.Context, item T) error { return s.fn(ctx, item) }

// Name implements Step.
func (s StepFunc[T]) Name() string { return s.name }

// StepError reports which step ended the pipeline.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type settings struct {
	logger          *slog.Logger
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*settings)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithContinueOnError keeps running later steps after a step fails.
// Execute then returns the first error.
func WithContinueOnError(continueOnError bool) Option {
	return func(s *settings) {
		s.continueOnError = continueOnError
	}
}

// Pipeline runs items through its steps in order.
type Pipeline[T any] struct {
	steps []Step[T]
	settings
}

// New returns an empty Pipeline.
func New[T any](opts ...Option) *Pipeline[T] {
	p := &Pipeline[T]{}
	for _, opt := range opts {
		opt(&p.settings)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step.
func (p *Pipeline[T]) AddStep(step Step[T]) {
	p.steps = append(p.steps, step)
}

// AddSteps appends steps in order.
func (p *Pipeline[T]) AddSteps(steps ...Step[T]) {
	p.steps = append(p.steps, steps...)
}

// Execute runs item through every step. Cancellation is checked before each
// step. The returned error is a *StepError unless ctx was cancelled.
func (p *Pipeline[T]) Execute(ctx context.Context, item T) error {
	var first error
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Debug("pipeline cancelled", "step", step.Name(), "reason", err)
			return err
		}

		if err := step.Do(ctx, item); err != nil {
			serr := &StepError{Step: step.Name(), Err: err}
			p.logger.Debug("step stopped item", "step", step.Name(), "error", err)
			if !p.continueOnError {
				return serr
			}
			if first == nil {
				first = serr
			}
		}
	}
	return first
}

// StepCount returns the number of steps.
func (p *Pipeline[T]) StepCount() int {
	return len(p.steps)
}

// StepNames returns the step names in execution order.
func (p *Pipeline[T]) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
