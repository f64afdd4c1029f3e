package lte

import (
	"context"
	"fmt"
	"log/slog"
)

// Step is one AT operation of a sequence.
type Step func(ctx context.Context) error

// Sequence is an ordered list of steps that depend on each other. A nil
// step is skipped but keeps its number, so optional steps do not shift
// the numbers reported for the steps after them.
type Sequence struct {
	Name  string
	Steps []Step
}

// StepError reports the first failing step of a sequence. Step is 1-based.
type StepError struct {
	Sequence string
	Step     int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: AT sequence failed at step %d: %v", e.Sequence, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Run executes the steps in order and stops at the first failure.
func (s Sequence) Run(ctx context.Context) error {
	for i, step := range s.Steps {
		if step == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return &StepError{Sequence: s.Name, Step: i + 1, Err: err}
		}
		if err := step(ctx); err != nil {
			return &StepError{Sequence: s.Name, Step: i + 1, Err: err}
		}
	}
	return nil
}

// Lenient returns step unchanged unless ignore is set, in which case a
// failure is logged and reported as success.
func Lenient(step Step, ignore bool, logger *slog.Logger, reason string) Step {
	if !ignore {
		return step
	}
	return func(ctx context.Context) error {
		if err := step(ctx); err != nil {
			logger.Warn("AT command error ignored", "reason", reason, "error", err)
		}
		return nil
	}
}
