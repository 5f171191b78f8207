package orchestrate

import (
	"context"

	"github.com/spec-kit/lifecycle-service/internal/domain"
)

// ActionResult is the uniform outcome of one action within a phase.
type ActionResult struct {
	Action  string
	Err     error
	Warning string
}

// Succeeded reports whether the action completed.
func (r ActionResult) Succeeded() bool {
	return r.Err == nil
}

// PhaseAction executes all of one external system's termination actions for
// one employee. Implementations never receive an unresolved employee
// identity; the orchestrator fails the phase before calling them.
// Implementations report per-action outcomes rather than a single error, so
// one failed action does not hide the others.
type PhaseAction interface {
	Name() domain.PhaseName
	Execute(ctx context.Context, record *domain.TerminationRecord) []ActionResult
}

// ActionFunc adapts a function to PhaseAction.
type ActionFunc struct {
	Phase domain.PhaseName
	Fn    func(ctx context.Context, record *domain.TerminationRecord) []ActionResult
}

// Name returns the phase name.
func (a ActionFunc) Name() domain.PhaseName { return a.Phase }

// Execute invokes the wrapped function.
func (a ActionFunc) Execute(ctx context.Context, record *domain.TerminationRecord) []ActionResult {
	return a.Fn(ctx, record)
}
