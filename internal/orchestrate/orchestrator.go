package orchestrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-service/internal/config"
	"github.com/spec-kit/lifecycle-service/internal/directory"
	"github.com/spec-kit/lifecycle-service/internal/domain"
	"github.com/spec-kit/lifecycle-service/internal/events"
	"github.com/spec-kit/lifecycle-service/internal/observability"
	"github.com/spec-kit/lifecycle-service/internal/resolve"
	"github.com/spec-kit/lifecycle-service/internal/ticketsource"
)

// Notifier delivers the outcome of a completed run. Failures are recorded
// in the notification phase result but never affect the run's success.
type Notifier interface {
	NotifyOutcome(ctx context.Context, record *domain.TerminationRecord, outcome *domain.TerminationOutcome) error
}

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Plan      config.PhasePlan
	Actions   map[domain.PhaseName]PhaseAction
	Resolver  *resolve.Resolver
	Directory directory.Lookup
	Source    ticketsource.Source
	Notifier  Notifier
	Events    *events.Dispatcher
	Metrics   *observability.Metrics
	Logger    *zap.Logger

	// PhaseTimeout bounds each phase's execution; zero means no bound.
	PhaseTimeout time.Duration
	// DryRun records what each phase would do without executing actions.
	DryRun bool
}

// Orchestrator runs the termination phases for one employee at a time.
// Phases execute strictly sequentially in plan order. A phase failure never
// stops later phases; it is recorded, and overall success is judged against
// the plan's critical set at the end.
type Orchestrator struct {
	deps Deps
}

// NewOrchestrator builds an orchestrator.
func NewOrchestrator(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// Run executes the full phase plan for one termination record and returns
// the aggregated outcome. The record's pending identities are completed
// against the directory before any phase runs.
func (o *Orchestrator) Run(ctx context.Context, record *domain.TerminationRecord) *domain.TerminationOutcome {
	started := time.Now()
	outcome := &domain.TerminationOutcome{
		RunID:      uuid.NewString(),
		TicketID:   record.TicketID,
		PerPhase:   map[domain.PhaseName]*domain.PhaseResult{},
		PhaseOrder: o.deps.Plan.Order(),
		StartedAt:  started,
	}

	o.completeIdentities(ctx, record)
	outcome.EmployeeIdentity = record.EmployeeIdentity
	outcome.ManagerIdentity = record.ManagerIdentity

	managerResolved := record.ManagerIdentity.Resolved()
	critical := o.deps.Plan.CriticalSet(managerResolved)

	o.deps.Metrics.Inc(observability.MetricRunsStarted)
	o.publish(events.Event{Type: events.RunStarted, RunID: outcome.RunID, TicketID: record.TicketID})
	o.deps.Logger.Info("termination run started",
		zap.String("run_id", outcome.RunID),
		zap.String("ticket_id", record.TicketID),
		zap.String("employee", record.EmployeeIdentity.Email()),
		zap.Bool("manager_resolved", managerResolved),
		zap.Bool("dry_run", o.deps.DryRun))

	cancelled := false
	for _, spec := range o.deps.Plan.Phases {
		if cancelled || ctx.Err() != nil {
			cancelled = true
			outcome.PerPhase[spec.Name] = &domain.PhaseResult{
				Phase:    spec.Name,
				Skipped:  true,
				Warnings: []string{"run cancelled"},
			}
			o.deps.Metrics.Inc(observability.MetricPhasesSkipped)
			continue
		}
		result := o.runPhase(ctx, spec, record)
		outcome.PerPhase[spec.Name] = result
		o.publish(events.Event{
			Type:     events.PhaseCompleted,
			RunID:    outcome.RunID,
			TicketID: record.TicketID,
			Phase:    spec.Name,
			Success:  result.Succeeded || result.Skipped,
		})
	}

	outcome.OverallSuccess = !cancelled
	for name, isCritical := range critical {
		if !isCritical {
			continue
		}
		result, ok := outcome.PerPhase[name]
		if !ok || (!result.Succeeded && !result.Skipped) {
			outcome.OverallSuccess = false
		}
		if ok && result.Skipped && !cancelled {
			// A critical phase that was skipped (manager gate) cannot count
			// as done when the plan marked it critical for this run.
			outcome.OverallSuccess = false
		}
	}

	o.notify(ctx, record, outcome)
	outcome.Duration = time.Since(started)

	if outcome.OverallSuccess {
		o.deps.Metrics.Inc(observability.MetricRunsSucceeded)
	} else {
		o.deps.Metrics.Inc(observability.MetricRunsFailed)
	}
	o.publish(events.Event{
		Type:     events.RunCompleted,
		RunID:    outcome.RunID,
		TicketID: record.TicketID,
		Success:  outcome.OverallSuccess,
	})
	o.deps.Logger.Info("termination run finished",
		zap.String("run_id", outcome.RunID),
		zap.Bool("success", outcome.OverallSuccess),
		zap.Duration("duration", outcome.Duration))

	o.updateTicket(ctx, record, outcome)
	return outcome
}

// completeIdentities resolves pending employee-number identities against the
// directory. Errors degrade to unresolved; the phases then fail with a clear
// cause instead of the run aborting here.
func (o *Orchestrator) completeIdentities(ctx context.Context, record *domain.TerminationRecord) {
	if o.deps.Resolver == nil || o.deps.Directory == nil {
		return
	}
	employee, err := o.deps.Resolver.ResolvePending(ctx, record.EmployeeIdentity, o.deps.Directory)
	if err != nil {
		o.deps.Logger.Warn("employee lookup failed", zap.Error(err))
		employee = domain.UnresolvedIdentity()
	}
	record.EmployeeIdentity = employee

	manager, err := o.deps.Resolver.ResolvePending(ctx, record.ManagerIdentity, o.deps.Directory)
	if err != nil {
		o.deps.Logger.Warn("manager lookup failed", zap.Error(err))
		manager = domain.UnresolvedIdentity()
	}
	record.ManagerIdentity = manager
}

func (o *Orchestrator) runPhase(ctx context.Context, spec config.PhaseSpec, record *domain.TerminationRecord) *domain.PhaseResult {
	result := &domain.PhaseResult{Phase: spec.Name}

	// An unresolved employee is a hard failure for every mutating phase,
	// checked before any other gate so it is never softened into a skip.
	if !record.EmployeeIdentity.Resolved() {
		result.Errors = append(result.Errors, "employee identity unresolved")
		o.deps.Metrics.Inc(observability.MetricPhasesFailed)
		return result
	}

	if spec.RequiresManager && !record.ManagerIdentity.Resolved() {
		result.Skipped = true
		result.Warnings = append(result.Warnings, "no resolved manager, data-transfer phase skipped")
		o.deps.Metrics.Inc(observability.MetricPhasesSkipped)
		o.deps.Logger.Warn("phase skipped: manager unresolved",
			zap.String("phase", string(spec.Name)),
			zap.String("ticket_id", record.TicketID))
		return result
	}

	action, ok := o.deps.Actions[spec.Name]
	if !ok {
		result.Skipped = true
		result.Warnings = append(result.Warnings, "no action registered for phase")
		o.deps.Metrics.Inc(observability.MetricPhasesSkipped)
		return result
	}

	if o.deps.DryRun {
		result.Succeeded = true
		result.Warnings = append(result.Warnings, "dry run, actions not executed")
		o.deps.Metrics.Inc(observability.MetricPhasesSkipped)
		return result
	}

	phaseCtx := ctx
	if o.deps.PhaseTimeout > 0 {
		var cancel context.CancelFunc
		phaseCtx, cancel = context.WithTimeout(ctx, o.deps.PhaseTimeout)
		defer cancel()
	}

	actions := o.executeGuarded(phaseCtx, action, record, result)
	for _, ar := range actions {
		if ar.Warning != "" {
			result.Warnings = append(result.Warnings, ar.Warning)
		}
		if ar.Succeeded() {
			result.ActionsCompleted = append(result.ActionsCompleted, ar.Action)
		} else {
			result.ActionsFailed = append(result.ActionsFailed, ar.Action)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ar.Action, ar.Err))
		}
	}

	result.Succeeded = len(result.ActionsFailed) == 0 && len(result.Errors) == 0
	if result.Succeeded {
		o.deps.Metrics.Inc(observability.MetricPhasesSucceeded)
	} else {
		o.deps.Metrics.Inc(observability.MetricPhasesFailed)
	}
	return result
}

// executeGuarded runs a phase action, converting a panic into a recorded
// phase error so one employee's bad data cannot take down the batch.
func (o *Orchestrator) executeGuarded(ctx context.Context, action PhaseAction, record *domain.TerminationRecord, result *domain.PhaseResult) (actions []ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			o.deps.Logger.Error("phase panicked",
				zap.String("phase", string(action.Name())),
				zap.String("ticket_id", record.TicketID),
				zap.Any("panic", r))
			result.Errors = append(result.Errors, fmt.Sprintf("phase panicked: %v", r))
			actions = nil
		}
	}()
	return action.Execute(ctx, record)
}

// notify delivers the outcome as the final, never-critical phase.
func (o *Orchestrator) notify(ctx context.Context, record *domain.TerminationRecord, outcome *domain.TerminationOutcome) {
	result := &domain.PhaseResult{Phase: domain.PhaseNotification, Succeeded: true}
	outcome.PerPhase[domain.PhaseNotification] = result
	outcome.PhaseOrder = append(outcome.PhaseOrder, domain.PhaseNotification)

	if o.deps.Notifier == nil || o.deps.DryRun {
		result.Skipped = true
		return
	}
	if err := o.deps.Notifier.NotifyOutcome(ctx, record, outcome); err != nil {
		result.Succeeded = false
		result.Errors = append(result.Errors, err.Error())
		o.deps.Logger.Warn("outcome notification failed",
			zap.String("run_id", outcome.RunID),
			zap.Error(err))
	}
}

// updateTicket records the run outcome back on the source ticket, once per
// run. Update failures are logged only; the run outcome stands.
func (o *Orchestrator) updateTicket(ctx context.Context, record *domain.TerminationRecord, outcome *domain.TerminationOutcome) {
	if o.deps.Source == nil || record.TicketID == "" || o.deps.DryRun {
		return
	}
	state := domain.TicketStateInProgress
	if outcome.OverallSuccess {
		state = domain.TicketStateResolved
	}
	note := fmt.Sprintf("Termination run %s\n%s", outcome.RunID, strings.Join(outcome.Summary(), "\n"))
	if _, err := o.deps.Source.UpdateStatus(ctx, record.TicketID, state, note); err != nil {
		o.deps.Logger.Warn("ticket status update failed",
			zap.String("ticket_id", record.TicketID),
			zap.Error(err))
	}
}

func (o *Orchestrator) publish(event events.Event) {
	if o.deps.Events != nil {
		o.deps.Events.Publish(event)
	}
}
