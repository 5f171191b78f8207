package orchestrate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-service/internal/config"
	"github.com/spec-kit/lifecycle-service/internal/domain"
	"github.com/spec-kit/lifecycle-service/internal/observability"
	"github.com/spec-kit/lifecycle-service/internal/ticketsource"
)

type recordingAction struct {
	phase   domain.PhaseName
	results []ActionResult
	mu      sync.Mutex
	calls   int
}

func (a *recordingAction) Name() domain.PhaseName { return a.phase }

func (a *recordingAction) Execute(context.Context, *domain.TerminationRecord) []ActionResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.results
}

func (a *recordingAction) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type recordingSource struct {
	mu      sync.Mutex
	updates []domain.TicketState
}

func (s *recordingSource) ListPage(context.Context, ticketsource.ListFilter, int, int) ([]*domain.RawTicket, error) {
	return nil, nil
}

func (s *recordingSource) GetOne(context.Context, string) (*domain.RawTicket, error) {
	return nil, nil
}

func (s *recordingSource) UpdateStatus(_ context.Context, _ string, state domain.TicketState, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, state)
	return true, nil
}

func (s *recordingSource) AddComment(context.Context, string, string, bool) (bool, error) {
	return true, nil
}

type failingNotifier struct{ called bool }

func (n *failingNotifier) NotifyOutcome(context.Context, *domain.TerminationRecord, *domain.TerminationOutcome) error {
	n.called = true
	return errors.New("webhook down")
}

func testPlan() config.PhasePlan {
	return config.PhasePlan{Phases: []config.PhaseSpec{
		{Name: domain.PhaseDirectory, Critical: config.CriticalAlways},
		{Name: domain.PhaseCollab, Critical: config.CriticalWithManager, RequiresManager: true},
		{Name: domain.PhaseConferencing, Critical: config.CriticalNever},
	}}
}

func resolvedRecord() *domain.TerminationRecord {
	return &domain.TerminationRecord{
		TicketID:         "42",
		EmployeeIdentity: domain.ResolvedIdentity("jane.doe@example.com"),
		ManagerIdentity:  domain.ResolvedIdentity("boss@example.com"),
	}
}

func newTestOrchestrator(deps Deps) *Orchestrator {
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return NewOrchestrator(deps)
}

func TestRunPhaseFailureDoesNotStopLaterPhases(t *testing.T) {
	dirAction := &recordingAction{
		phase:   domain.PhaseDirectory,
		results: []ActionResult{{Action: "deactivate_user", Err: errors.New("api down")}},
	}
	collab := &recordingAction{phase: domain.PhaseCollab, results: []ActionResult{{Action: "archive"}}}
	conf := &recordingAction{phase: domain.PhaseConferencing, results: []ActionResult{{Action: "remove_license"}}}

	o := newTestOrchestrator(Deps{
		Plan: testPlan(),
		Actions: map[domain.PhaseName]PhaseAction{
			domain.PhaseDirectory:    dirAction,
			domain.PhaseCollab:       collab,
			domain.PhaseConferencing: conf,
		},
	})

	outcome := o.Run(context.Background(), resolvedRecord())
	if conf.callCount() != 1 || collab.callCount() != 1 {
		t.Fatalf("later phases must still run after an earlier failure")
	}
	if outcome.PerPhase[domain.PhaseDirectory].Succeeded {
		t.Fatalf("directory phase must be recorded failed")
	}
	if !outcome.PerPhase[domain.PhaseConferencing].Succeeded {
		t.Fatalf("conferencing phase must be recorded succeeded")
	}
	if outcome.OverallSuccess {
		t.Fatalf("a critical phase failure must flip overall success")
	}
}

func TestRunNonCriticalFailureKeepsSuccess(t *testing.T) {
	dirAction := &recordingAction{phase: domain.PhaseDirectory, results: []ActionResult{{Action: "deactivate_user"}}}
	collab := &recordingAction{phase: domain.PhaseCollab, results: []ActionResult{{Action: "archive"}}}
	conf := &recordingAction{
		phase:   domain.PhaseConferencing,
		results: []ActionResult{{Action: "remove_license", Err: errors.New("flaky")}},
	}

	o := newTestOrchestrator(Deps{
		Plan: testPlan(),
		Actions: map[domain.PhaseName]PhaseAction{
			domain.PhaseDirectory:    dirAction,
			domain.PhaseCollab:       collab,
			domain.PhaseConferencing: conf,
		},
	})

	outcome := o.Run(context.Background(), resolvedRecord())
	if !outcome.OverallSuccess {
		t.Fatalf("a never-critical phase failure must not flip overall success")
	}
}

func TestRunUnresolvedEmployeeCallsNoActions(t *testing.T) {
	dirAction := &recordingAction{phase: domain.PhaseDirectory, results: []ActionResult{{Action: "deactivate_user"}}}
	conf := &recordingAction{phase: domain.PhaseConferencing, results: []ActionResult{{Action: "remove_license"}}}

	o := newTestOrchestrator(Deps{
		Plan: testPlan(),
		Actions: map[domain.PhaseName]PhaseAction{
			domain.PhaseDirectory:    dirAction,
			domain.PhaseConferencing: conf,
		},
	})

	record := &domain.TerminationRecord{
		TicketID:         "42",
		EmployeeIdentity: domain.UnresolvedIdentity(),
		ManagerIdentity:  domain.UnresolvedIdentity(),
	}
	outcome := o.Run(context.Background(), record)

	if dirAction.callCount() != 0 || conf.callCount() != 0 {
		t.Fatalf("no action may execute for an unresolved employee")
	}
	if outcome.OverallSuccess {
		t.Fatalf("unresolved employee must fail the run")
	}
	if result := outcome.PerPhase[domain.PhaseDirectory]; result.Skipped || result.Succeeded {
		t.Fatalf("mutating phase must be a hard failure, got %+v", result)
	}
}

func TestRunUnresolvedEmployeeHardFailsManagerDependentPhase(t *testing.T) {
	collab := &recordingAction{phase: domain.PhaseCollab, results: []ActionResult{{Action: "archive"}}}

	o := newTestOrchestrator(Deps{
		Plan: config.PhasePlan{Phases: []config.PhaseSpec{
			{Name: domain.PhaseCollab, Critical: config.CriticalAlways, RequiresManager: true},
		}},
		Actions: map[domain.PhaseName]PhaseAction{domain.PhaseCollab: collab},
	})

	record := &domain.TerminationRecord{
		TicketID:         "42",
		EmployeeIdentity: domain.UnresolvedIdentity(),
		ManagerIdentity:  domain.UnresolvedIdentity(),
	}
	outcome := o.Run(context.Background(), record)

	if collab.callCount() != 0 {
		t.Fatalf("no action may execute for an unresolved employee")
	}
	result := outcome.PerPhase[domain.PhaseCollab]
	if result.Skipped {
		t.Fatalf("unresolved employee must hard-fail the phase, not skip it: %+v", result)
	}
	if result.Succeeded || len(result.Errors) == 0 {
		t.Fatalf("expected identity-unresolved error, got %+v", result)
	}
	if outcome.OverallSuccess {
		t.Fatalf("unresolved employee must fail the run")
	}
}

func TestRunCancellationHonoredBetweenPhases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cancelling := ActionFunc{
		Phase: domain.PhaseDirectory,
		Fn: func(context.Context, *domain.TerminationRecord) []ActionResult {
			cancel()
			return []ActionResult{{Action: "deactivate_user"}}
		},
	}
	collab := &recordingAction{phase: domain.PhaseCollab, results: []ActionResult{{Action: "archive"}}}
	conf := &recordingAction{phase: domain.PhaseConferencing, results: []ActionResult{{Action: "remove_license"}}}

	o := newTestOrchestrator(Deps{
		Plan: testPlan(),
		Actions: map[domain.PhaseName]PhaseAction{
			domain.PhaseDirectory:    cancelling,
			domain.PhaseCollab:       collab,
			domain.PhaseConferencing: conf,
		},
	})

	outcome := o.Run(ctx, resolvedRecord())

	if !outcome.PerPhase[domain.PhaseDirectory].Succeeded {
		t.Fatalf("the in-flight phase must complete before cancellation takes effect")
	}
	if collab.callCount() != 0 || conf.callCount() != 0 {
		t.Fatalf("phases after the cancellation point must not execute")
	}
	for _, name := range []domain.PhaseName{domain.PhaseCollab, domain.PhaseConferencing} {
		result := outcome.PerPhase[name]
		if !result.Skipped {
			t.Fatalf("phase %s must be recorded skipped after cancellation: %+v", name, result)
		}
		if len(result.Warnings) == 0 || result.Warnings[0] != "run cancelled" {
			t.Fatalf("phase %s must carry the cancellation warning: %+v", name, result)
		}
	}
	if outcome.OverallSuccess {
		t.Fatalf("a cancelled run must not report success")
	}
}

func TestRunManagerGateSkipsDataTransferPhase(t *testing.T) {
	dirAction := &recordingAction{phase: domain.PhaseDirectory, results: []ActionResult{{Action: "deactivate_user"}}}
	collab := &recordingAction{phase: domain.PhaseCollab, results: []ActionResult{{Action: "archive"}}}

	o := newTestOrchestrator(Deps{
		Plan: testPlan(),
		Actions: map[domain.PhaseName]PhaseAction{
			domain.PhaseDirectory: dirAction,
			domain.PhaseCollab:    collab,
		},
	})

	record := &domain.TerminationRecord{
		TicketID:         "42",
		EmployeeIdentity: domain.ResolvedIdentity("jane.doe@example.com"),
		ManagerIdentity:  domain.UnresolvedIdentity(),
	}
	outcome := o.Run(context.Background(), record)

	if collab.callCount() != 0 {
		t.Fatalf("manager-gated phase must not execute without a manager")
	}
	result := outcome.PerPhase[domain.PhaseCollab]
	if !result.Skipped || len(result.Warnings) == 0 {
		t.Fatalf("expected skip with warning, got %+v", result)
	}
	if !outcome.OverallSuccess {
		t.Fatalf("manager-gated skip must not fail the run when the phase is not critical")
	}
}

func TestRunNotificationAlwaysLastAndNeverCritical(t *testing.T) {
	dirAction := &recordingAction{phase: domain.PhaseDirectory, results: []ActionResult{{Action: "deactivate_user"}}}
	notifier := &failingNotifier{}

	o := newTestOrchestrator(Deps{
		Plan:     config.PhasePlan{Phases: []config.PhaseSpec{{Name: domain.PhaseDirectory, Critical: config.CriticalAlways}}},
		Actions:  map[domain.PhaseName]PhaseAction{domain.PhaseDirectory: dirAction},
		Notifier: notifier,
	})

	outcome := o.Run(context.Background(), resolvedRecord())
	if !notifier.called {
		t.Fatalf("notifier must be invoked")
	}
	last := outcome.PhaseOrder[len(outcome.PhaseOrder)-1]
	if last != domain.PhaseNotification {
		t.Fatalf("notification must be the final phase, got %s", last)
	}
	if outcome.PerPhase[domain.PhaseNotification].Succeeded {
		t.Fatalf("failed notification must be recorded")
	}
	if !outcome.OverallSuccess {
		t.Fatalf("a notification failure must never flip overall success")
	}
}

func TestRunDryRunExecutesNothing(t *testing.T) {
	dirAction := &recordingAction{phase: domain.PhaseDirectory, results: []ActionResult{{Action: "deactivate_user"}}}
	source := &recordingSource{}

	o := newTestOrchestrator(Deps{
		Plan:    testPlan(),
		Actions: map[domain.PhaseName]PhaseAction{domain.PhaseDirectory: dirAction},
		Source:  source,
		DryRun:  true,
	})

	outcome := o.Run(context.Background(), resolvedRecord())
	if dirAction.callCount() != 0 {
		t.Fatalf("dry run must not execute actions")
	}
	if len(source.updates) != 0 {
		t.Fatalf("dry run must not touch the ticket")
	}
	if !outcome.OverallSuccess {
		t.Fatalf("dry run should report success")
	}
}

func TestRunUpdatesTicketOncePerRun(t *testing.T) {
	dirAction := &recordingAction{phase: domain.PhaseDirectory, results: []ActionResult{{Action: "deactivate_user"}}}
	source := &recordingSource{}

	o := newTestOrchestrator(Deps{
		Plan:    config.PhasePlan{Phases: []config.PhaseSpec{{Name: domain.PhaseDirectory, Critical: config.CriticalAlways}}},
		Actions: map[domain.PhaseName]PhaseAction{domain.PhaseDirectory: dirAction},
		Source:  source,
	})

	o.Run(context.Background(), resolvedRecord())
	if len(source.updates) != 1 {
		t.Fatalf("expected exactly one ticket update, got %d", len(source.updates))
	}
	if source.updates[0] != domain.TicketStateResolved {
		t.Fatalf("successful run must resolve the ticket, got %s", source.updates[0])
	}
}

func TestRunPanicInPhaseIsContained(t *testing.T) {
	panicAction := ActionFunc{
		Phase: domain.PhaseDirectory,
		Fn: func(context.Context, *domain.TerminationRecord) []ActionResult {
			panic("bad data")
		},
	}
	conf := &recordingAction{phase: domain.PhaseConferencing, results: []ActionResult{{Action: "remove_license"}}}

	o := newTestOrchestrator(Deps{
		Plan: testPlan(),
		Actions: map[domain.PhaseName]PhaseAction{
			domain.PhaseDirectory:    panicAction,
			domain.PhaseConferencing: conf,
		},
	})

	outcome := o.Run(context.Background(), resolvedRecord())
	if conf.callCount() != 1 {
		t.Fatalf("a phase panic must not stop later phases")
	}
	result := outcome.PerPhase[domain.PhaseDirectory]
	if result.Succeeded || len(result.Errors) == 0 {
		t.Fatalf("panicking phase must be recorded failed with an error, got %+v", result)
	}
	if outcome.OverallSuccess {
		t.Fatalf("critical phase panic must fail the run")
	}
}
