package domain

import "time"

// PhaseName identifies one external system's step within a run.
type PhaseName string

const (
	PhaseDirectory    PhaseName = "directory"
	PhaseCollab       PhaseName = "collaboration"
	PhaseWorkspace    PhaseName = "workspace"
	PhaseConferencing PhaseName = "conferencing"
	PhaseNotification PhaseName = "notification"
)

// TerminationRecord is the canonical parse of one termination ticket.
// Built once per ticket; re-parsing produces a new record.
type TerminationRecord struct {
	TicketID          string
	TicketNumber      string
	EmployeeIdentity  CanonicalIdentity
	ManagerIdentity   CanonicalIdentity
	EmployeeName      string
	Department        string
	TerminationDate   string
	AccessRemovalDate string
	TermType          string
	Extras            map[string]string
}

// PhaseResult captures the outcome of one phase for one run.
type PhaseResult struct {
	Phase            PhaseName
	Succeeded        bool
	Skipped          bool
	ActionsCompleted []string
	ActionsFailed    []string
	Errors           []string
	Warnings         []string
}

// TerminationOutcome aggregates all phase results for one employee run.
type TerminationOutcome struct {
	RunID            string
	TicketID         string
	EmployeeIdentity CanonicalIdentity
	ManagerIdentity  CanonicalIdentity
	PerPhase         map[PhaseName]*PhaseResult
	PhaseOrder       []PhaseName
	OverallSuccess   bool
	StartedAt        time.Time
	Duration         time.Duration
}

// Summary lists per-phase status lines in declared order, for notifications
// and operator output.
func (o *TerminationOutcome) Summary() []string {
	lines := make([]string, 0, len(o.PhaseOrder))
	for _, name := range o.PhaseOrder {
		result, ok := o.PerPhase[name]
		if !ok {
			continue
		}
		switch {
		case result.Skipped:
			lines = append(lines, string(name)+": skipped")
		case result.Succeeded:
			lines = append(lines, string(name)+": completed")
		default:
			lines = append(lines, string(name)+": failed")
		}
	}
	return lines
}
