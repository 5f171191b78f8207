package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/lifecycle-service/internal/domain"
)

// Criticality controls whether a phase failure flips a run's overall success.
type Criticality string

const (
	// CriticalAlways makes the phase critical unconditionally.
	CriticalAlways Criticality = "always"
	// CriticalWithManager makes the phase critical only when a manager
	// identity was resolved, since its critical actions are data-transfer
	// operations that need a target.
	CriticalWithManager Criticality = "with-manager"
	// CriticalNever records the phase outcome without affecting success.
	CriticalNever Criticality = "never"
)

// PhaseSpec declares one phase of the termination plan.
type PhaseSpec struct {
	Name            domain.PhaseName `yaml:"name"`
	Critical        Criticality      `yaml:"critical"`
	RequiresManager bool             `yaml:"requires_manager"`
	Groups          []string         `yaml:"groups"`
}

// PhasePlan is the declared, ordered set of termination phases. The
// notification step is not part of the plan; it always runs last.
type PhasePlan struct {
	Phases []PhaseSpec `yaml:"phases"`
}

// DefaultPhasePlan returns the built-in plan: directory lockdown first and
// always critical, then the data-transfer phases (critical only when a
// manager is available), then conferencing.
func DefaultPhasePlan() PhasePlan {
	return PhasePlan{
		Phases: []PhaseSpec{
			{Name: domain.PhaseDirectory, Critical: CriticalAlways},
			{Name: domain.PhaseCollab, Critical: CriticalWithManager, RequiresManager: true},
			{Name: domain.PhaseWorkspace, Critical: CriticalWithManager, RequiresManager: true},
			{Name: domain.PhaseConferencing, Critical: CriticalNever},
		},
	}
}

// LoadPhasePlan reads a plan from a YAML file, falling back to the default
// plan when path is empty.
func LoadPhasePlan(path string) (PhasePlan, error) {
	if path == "" {
		return DefaultPhasePlan(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return PhasePlan{}, fmt.Errorf("read phase plan: %w", err)
	}
	var plan PhasePlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return PhasePlan{}, fmt.Errorf("parse phase plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return PhasePlan{}, err
	}
	return plan, nil
}

// Validate checks the plan for duplicate phases and unknown criticality.
func (p PhasePlan) Validate() error {
	if len(p.Phases) == 0 {
		return fmt.Errorf("phase plan declares no phases")
	}
	seen := map[domain.PhaseName]bool{}
	for _, phase := range p.Phases {
		if phase.Name == "" {
			return fmt.Errorf("phase plan entry missing name")
		}
		if seen[phase.Name] {
			return fmt.Errorf("phase %q declared twice", phase.Name)
		}
		seen[phase.Name] = true
		switch phase.Critical {
		case CriticalAlways, CriticalWithManager, CriticalNever, "":
		default:
			return fmt.Errorf("phase %q has unknown criticality %q", phase.Name, phase.Critical)
		}
	}
	return nil
}

// Order returns the declared phase order.
func (p PhasePlan) Order() []domain.PhaseName {
	order := make([]domain.PhaseName, 0, len(p.Phases))
	for _, phase := range p.Phases {
		order = append(order, phase.Name)
	}
	return order
}

// Spec returns the declaration for the named phase.
func (p PhasePlan) Spec(name domain.PhaseName) (PhaseSpec, bool) {
	for _, phase := range p.Phases {
		if phase.Name == name {
			return phase, true
		}
	}
	return PhaseSpec{}, false
}

// CriticalSet resolves the critical phase set for a run, given whether a
// manager identity was resolved.
func (p PhasePlan) CriticalSet(managerResolved bool) map[domain.PhaseName]bool {
	critical := map[domain.PhaseName]bool{}
	for _, phase := range p.Phases {
		switch phase.Critical {
		case CriticalAlways:
			critical[phase.Name] = true
		case CriticalWithManager:
			if managerResolved {
				critical[phase.Name] = true
			}
		}
	}
	return critical
}

// Subset returns a plan restricted to the named phases, preserving declared
// order. Unknown names are ignored.
func (p PhasePlan) Subset(names []domain.PhaseName) PhasePlan {
	want := map[domain.PhaseName]bool{}
	for _, name := range names {
		want[name] = true
	}
	subset := PhasePlan{}
	for _, phase := range p.Phases {
		if want[phase.Name] {
			subset.Phases = append(subset.Phases, phase)
		}
	}
	return subset
}
