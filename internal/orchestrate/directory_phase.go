package orchestrate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-service/internal/directory"
	"github.com/spec-kit/lifecycle-service/internal/domain"
	"github.com/spec-kit/lifecycle-service/pkg/util"
)

// DirectoryPhase locks down the employee's directory account: group
// removals first, then session revocation, then deactivation. Actions run
// in that order but independently; a failed group removal does not stop the
// deactivation.
type DirectoryPhase struct {
	admin  directory.Admin
	groups []string
	logger *zap.Logger
}

// NewDirectoryPhase builds the directory phase. groups lists the directory
// groups to strip the employee from before deactivation.
func NewDirectoryPhase(admin directory.Admin, groups []string, logger *zap.Logger) *DirectoryPhase {
	return &DirectoryPhase{admin: admin, groups: groups, logger: logger}
}

// Name returns the phase name.
func (p *DirectoryPhase) Name() domain.PhaseName { return domain.PhaseDirectory }

// Execute performs the lockdown for one employee.
func (p *DirectoryPhase) Execute(ctx context.Context, record *domain.TerminationRecord) []ActionResult {
	email := record.EmployeeIdentity.Email()

	user, err := p.admin.GetUserByEmail(ctx, email)
	if err != nil {
		if util.IsNotFound(err) {
			// No account means nothing to lock down. Report success with a
			// warning so the run record shows what happened.
			return []ActionResult{{
				Action:  "lookup_user",
				Warning: fmt.Sprintf("no directory account for %s", email),
			}}
		}
		return []ActionResult{{Action: "lookup_user", Err: err}}
	}

	results := []ActionResult{{Action: "lookup_user"}}

	for _, group := range p.groups {
		results = append(results, p.removeFromGroup(ctx, group, user))
	}

	clear := ActionResult{Action: "clear_sessions"}
	if err := p.admin.ClearSessions(ctx, user.ID); err != nil && !util.IsNotFound(err) {
		clear.Err = err
	}
	results = append(results, clear)

	deactivate := ActionResult{Action: "deactivate_user"}
	if strings.EqualFold(user.Status, "DEPROVISIONED") || strings.EqualFold(user.Status, "SUSPENDED") {
		deactivate.Warning = fmt.Sprintf("account already %s", strings.ToLower(user.Status))
	} else if err := p.admin.DeactivateUser(ctx, user.ID); err != nil {
		deactivate.Err = err
	}
	results = append(results, deactivate)

	return results
}

func (p *DirectoryPhase) removeFromGroup(ctx context.Context, group string, user *directory.User) ActionResult {
	result := ActionResult{Action: "remove_from_group:" + group}
	groupID, err := p.admin.FindGroupID(ctx, group)
	if err != nil {
		if util.IsNotFound(err) {
			result.Warning = fmt.Sprintf("group %q not found", group)
			return result
		}
		result.Err = err
		return result
	}
	if err := p.admin.RemoveFromGroup(ctx, groupID, user.ID); err != nil {
		if util.IsNotFound(err) {
			// Not a member; removal is already true.
			result.Warning = fmt.Sprintf("not a member of %q", group)
			return result
		}
		result.Err = err
	}
	return result
}

var _ PhaseAction = (*DirectoryPhase)(nil)
