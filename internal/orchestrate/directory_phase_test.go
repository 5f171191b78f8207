package orchestrate

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-service/internal/directory"
	"github.com/spec-kit/lifecycle-service/internal/domain"
	"github.com/spec-kit/lifecycle-service/pkg/util"
)

type fakeAdmin struct {
	users       map[string]*directory.User
	groups      map[string]string
	removed     []string
	cleared     []string
	deactivated []string
	removeErr   error
	sessionErr  error
	deactivErr  error
}

func (f *fakeAdmin) LookupByEmployeeID(_ context.Context, id string) (string, error) {
	return "", util.NewNotFound("employee " + id)
}

func (f *fakeAdmin) GetUserByEmail(_ context.Context, email string) (*directory.User, error) {
	user, ok := f.users[email]
	if !ok {
		return nil, util.NewNotFound("user " + email)
	}
	return user, nil
}

func (f *fakeAdmin) FindGroupID(_ context.Context, name string) (string, error) {
	id, ok := f.groups[name]
	if !ok {
		return "", util.NewNotFound("group " + name)
	}
	return id, nil
}

func (f *fakeAdmin) RemoveFromGroup(_ context.Context, groupID, _ string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, groupID)
	return nil
}

func (f *fakeAdmin) ClearSessions(_ context.Context, userID string) error {
	if f.sessionErr != nil {
		return f.sessionErr
	}
	f.cleared = append(f.cleared, userID)
	return nil
}

func (f *fakeAdmin) DeactivateUser(_ context.Context, userID string) error {
	if f.deactivErr != nil {
		return f.deactivErr
	}
	f.deactivated = append(f.deactivated, userID)
	return nil
}

func activeUser() *directory.User {
	return &directory.User{ID: "u1", Email: "jane.doe@example.com", Status: "ACTIVE"}
}

func directoryRecord() *domain.TerminationRecord {
	return &domain.TerminationRecord{
		TicketID:         "42",
		EmployeeIdentity: domain.ResolvedIdentity("jane.doe@example.com"),
	}
}

func TestDirectoryPhaseFullLockdown(t *testing.T) {
	admin := &fakeAdmin{
		users:  map[string]*directory.User{"jane.doe@example.com": activeUser()},
		groups: map[string]string{"VPN Users": "g1", "Engineering": "g2"},
	}
	phase := NewDirectoryPhase(admin, []string{"VPN Users", "Engineering"}, zap.NewNop())

	results := phase.Execute(context.Background(), directoryRecord())
	for _, result := range results {
		if !result.Succeeded() {
			t.Fatalf("action %s failed: %v", result.Action, result.Err)
		}
	}
	if len(admin.removed) != 2 {
		t.Fatalf("expected 2 group removals, got %d", len(admin.removed))
	}
	if len(admin.cleared) != 1 || len(admin.deactivated) != 1 {
		t.Fatalf("expected session clear and deactivation")
	}
}

func TestDirectoryPhaseMissingAccountIsWarningNotFailure(t *testing.T) {
	admin := &fakeAdmin{users: map[string]*directory.User{}}
	phase := NewDirectoryPhase(admin, nil, zap.NewNop())

	results := phase.Execute(context.Background(), directoryRecord())
	if len(results) != 1 {
		t.Fatalf("expected a single lookup result, got %d", len(results))
	}
	if !results[0].Succeeded() || results[0].Warning == "" {
		t.Fatalf("missing account must succeed with a warning, got %+v", results[0])
	}
	if len(admin.deactivated) != 0 {
		t.Fatalf("no lockdown actions may run without an account")
	}
}

func TestDirectoryPhaseMissingGroupIsWarning(t *testing.T) {
	admin := &fakeAdmin{
		users:  map[string]*directory.User{"jane.doe@example.com": activeUser()},
		groups: map[string]string{},
	}
	phase := NewDirectoryPhase(admin, []string{"Gone Group"}, zap.NewNop())

	results := phase.Execute(context.Background(), directoryRecord())
	for _, result := range results {
		if result.Action == "remove_from_group:Gone Group" {
			if !result.Succeeded() || result.Warning == "" {
				t.Fatalf("missing group must warn, not fail: %+v", result)
			}
			return
		}
	}
	t.Fatalf("group removal result not found in %+v", results)
}

func TestDirectoryPhaseAlreadyDeactivatedIsIdempotent(t *testing.T) {
	admin := &fakeAdmin{
		users: map[string]*directory.User{
			"jane.doe@example.com": {ID: "u1", Email: "jane.doe@example.com", Status: "DEPROVISIONED"},
		},
	}
	phase := NewDirectoryPhase(admin, nil, zap.NewNop())

	results := phase.Execute(context.Background(), directoryRecord())
	for _, result := range results {
		if result.Action == "deactivate_user" {
			if !result.Succeeded() || result.Warning == "" {
				t.Fatalf("re-terminating a deactivated account must warn and succeed: %+v", result)
			}
			if len(admin.deactivated) != 0 {
				t.Fatalf("deactivation must not be re-issued")
			}
			return
		}
	}
	t.Fatalf("deactivation result not found")
}

func TestDirectoryPhaseFailedRemovalDoesNotStopDeactivation(t *testing.T) {
	admin := &fakeAdmin{
		users:     map[string]*directory.User{"jane.doe@example.com": activeUser()},
		groups:    map[string]string{"VPN Users": "g1"},
		removeErr: util.NewTransient("group api down", nil),
	}
	phase := NewDirectoryPhase(admin, []string{"VPN Users"}, zap.NewNop())

	results := phase.Execute(context.Background(), directoryRecord())
	var removalFailed, deactivated bool
	for _, result := range results {
		if result.Action == "remove_from_group:VPN Users" && !result.Succeeded() {
			removalFailed = true
		}
		if result.Action == "deactivate_user" && result.Succeeded() {
			deactivated = true
		}
	}
	if !removalFailed || !deactivated {
		t.Fatalf("expected failed removal and completed deactivation, got %+v", results)
	}
	if len(admin.deactivated) != 1 {
		t.Fatalf("deactivation must still be issued")
	}
}
