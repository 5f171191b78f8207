package resolve

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-service/internal/directory"
	"github.com/spec-kit/lifecycle-service/internal/domain"
	"github.com/spec-kit/lifecycle-service/pkg/util"
)

func newTestResolver() *Resolver {
	return NewResolver("example.com", zap.NewNop())
}

func TestResolveValueEmbeddedRefWinsOverText(t *testing.T) {
	r := newTestResolver()
	ref := &domain.UserRef{Email: "Jane.Doe@Example.com"}
	identity := r.ResolveValue("totally different text", ref)
	if !identity.Resolved() {
		t.Fatalf("expected resolved identity, got state %s", identity.State)
	}
	if identity.Email() != "jane.doe@example.com" {
		t.Fatalf("expected lowercased ref email, got %q", identity.Email())
	}
}

func TestResolveValueExtractsEmailFromProse(t *testing.T) {
	r := newTestResolver()
	identity := r.ResolveValue("please transfer files to bob.smith@example.com asap", nil)
	if identity.Email() != "bob.smith@example.com" {
		t.Fatalf("expected extracted email, got %q", identity.Email())
	}
}

func TestResolveValueBareAddress(t *testing.T) {
	r := newTestResolver()
	identity := r.ResolveValue("alice@example.com", nil)
	if identity.Email() != "alice@example.com" {
		t.Fatalf("expected bare address resolved, got %q", identity.Email())
	}
}

func TestResolveValueAllDigitsIsPendingLookup(t *testing.T) {
	r := newTestResolver()
	identity := r.ResolveValue("13685751", nil)
	if identity.State != domain.IdentityPendingLookup {
		t.Fatalf("expected pending lookup, got %s", identity.State)
	}
	if identity.Value != "13685751" {
		t.Fatalf("expected employee number preserved, got %q", identity.Value)
	}
	if identity.Email() != "" {
		t.Fatalf("pending identity must not expose an email")
	}
}

func TestResolveValueSynthesizesFromName(t *testing.T) {
	r := newTestResolver()
	cases := map[string]string{
		"José":            "jose@example.com",
		"José García":     "josegarcia@example.com",
		"Mary-Ann O'Neil": "maryannoneil@example.com",
	}
	for input, want := range cases {
		identity := r.ResolveValue(input, nil)
		if identity.Email() != want {
			t.Fatalf("ResolveValue(%q) = %q, want %q", input, identity.Email(), want)
		}
	}
}

func TestResolveValueUnresolvable(t *testing.T) {
	r := newTestResolver()
	for _, input := range []string{"", "   ", "???", "!!!"} {
		identity := r.ResolveValue(input, nil)
		if identity.State != domain.IdentityUnresolved {
			t.Fatalf("ResolveValue(%q) state = %s, want unresolved", input, identity.State)
		}
	}
}

func TestResolveManagerPrimaryField(t *testing.T) {
	r := newTestResolver()
	ticket := &domain.RawTicket{
		FieldEntries: []domain.FieldEntry{
			{Name: domain.FieldTransferData, Value: "manager@example.com"},
			{Name: domain.FieldAdditionalInfo, Value: "other@example.com"},
		},
	}
	identity := r.ResolveManager(ticket)
	if identity.Email() != "manager@example.com" {
		t.Fatalf("expected primary field to win, got %q", identity.Email())
	}
}

func TestResolveManagerFallbackRequiresExactAddress(t *testing.T) {
	r := newTestResolver()

	exact := &domain.RawTicket{
		FieldEntries: []domain.FieldEntry{
			{Name: domain.FieldAdditionalInfo, Value: "boss@example.com"},
		},
	}
	if got := r.ResolveManager(exact).Email(); got != "boss@example.com" {
		t.Fatalf("expected exact fallback address, got %q", got)
	}

	// Prose in the fallback field must not produce a synthesized name.
	prose := &domain.RawTicket{
		FieldEntries: []domain.FieldEntry{
			{Name: domain.FieldAdditionalInfo, Value: "ask their manager Steve about the laptop"},
		},
	}
	if identity := r.ResolveManager(prose); identity.State != domain.IdentityUnresolved {
		t.Fatalf("prose fallback resolved to %q, want unresolved", identity.Value)
	}
}

func TestBuildRecordCollectsFields(t *testing.T) {
	r := newTestResolver()
	ticket := &domain.RawTicket{
		ID:            "42",
		DisplayNumber: "10042",
		FieldEntries: []domain.FieldEntry{
			{Name: domain.FieldEmployeeToTerminate, Value: "jane.doe@example.com"},
			{Name: domain.FieldEmployeeDepartment, Value: "Finance"},
			{Name: domain.FieldTerminationDate, Value: "2026-09-01"},
			{Name: domain.FieldTermType, Value: "Voluntary"},
			{Name: "Shipping Address", Value: "12 North St"},
		},
	}
	record := r.BuildRecord(ticket)
	if record.EmployeeIdentity.Email() != "jane.doe@example.com" {
		t.Fatalf("unexpected employee identity %q", record.EmployeeIdentity.Email())
	}
	if record.Department != "Finance" || record.TermType != "Voluntary" {
		t.Fatalf("unexpected record fields: %+v", record)
	}
	if record.Extras["Shipping Address"] != "12 North St" {
		t.Fatalf("expected unknown field captured in extras")
	}
}

type fakeLookup struct {
	emails map[string]string
}

func (f *fakeLookup) LookupByEmployeeID(_ context.Context, employeeID string) (string, error) {
	email, ok := f.emails[employeeID]
	if !ok {
		return "", util.NewNotFound("employee " + employeeID)
	}
	return email, nil
}

func (f *fakeLookup) GetUserByEmail(context.Context, string) (*directory.User, error) {
	return nil, util.NewNotFound("user")
}

func (f *fakeLookup) FindGroupID(context.Context, string) (string, error) {
	return "", util.NewNotFound("group")
}

func TestResolvePendingCompletesAgainstDirectory(t *testing.T) {
	r := newTestResolver()
	lookup := &fakeLookup{emails: map[string]string{"13685751": "Jane.Doe@example.com"}}

	identity, err := r.ResolvePending(context.Background(), domain.PendingIdentity("13685751"), lookup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.Email() != "jane.doe@example.com" {
		t.Fatalf("expected directory email, got %q", identity.Email())
	}
}

func TestResolvePendingMissDegradesToUnresolved(t *testing.T) {
	r := newTestResolver()
	lookup := &fakeLookup{emails: map[string]string{}}

	identity, err := r.ResolvePending(context.Background(), domain.PendingIdentity("999"), lookup)
	if err != nil {
		t.Fatalf("a directory miss must not error: %v", err)
	}
	if identity.State != domain.IdentityUnresolved {
		t.Fatalf("expected unresolved, got %s", identity.State)
	}
}

func TestResolvePendingPassesThroughResolved(t *testing.T) {
	r := newTestResolver()
	identity, err := r.ResolvePending(context.Background(), domain.ResolvedIdentity("set@example.com"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.Email() != "set@example.com" {
		t.Fatalf("resolved identity must pass through unchanged")
	}
}
