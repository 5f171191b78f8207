package domain

// ResolutionState describes how far an identity has been resolved.
type ResolutionState string

const (
	// IdentityResolved means Value holds a usable email address.
	IdentityResolved ResolutionState = "RESOLVED"
	// IdentityPendingLookup means Value holds an employee id that must be
	// resolved against the directory before use.
	IdentityPendingLookup ResolutionState = "PENDING_LOOKUP"
	// IdentityUnresolved means no identity could be derived.
	IdentityUnresolved ResolutionState = "UNRESOLVED"
)

// CanonicalIdentity is the resolved (or not yet resolved) address of a
// person referenced by a ticket. Immutable once built.
type CanonicalIdentity struct {
	Value string
	State ResolutionState
}

// ResolvedIdentity builds an identity holding a usable email.
func ResolvedIdentity(email string) CanonicalIdentity {
	return CanonicalIdentity{Value: email, State: IdentityResolved}
}

// PendingIdentity builds an identity holding an employee id awaiting a
// directory lookup.
func PendingIdentity(employeeID string) CanonicalIdentity {
	return CanonicalIdentity{Value: employeeID, State: IdentityPendingLookup}
}

// UnresolvedIdentity builds an empty, unresolved identity.
func UnresolvedIdentity() CanonicalIdentity {
	return CanonicalIdentity{State: IdentityUnresolved}
}

// Email returns the resolved address; empty unless State is Resolved.
func (i CanonicalIdentity) Email() string {
	if i.State != IdentityResolved {
		return ""
	}
	return i.Value
}

// Resolved reports whether the identity holds a usable email.
func (i CanonicalIdentity) Resolved() bool {
	return i.State == IdentityResolved
}
