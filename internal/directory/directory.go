package directory

import (
	"context"
)

// User is a directory profile. Kept flat so cached values compare by value.
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Status    string
}

// Lookup is the read side of the identity provider.
type Lookup interface {
	// LookupByEmployeeID maps an HR employee number to the person's email.
	// A miss returns a typed not-found error, never a fabricated address.
	LookupByEmployeeID(ctx context.Context, employeeID string) (string, error)
	// GetUserByEmail fetches the directory profile for an email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// FindGroupID maps a group name to its directory id.
	FindGroupID(ctx context.Context, name string) (string, error)
}

// Admin is the write side used by termination phases.
type Admin interface {
	Lookup
	RemoveFromGroup(ctx context.Context, groupID, userID string) error
	ClearSessions(ctx context.Context, userID string) error
	DeactivateUser(ctx context.Context, userID string) error
}
