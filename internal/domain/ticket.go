package domain

import "time"

// TicketState enumerates service-desk lifecycle states.
type TicketState string

const (
	TicketStateNew           TicketState = "New"
	TicketStateAwaitingInput TicketState = "Awaiting Input"
	TicketStateAssigned      TicketState = "Assigned"
	TicketStateInProgress    TicketState = "In Progress"
	TicketStatePending       TicketState = "Pending"
	TicketStateResolved      TicketState = "Resolved"
	TicketStateClosed        TicketState = "Closed"
)

// Well-known custom field labels on termination tickets.
const (
	FieldEmployeeToTerminate = "Employee to Terminate"
	FieldEmployeeDepartment  = "Employee Department"
	FieldTerminationDate     = "Termination Date"
	FieldAccessRemovalDate   = "Date to remove access"
	FieldTermType            = "Term Type"
	FieldTransferData        = "Transfer Data"
	FieldAdditionalInfo      = "Additional Information"
)

// UserRef is a structured user reference some ticket systems attach to a
// custom field alongside its raw text value. When present it is
// authoritative over the text.
type UserRef struct {
	ID          string
	Email       string
	DisplayName string
}

// FieldEntry is one custom field on a ticket, in submission order.
type FieldEntry struct {
	Name    string
	Value   string
	UserRef *UserRef
}

// RawTicket is a service-desk ticket as fetched; immutable after fetch.
type RawTicket struct {
	ID            string
	DisplayNumber string
	State         TicketState
	CreatedAt     time.Time
	Subject       string
	Subcategory   string
	CustomFields  map[string]string
	FieldEntries  []FieldEntry
}

// Field returns the first field entry with the given label, falling back to
// the flat custom-field map for older payload shapes.
func (t *RawTicket) Field(name string) (FieldEntry, bool) {
	for _, entry := range t.FieldEntries {
		if entry.Name == name {
			return entry, true
		}
	}
	if val, ok := t.CustomFields[name]; ok && val != "" {
		return FieldEntry{Name: name, Value: val}, true
	}
	return FieldEntry{}, false
}

// Actionable reports whether a termination ticket should be processed.
// Only "Awaiting Input" tickets qualify; broader historical state lists are
// superseded.
func (t *RawTicket) Actionable() bool {
	return t.State == TicketStateAwaitingInput
}
