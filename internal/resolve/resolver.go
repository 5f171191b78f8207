package resolve

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/spec-kit/lifecycle-service/internal/directory"
	"github.com/spec-kit/lifecycle-service/internal/domain"
	"github.com/spec-kit/lifecycle-service/pkg/util"
)

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// Resolver turns the free-text and structured references on termination
// tickets into canonical identities. Every input shape seen in production is
// tried in a fixed precedence; the first match wins and later heuristics
// never override an earlier one.
type Resolver struct {
	orgDomain string
	logger    *zap.Logger
}

// NewResolver builds a resolver synthesizing addresses under orgDomain.
func NewResolver(orgDomain string, logger *zap.Logger) *Resolver {
	return &Resolver{orgDomain: orgDomain, logger: logger}
}

// ResolveValue derives an identity from one field value plus its optional
// structured user reference. Precedence:
//
//  1. the embedded user reference's email
//  2. an email extracted from the text by pattern
//  3. the whole trimmed text, when it reads as an address itself
//  4. an all-digit value, held as a pending employee-number lookup
//  5. a human name, folded to ASCII and synthesized under the org domain
//
// Anything else is unresolved.
func (r *Resolver) ResolveValue(value string, ref *domain.UserRef) domain.CanonicalIdentity {
	if ref != nil && strings.Contains(ref.Email, "@") {
		return domain.ResolvedIdentity(strings.ToLower(strings.TrimSpace(ref.Email)))
	}

	text := strings.TrimSpace(value)
	if text == "" {
		return domain.UnresolvedIdentity()
	}

	if match := emailPattern.FindString(text); match != "" {
		return domain.ResolvedIdentity(strings.ToLower(match))
	}

	if strings.Contains(text, "@") && strings.Contains(text, ".") && !strings.ContainsAny(text, " \t") {
		return domain.ResolvedIdentity(strings.ToLower(text))
	}

	if isAllDigits(text) {
		return domain.PendingIdentity(text)
	}

	if isNameLike(text) {
		if local := r.synthesizeLocalPart(text); local != "" {
			return domain.ResolvedIdentity(local + "@" + r.orgDomain)
		}
	}

	return domain.UnresolvedIdentity()
}

// ResolveEmployee derives the employee identity from a ticket.
func (r *Resolver) ResolveEmployee(ticket *domain.RawTicket) domain.CanonicalIdentity {
	entry, ok := ticket.Field(domain.FieldEmployeeToTerminate)
	if !ok {
		return domain.UnresolvedIdentity()
	}
	return r.ResolveValue(entry.Value, entry.UserRef)
}

// ResolveManager derives the manager identity from a ticket. The primary
// source is the data-transfer field; the additional-information field is
// consulted only when it carries an exact address, because free text there
// is prose and name synthesis on it produces garbage.
func (r *Resolver) ResolveManager(ticket *domain.RawTicket) domain.CanonicalIdentity {
	if entry, ok := ticket.Field(domain.FieldTransferData); ok {
		if identity := r.ResolveValue(entry.Value, entry.UserRef); identity.State != domain.IdentityUnresolved {
			return identity
		}
	}
	if entry, ok := ticket.Field(domain.FieldAdditionalInfo); ok {
		if entry.UserRef != nil && strings.Contains(entry.UserRef.Email, "@") {
			return domain.ResolvedIdentity(strings.ToLower(strings.TrimSpace(entry.UserRef.Email)))
		}
		text := strings.TrimSpace(entry.Value)
		if emailPattern.MatchString(text) && emailPattern.FindString(text) == text {
			return domain.ResolvedIdentity(strings.ToLower(text))
		}
	}
	return domain.UnresolvedIdentity()
}

// BuildRecord parses one ticket into a termination record.
func (r *Resolver) BuildRecord(ticket *domain.RawTicket) *domain.TerminationRecord {
	record := &domain.TerminationRecord{
		TicketID:         ticket.ID,
		TicketNumber:     ticket.DisplayNumber,
		EmployeeIdentity: r.ResolveEmployee(ticket),
		ManagerIdentity:  r.ResolveManager(ticket),
		Extras:           map[string]string{},
	}
	if entry, ok := ticket.Field(domain.FieldEmployeeToTerminate); ok {
		record.EmployeeName = strings.TrimSpace(entry.Value)
		if entry.UserRef != nil && entry.UserRef.DisplayName != "" {
			record.EmployeeName = entry.UserRef.DisplayName
		}
	}
	if entry, ok := ticket.Field(domain.FieldEmployeeDepartment); ok {
		record.Department = strings.TrimSpace(entry.Value)
	}
	if entry, ok := ticket.Field(domain.FieldTerminationDate); ok {
		record.TerminationDate = strings.TrimSpace(entry.Value)
	}
	if entry, ok := ticket.Field(domain.FieldAccessRemovalDate); ok {
		record.AccessRemovalDate = strings.TrimSpace(entry.Value)
	}
	if entry, ok := ticket.Field(domain.FieldTermType); ok {
		record.TermType = strings.TrimSpace(entry.Value)
	}
	for _, entry := range ticket.FieldEntries {
		switch entry.Name {
		case domain.FieldEmployeeToTerminate, domain.FieldEmployeeDepartment,
			domain.FieldTerminationDate, domain.FieldAccessRemovalDate,
			domain.FieldTermType:
		default:
			if entry.Value != "" {
				record.Extras[entry.Name] = entry.Value
			}
		}
	}
	return record
}

// ResolvePending completes a pending employee-number identity against the
// directory. Resolved and unresolved identities pass through unchanged; a
// directory miss degrades the identity to unresolved rather than erroring,
// so the run can fail with a clear cause instead of an opaque lookup error.
func (r *Resolver) ResolvePending(ctx context.Context, identity domain.CanonicalIdentity, lookup directory.Lookup) (domain.CanonicalIdentity, error) {
	if identity.State != domain.IdentityPendingLookup {
		return identity, nil
	}
	email, err := lookup.LookupByEmployeeID(ctx, identity.Value)
	if err != nil {
		if util.IsNotFound(err) {
			r.logger.Warn("employee number not found in directory",
				zap.String("employee_number", identity.Value))
			return domain.UnresolvedIdentity(), nil
		}
		return identity, err
	}
	return domain.ResolvedIdentity(strings.ToLower(email)), nil
}

// synthesizeLocalPart folds a human name to an ASCII mailbox local part:
// diacritics stripped, lowercased, name parts concatenated with no
// separator, matching the address shape the organization provisions.
func (r *Resolver) synthesizeLocalPart(name string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)

	parts := strings.Fields(folded)
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		var b strings.Builder
		for _, ch := range part {
			if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
				b.WriteRune(ch)
			}
		}
		if b.Len() > 0 {
			kept = append(kept, b.String())
		}
	}
	return strings.Join(kept, "")
}

// isNameLike reports whether text could plausibly be a person's name or bare
// username. Punctuation beyond what names carry means prose or garbage, and
// synthesizing an address from that produces false positives.
func isNameLike(text string) bool {
	for _, ch := range text {
		switch {
		case unicode.IsLetter(ch) || unicode.IsDigit(ch):
		case ch == ' ' || ch == '-' || ch == '\'' || ch == '.':
		default:
			return false
		}
	}
	return true
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
