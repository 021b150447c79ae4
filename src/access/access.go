// Package access holds the precondition checks shared by the feature engines.
// A failed check is a *DeniedError; adapters turn its Reason into user text.
package access

import (
	"errors"
	"fmt"
	"slices"
)

// Reason identifies why an operation was refused.
type Reason string

const (
	NotStaff         Reason = "not_staff"
	MissingRole      Reason = "missing_role"
	NotConfigured    Reason = "not_configured"
	NotFound         Reason = "not_found"
	NotAuthor        Reason = "not_author"
	VotingNotOpen    Reason = "voting_not_open"
	VotingClosed     Reason = "voting_closed"
	AlreadyVoted     Reason = "already_voted"
	ReviewClosed     Reason = "review_closed"
	NoComment        Reason = "no_comment"
	AlreadyDone      Reason = "already_done"
	AlreadyAnnulled  Reason = "already_annulled"
	NotPassed        Reason = "not_passed"
	OutcomeDecided   Reason = "outcome_decided"
	EmptyText        Reason = "empty_text"
	TooLong          Reason = "too_long"
	OnCooldown       Reason = "on_cooldown"
	NoWarnings       Reason = "no_warnings"
	AlreadyLinked    Reason = "already_linked"
	NotLinked        Reason = "not_linked"
	TooManyProposals Reason = "too_many_proposals"
	NotEligible      Reason = "not_eligible"
)

// DeniedError is returned when a precondition does not hold. The store is
// left untouched.
type DeniedError struct {
	Reason Reason
	Detail string
}

func (e *DeniedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("denied: %s", e.Reason)
	}
	return fmt.Sprintf("denied: %s: %s", e.Reason, e.Detail)
}

// Is lets errors.Is match on the reason alone.
func (e *DeniedError) Is(target error) bool {
	var t *DeniedError
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

// Deny builds a *DeniedError.
func Deny(reason Reason, detail ...any) error {
	e := &DeniedError{Reason: reason}
	if len(detail) > 0 {
		e.Detail = fmt.Sprint(detail...)
	}
	return e
}

// AsDenied extracts the denial from err, if any.
func AsDenied(err error) (*DeniedError, bool) {
	var d *DeniedError
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// Actor is the caller of an operation as seen by the engines.
type Actor struct {
	ID    string
	Roles []string
	// Staff is set by the adapter for guild administrators even without a
	// configured staff role.
	Staff bool
}

// HasRole reports whether the actor has role. An empty role always matches.
func (a Actor) HasRole(role string) bool {
	return role == "" || slices.Contains(a.Roles, role)
}

// RequireRole denies when a configured role is missing.
func (a Actor) RequireRole(role string) error {
	if !a.HasRole(role) {
		return Deny(MissingRole, role)
	}
	return nil
}

// IsStaff reports whether the actor holds any of the staff roles.
func (a Actor) IsStaff(staffRoles []string) bool {
	if a.Staff {
		return true
	}
	for _, r := range staffRoles {
		if slices.Contains(a.Roles, r) {
			return true
		}
	}
	return false
}

// RequireStaff denies non-staff callers.
func (a Actor) RequireStaff(staffRoles []string) error {
	if !a.IsStaff(staffRoles) {
		return Deny(NotStaff)
	}
	return nil
}
