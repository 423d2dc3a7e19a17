// Package errors defines the business error categories surfaced by the
// tenancy core. All are recoverable by the caller; the boundary layer maps
// them to 4xx-equivalent responses.
package errors

import (
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound                = fmt.Errorf("not found")
	ErrSelfRelationship        = fmt.Errorf("company cannot relate to itself")
	ErrDuplicateRelationship   = fmt.Errorf("relationship already exists")
	ErrCircularDependency      = fmt.Errorf("relationship would create a cycle")
	ErrInvalidRelationshipType = fmt.Errorf("invalid relationship type")
	ErrInvalidStatus           = fmt.Errorf("invalid relationship status")
	ErrDuplicatePendingRequest = fmt.Errorf("pending request already exists")
	ErrNotAMember              = fmt.Errorf("user is not a member of company")
	ErrMembershipNotActive     = fmt.Errorf("membership is not active")
	ErrNoCompanyContext        = fmt.Errorf("no active company context")
	ErrAccessDenied            = fmt.Errorf("access denied")
	ErrPersistenceFailure      = fmt.Errorf("unexpected persistence failure")
)

// AccessDeniedError carries the company ids involved in a cross-tenant
// denial so the audit trail and support tooling can see both sides.
type AccessDeniedError struct {
	AttemptedCompanyID uuid.UUID
	ActualCompanyID    uuid.UUID
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: attempted company %s, active company %s",
		e.AttemptedCompanyID, e.ActualCompanyID)
}

// Unwrap lets errors.Is(err, ErrAccessDenied) match.
func (e *AccessDeniedError) Unwrap() error {
	return ErrAccessDenied
}
