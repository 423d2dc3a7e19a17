// Package guard enforces tenant isolation: every operation entering the
// core is checked against the caller's active company before any other
// component runs.
package guard

import (
	"time"

	"github.com/gartstein/tenancy/internal/tenancy/audit"
	e "github.com/gartstein/tenancy/internal/tenancy/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Check describes an access attempt against a company-scoped resource.
// Everything beyond the two company ids exists for the audit trail.
type Check struct {
	UserID            uuid.UUID
	ResourceCompanyID uuid.UUID
	ActiveCompanyID   uuid.UUID
	ResourceType      string
	ResourceID        uuid.UUID
	Endpoint          string
}

// TenancyGuard is stateless; it holds only its collaborators.
type TenancyGuard struct {
	sink   audit.Sink
	logger *zap.Logger
}

func NewTenancyGuard(sink audit.Sink, logger *zap.Logger) *TenancyGuard {
	return &TenancyGuard{
		sink:   sink,
		logger: logger.Named("tenancy_guard"),
	}
}

// RequireCompanyContext fails when the caller has no active company, e.g.
// mid-onboarding before the first membership exists.
func (g *TenancyGuard) RequireCompanyContext(companyID uuid.UUID) error {
	if companyID == uuid.Nil {
		return e.ErrNoCompanyContext
	}
	return nil
}

// RequireCompanyAccess returns nil when the resource belongs to the
// caller's active company; otherwise it records the denial and fails.
func (g *TenancyGuard) RequireCompanyAccess(c Check) error {
	if err := g.RequireCompanyContext(c.ActiveCompanyID); err != nil {
		return err
	}
	if c.ResourceCompanyID == c.ActiveCompanyID {
		return nil
	}
	g.recordDenial(c, "resource belongs to another company")
	return &e.AccessDeniedError{
		AttemptedCompanyID: c.ResourceCompanyID,
		ActualCompanyID:    c.ActiveCompanyID,
	}
}

// RequirePathMatchesContext rejects requests whose URL-embedded company id
// disagrees with the session's company, blocking parameter tampering.
func (g *TenancyGuard) RequirePathMatchesContext(c Check, pathCompanyID uuid.UUID) error {
	if err := g.RequireCompanyContext(c.ActiveCompanyID); err != nil {
		return err
	}
	if pathCompanyID == c.ActiveCompanyID {
		return nil
	}
	c.ResourceCompanyID = pathCompanyID
	g.recordDenial(c, "path company id does not match session company")
	return &e.AccessDeniedError{
		AttemptedCompanyID: pathCompanyID,
		ActualCompanyID:    c.ActiveCompanyID,
	}
}

// recordDenial writes the denial to the audit trail. The sink swallows its
// own failures, so the 403 path can never be masked by logging trouble.
func (g *TenancyGuard) recordDenial(c Check, reason string) {
	g.logger.Warn("cross-tenant access denied",
		zap.String("user_id", c.UserID.String()),
		zap.String("attempted_company_id", c.ResourceCompanyID.String()),
		zap.String("active_company_id", c.ActiveCompanyID.String()),
		zap.String("resource_type", c.ResourceType),
		zap.String("endpoint", c.Endpoint),
	)
	g.sink.Record(audit.Event{
		Action:             audit.AccessDenied,
		ActorID:            c.UserID,
		CompanyID:          c.ActiveCompanyID,
		AttemptedCompanyID: c.ResourceCompanyID,
		EntityType:         c.ResourceType,
		EntityID:           c.ResourceID,
		Outcome:            "denied",
		Reason:             reason,
		OccurredAt:         time.Now().UTC(),
	})
}
