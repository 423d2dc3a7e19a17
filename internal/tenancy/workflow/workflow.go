// Package workflow implements the access-request state machine: a user asks
// to join a company, an admin approves or rejects, and approval produces a
// membership. Transitions out of pending happen exactly once.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gartstein/tenancy/internal/tenancy/audit"
	"github.com/gartstein/tenancy/internal/tenancy/db"
	e "github.com/gartstein/tenancy/internal/tenancy/errors"
	"github.com/gartstein/tenancy/internal/tenancy/models"
	"github.com/gartstein/tenancy/internal/tenancy/verify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Repository defines the storage interface for the request workflow.
type Repository interface {
	GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetPendingRequest(ctx context.Context, userID, toCompanyID uuid.UUID) (*models.CompanySwitchRequest, error)
	GetSwitchRequest(ctx context.Context, id uuid.UUID) (*models.CompanySwitchRequest, error)
	ListPendingRequests(ctx context.Context, companyID uuid.UUID) ([]models.CompanySwitchRequest, error)
	ListUserMemberships(ctx context.Context, userID uuid.UUID) ([]models.UserCompany, error)
	WithTransaction(ctx context.Context, fn func(repo *db.Repository) error) error
}

// AccessRequestService manages the request lifecycle.
type AccessRequestService struct {
	repo   Repository
	sink   audit.Sink
	logger *zap.Logger
}

func NewAccessRequestService(repo Repository, sink audit.Sink, logger *zap.Logger) *AccessRequestService {
	return &AccessRequestService{
		repo:   repo,
		sink:   sink,
		logger: logger.Named("access_request_service"),
	}
}

// Create submits an access request for the target company. At most one
// pending request may exist per (user, company) pair. The email-domain
// verifier's verdict is stored on the request so reviewing admins see the
// affiliation signal.
func (s *AccessRequestService) Create(
	ctx context.Context,
	userID, targetCompanyID uuid.UUID,
	reason string,
) (*models.CompanySwitchRequest, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	company, err := s.repo.GetCompany(ctx, targetCompanyID)
	if err != nil {
		return nil, fmt.Errorf("target company: %w", err)
	}

	existing, err := s.repo.GetPendingRequest(ctx, userID, targetCompanyID)
	if err != nil && !errors.Is(err, e.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for pending request: %w", err)
	}
	if existing != nil {
		return nil, e.ErrDuplicatePendingRequest
	}

	// Best-effort affiliation hint for the review queue; never blocks the
	// request itself.
	verdict := verify.Verify(user.Email, company.LegalName)

	req := &models.CompanySwitchRequest{
		ID:                 uuid.New(),
		UserID:             userID,
		ToCompanyID:        targetCompanyID,
		FromCompanyID:      s.currentPrimaryCompany(ctx, userID),
		RequestType:        models.RequestAccessRequest,
		Status:             models.RequestPending,
		Reason:             reason,
		DomainVerification: verdict.Reason,
	}
	err = s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		return tx.CreateSwitchRequest(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create access request: %w", err)
	}

	s.sink.Record(audit.Event{
		Action:     audit.RequestSubmitted,
		ActorID:    userID,
		CompanyID:  targetCompanyID,
		EntityType: "company_switch_request",
		EntityID:   req.ID,
		Outcome:    "pending",
		Reason:     verdict.Reason,
		OccurredAt: time.Now().UTC(),
	})
	return req, nil
}

// currentPrimaryCompany resolves the requester's active company, if any.
// A lookup failure just leaves FromCompanyID empty; the field is
// informational.
func (s *AccessRequestService) currentPrimaryCompany(ctx context.Context, userID uuid.UUID) *uuid.UUID {
	memberships, err := s.repo.ListUserMemberships(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to resolve current primary company",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil
	}
	for _, m := range memberships {
		if m.IsPrimaryCompany {
			id := m.CompanyID
			return &id
		}
	}
	return nil
}

// ListPending returns a company's pending requests oldest first.
func (s *AccessRequestService) ListPending(ctx context.Context, companyID uuid.UUID) ([]models.CompanySwitchRequest, error) {
	reqs, err := s.repo.ListPendingRequests(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	return reqs, nil
}

// Approve grants the request: in one transaction the request transitions
// pending→approved and a membership is created with a default non-admin
// role and no primary flag. Both effects commit together or neither does.
// A request that is missing or no longer pending reports ErrNotFound.
func (s *AccessRequestService) Approve(ctx context.Context, requestID, approverID uuid.UUID) (*models.UserCompany, error) {
	req, err := s.repo.GetSwitchRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	if req.Status != models.RequestPending {
		return nil, e.ErrNotFound
	}

	now := time.Now().UTC()
	membership := &models.UserCompany{
		ID:               uuid.New(),
		UserID:           req.UserID,
		CompanyID:        req.ToCompanyID,
		Role:             models.RoleMember,
		Status:           models.MembershipActive,
		IsPrimaryCompany: false,
		JoinedVia:        models.JoinedViaAccessRequest,
	}
	err = s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		// The status-guarded update transitions at most once; a racing
		// approval loses here and rolls the membership back.
		if err := tx.ApproveRequest(ctx, requestID, approverID, now); err != nil {
			return err
		}
		return tx.CreateMembership(ctx, membership)
	})
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to approve request: %w", err)
	}

	s.sink.Record(audit.Event{
		Action:     audit.RequestApproved,
		ActorID:    approverID,
		SubjectID:  req.UserID,
		CompanyID:  req.ToCompanyID,
		EntityType: "company_switch_request",
		EntityID:   req.ID,
		Outcome:    "approved",
		OccurredAt: now,
	})
	return membership, nil
}

// Reject declines the request, recording who rejected it and why. No
// membership is created. Same precondition as Approve.
func (s *AccessRequestService) Reject(ctx context.Context, requestID, rejecterID uuid.UUID, reason string) error {
	req, err := s.repo.GetSwitchRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to get request: %w", err)
	}
	if req.Status != models.RequestPending {
		return e.ErrNotFound
	}

	now := time.Now().UTC()
	err = s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		return tx.RejectRequest(ctx, requestID, rejecterID, reason, now)
	})
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to reject request: %w", err)
	}

	s.sink.Record(audit.Event{
		Action:     audit.RequestRejected,
		ActorID:    rejecterID,
		SubjectID:  req.UserID,
		CompanyID:  req.ToCompanyID,
		EntityType: "company_switch_request",
		EntityID:   req.ID,
		Outcome:    "rejected",
		Reason:     reason,
		OccurredAt: now,
	})
	return nil
}
