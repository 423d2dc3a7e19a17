// Package switching changes which company is active for a user's session
// and mints the credentials that carry the new context.
package switching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gartstein/tenancy/internal/tenancy/audit"
	"github.com/gartstein/tenancy/internal/tenancy/auth"
	"github.com/gartstein/tenancy/internal/tenancy/db"
	e "github.com/gartstein/tenancy/internal/tenancy/errors"
	"github.com/gartstein/tenancy/internal/tenancy/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Repository defines the storage interface for company switching.
type Repository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	GetMembership(ctx context.Context, userID, companyID uuid.UUID) (*models.UserCompany, error)
	WithTransaction(ctx context.Context, fn func(repo *db.Repository) error) error
}

// TokenIssuer mints session credentials from a claim set. Satisfied by
// auth.Issuer.
type TokenIssuer interface {
	Access(c auth.Claims) (string, error)
	Refresh(c auth.Claims) (string, error)
}

// SwitchResult is what a successful switch hands back to the caller.
type SwitchResult struct {
	AccessToken  string
	RefreshToken string
	Company      *models.Company
}

// CompanySwitchService flips a user's primary company and re-mints tokens.
type CompanySwitchService struct {
	repo   Repository
	issuer TokenIssuer
	sink   audit.Sink
	logger *zap.Logger
}

func NewCompanySwitchService(repo Repository, issuer TokenIssuer, sink audit.Sink, logger *zap.Logger) *CompanySwitchService {
	return &CompanySwitchService{
		repo:   repo,
		issuer: issuer,
		sink:   sink,
		logger: logger.Named("company_switch_service"),
	}
}

// SwitchCompany makes targetCompanyID the user's primary company and mints
// fresh access and refresh tokens scoped to it. The primary flip happens in
// one transaction: every other membership loses the flag, the target row
// gains it. Switching to the already-primary company is a no-op state-wise
// and still re-mints tokens.
func (s *CompanySwitchService) SwitchCompany(ctx context.Context, userID, targetCompanyID uuid.UUID) (*SwitchResult, error) {
	membership, err := s.repo.GetMembership(ctx, userID, targetCompanyID)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, e.ErrNotAMember
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	if membership.Status != models.MembershipActive {
		return nil, e.ErrMembershipNotActive
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	company, err := s.repo.GetCompany(ctx, targetCompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	err = s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		if err := tx.ClearPrimaryCompany(ctx, userID); err != nil {
			return err
		}
		return tx.SetPrimaryCompany(ctx, membership.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to switch primary company: %w", err)
	}

	claims := auth.Claims{
		UserID:    userID,
		Email:     user.Email,
		Role:      membership.Role,
		CompanyID: targetCompanyID,
	}
	accessToken, err := s.issuer.Access(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to mint access token: %w", err)
	}
	refreshToken, err := s.issuer.Refresh(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to mint refresh token: %w", err)
	}

	s.sink.Record(audit.Event{
		Action:     audit.CompanySwitched,
		ActorID:    userID,
		CompanyID:  targetCompanyID,
		EntityType: "user_company",
		EntityID:   membership.ID,
		Outcome:    "switched",
		OccurredAt: time.Now().UTC(),
	})
	return &SwitchResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Company:      company,
	}, nil
}
