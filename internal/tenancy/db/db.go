// Package db implements the persistence collaborator: a GORM-backed
// repository with transactional read/write over companies, relationships,
// switch requests, and memberships.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	e "github.com/gartstein/tenancy/internal/tenancy/errors"
	"github.com/gartstein/tenancy/internal/tenancy/models"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewRepository connects to postgres, retrying with exponential backoff
// while the database comes up, and runs migrations.
func NewRepository(cfg *Config) (*Repository, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var gdb *gorm.DB
	connect := func() error {
		var err error
		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(connect, bo); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewWithDB(gdb)
}

// NewWithDB wraps an existing GORM handle and runs migrations. Used by
// tests (sqlite) and callers that manage their own connection.
func NewWithDB(gdb *gorm.DB) (*Repository, error) {
	if err := gdb.AutoMigrate(
		&models.Company{},
		&models.User{},
		&models.CompanyRelationship{},
		&models.CompanySwitchRequest{},
		&models.UserCompany{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	repo := &Repository{db: gdb}

	// Closes the concurrent-switch race at the storage layer: two switches
	// racing past the application pre-check cannot both land a primary row.
	// Partial indexes are postgres-only; sqlite tests rely on the
	// application path.
	if gdb.Dialector.Name() == "postgres" {
		err := repo.Exec(context.Background(),
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_one_primary_company
			 ON user_companies (user_id)
			 WHERE is_primary_company AND deleted_at IS NULL`,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create primary-company index: %w", err)
		}
	}

	return repo, nil
}

// wrapErr maps storage errors onto the business error categories: missing
// rows become ErrNotFound, anything else is an unexpected persistence
// failure the caller surfaces as a server error.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return e.ErrNotFound
	}
	return fmt.Errorf("%w: %v", e.ErrPersistenceFailure, err)
}

// --- companies & users ---

func (r *Repository) CreateCompany(ctx context.Context, company *models.Company) error {
	return wrapErr(r.db.WithContext(ctx).Create(company).Error)
}

func (r *Repository) GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	var company models.Company
	if err := r.db.WithContext(ctx).First(&company, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &company, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return wrapErr(r.db.WithContext(ctx).Create(user).Error)
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &user, nil
}

// --- company relationships ---

func (r *Repository) CreateRelationship(ctx context.Context, rel *models.CompanyRelationship) error {
	return wrapErr(r.db.WithContext(ctx).Create(rel).Error)
}

func (r *Repository) GetRelationship(ctx context.Context, id uuid.UUID) (*models.CompanyRelationship, error) {
	var rel models.CompanyRelationship
	if err := r.db.WithContext(ctx).First(&rel, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &rel, nil
}

// GetRelationshipBetween looks up the edge between two companies regardless
// of direction. Returns ErrNotFound when the pair is unlinked.
func (r *Repository) GetRelationshipBetween(ctx context.Context, a, b uuid.UUID) (*models.CompanyRelationship, error) {
	var rel models.CompanyRelationship
	err := r.db.WithContext(ctx).
		Where("(parent_company_id = ? AND child_company_id = ?) OR (parent_company_id = ? AND child_company_id = ?)",
			a, b, b, a).
		First(&rel).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &rel, nil
}

// GetParentRelationships returns every edge in which the given company is
// the child. The pair-level duplicate check does not stop a company from
// having several parents, so cycle detection must see all of them. Empty
// for roots.
func (r *Repository) GetParentRelationships(ctx context.Context, childID uuid.UUID) ([]models.CompanyRelationship, error) {
	var rels []models.CompanyRelationship
	err := r.db.WithContext(ctx).
		Where("child_company_id = ?", childID).
		Find(&rels).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return rels, nil
}

// GetCompanyRelationships returns every edge touching the company, as
// parent or child.
func (r *Repository) GetCompanyRelationships(ctx context.Context, companyID uuid.UUID) ([]models.CompanyRelationship, error) {
	var rels []models.CompanyRelationship
	err := r.db.WithContext(ctx).
		Where("parent_company_id = ? OR child_company_id = ?", companyID, companyID).
		Order("created_at ASC").
		Find(&rels).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return rels, nil
}

func (r *Repository) UpdateRelationshipStatus(ctx context.Context, id uuid.UUID, status models.RelationshipStatus) error {
	result := r.db.WithContext(ctx).Model(&models.CompanyRelationship{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return wrapErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// --- switch requests ---

func (r *Repository) CreateSwitchRequest(ctx context.Context, req *models.CompanySwitchRequest) error {
	return wrapErr(r.db.WithContext(ctx).Create(req).Error)
}

// GetPendingRequest returns the pending request for a (user, company) pair,
// used to enforce the one-pending-per-pair invariant.
func (r *Repository) GetPendingRequest(ctx context.Context, userID, toCompanyID uuid.UUID) (*models.CompanySwitchRequest, error) {
	var req models.CompanySwitchRequest
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND to_company_id = ? AND status = ?", userID, toCompanyID, models.RequestPending).
		First(&req).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &req, nil
}

func (r *Repository) GetSwitchRequest(ctx context.Context, id uuid.UUID) (*models.CompanySwitchRequest, error) {
	var req models.CompanySwitchRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &req, nil
}

// ListPendingRequests returns a company's pending requests oldest first,
// for admin review queues.
func (r *Repository) ListPendingRequests(ctx context.Context, companyID uuid.UUID) ([]models.CompanySwitchRequest, error) {
	var reqs []models.CompanySwitchRequest
	err := r.db.WithContext(ctx).
		Where("to_company_id = ? AND status = ?", companyID, models.RequestPending).
		Order("created_at ASC").
		Find(&reqs).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return reqs, nil
}

// ApproveRequest transitions a request pending→approved. The status guard
// in the WHERE clause makes the terminal transition happen at most once;
// a request that is gone or already decided reports ErrNotFound.
func (r *Repository) ApproveRequest(ctx context.Context, id, approverID uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.CompanySwitchRequest{}).
		Where("id = ? AND status = ?", id, models.RequestPending).
		Updates(map[string]interface{}{
			"status":      models.RequestApproved,
			"approved_by": approverID,
			"approved_at": at,
		})
	if result.Error != nil {
		return wrapErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// RejectRequest transitions a request pending→rejected under the same
// at-most-once guard as ApproveRequest.
func (r *Repository) RejectRequest(ctx context.Context, id, rejecterID uuid.UUID, reason string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.CompanySwitchRequest{}).
		Where("id = ? AND status = ?", id, models.RequestPending).
		Updates(map[string]interface{}{
			"status":           models.RequestRejected,
			"rejected_by":      rejecterID,
			"rejected_at":      at,
			"rejection_reason": reason,
		})
	if result.Error != nil {
		return wrapErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// --- memberships ---

func (r *Repository) CreateMembership(ctx context.Context, m *models.UserCompany) error {
	return wrapErr(r.db.WithContext(ctx).Create(m).Error)
}

func (r *Repository) GetMembership(ctx context.Context, userID, companyID uuid.UUID) (*models.UserCompany, error) {
	var m models.UserCompany
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND company_id = ?", userID, companyID).
		First(&m).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &m, nil
}

func (r *Repository) ListUserMemberships(ctx context.Context, userID uuid.UUID) ([]models.UserCompany, error) {
	var ms []models.UserCompany
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&ms).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return ms, nil
}

// ClearPrimaryCompany unsets the primary flag on every membership the user
// holds. Zero rows affected is fine (first membership, or no primary yet).
func (r *Repository) ClearPrimaryCompany(ctx context.Context, userID uuid.UUID) error {
	return wrapErr(r.db.WithContext(ctx).Model(&models.UserCompany{}).
		Where("user_id = ? AND is_primary_company = ?", userID, true).
		Update("is_primary_company", false).Error)
}

// SetPrimaryCompany marks one membership row primary.
func (r *Repository) SetPrimaryCompany(ctx context.Context, membershipID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.UserCompany{}).
		Where("id = ?", membershipID).
		Update("is_primary_company", true)
	if result.Error != nil {
		return wrapErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// WithTransaction runs fn against a transaction-scoped repository; fn's
// error rolls everything back.
func (r *Repository) WithTransaction(ctx context.Context, fn func(repo *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// Exec runs a raw statement, for schema details AutoMigrate cannot express.
func (r *Repository) Exec(ctx context.Context, query string, params ...interface{}) error {
	return wrapErr(r.db.WithContext(ctx).Exec(query, params...).Error)
}

func (r *Repository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
