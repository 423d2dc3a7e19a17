// Package graph maintains the directed relationship edges linking companies
// into hierarchies. It guards the structural invariants: no self edges, one
// edge per company pair, and an acyclic parent→child edge set.
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gartstein/tenancy/internal/tenancy/audit"
	"github.com/gartstein/tenancy/internal/tenancy/db"
	e "github.com/gartstein/tenancy/internal/tenancy/errors"
	"github.com/gartstein/tenancy/internal/tenancy/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Repository defines the storage interface for relationship edges.
type Repository interface {
	GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	GetRelationship(ctx context.Context, id uuid.UUID) (*models.CompanyRelationship, error)
	GetRelationshipBetween(ctx context.Context, a, b uuid.UUID) (*models.CompanyRelationship, error)
	GetParentRelationships(ctx context.Context, childID uuid.UUID) ([]models.CompanyRelationship, error)
	GetCompanyRelationships(ctx context.Context, companyID uuid.UUID) ([]models.CompanyRelationship, error)
	WithTransaction(ctx context.Context, fn func(repo *db.Repository) error) error
}

// CompanyRelationships splits a company's edges by which side of the edge
// the company sits on, so callers can render the hierarchy directly.
type CompanyRelationships struct {
	AsParent []models.CompanyRelationship
	AsChild  []models.CompanyRelationship
}

// RelationshipService provides methods to link companies and manage the
// lifecycle of existing links.
type RelationshipService struct {
	repo   Repository
	sink   audit.Sink
	logger *zap.Logger
}

func NewRelationshipService(repo Repository, sink audit.Sink, logger *zap.Logger) *RelationshipService {
	return &RelationshipService{
		repo:   repo,
		sink:   sink,
		logger: logger.Named("relationship_service"),
	}
}

// CreateRelationship links parent→child with the given type. It rejects
// self edges, duplicate pairs (in either direction, any status), and edges
// that would close a cycle in the parent chain.
func (s *RelationshipService) CreateRelationship(
	ctx context.Context,
	parentID, childID uuid.UUID,
	relType models.RelationshipType,
	actor uuid.UUID,
) (*models.CompanyRelationship, error) {
	if !relType.Valid() {
		return nil, fmt.Errorf("%w: %q", e.ErrInvalidRelationshipType, relType)
	}
	if parentID == childID {
		return nil, e.ErrSelfRelationship
	}

	if _, err := s.repo.GetCompany(ctx, parentID); err != nil {
		return nil, fmt.Errorf("parent company: %w", err)
	}
	if _, err := s.repo.GetCompany(ctx, childID); err != nil {
		return nil, fmt.Errorf("child company: %w", err)
	}

	existing, err := s.repo.GetRelationshipBetween(ctx, parentID, childID)
	if err != nil && !errors.Is(err, e.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for existing relationship: %w", err)
	}
	if existing != nil {
		return nil, e.ErrDuplicateRelationship
	}

	if err := s.checkForCycle(ctx, parentID, childID); err != nil {
		return nil, err
	}

	rel := &models.CompanyRelationship{
		ID:              uuid.New(),
		ParentCompanyID: parentID,
		ChildCompanyID:  childID,
		Type:            relType,
		Status:          models.RelationshipActive,
		EstablishedBy:   actor,
	}
	err = s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		return tx.CreateRelationship(ctx, rel)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create relationship: %w", err)
	}

	s.sink.Record(audit.Event{
		Action:     audit.RelationshipMade,
		ActorID:    actor,
		CompanyID:  parentID,
		EntityType: "company_relationship",
		EntityID:   rel.ID,
		Outcome:    "created",
		Reason:     fmt.Sprintf("%s edge to %s", relType, childID),
		OccurredAt: time.Now().UTC(),
	})
	return rel, nil
}

// checkForCycle walks upward from parentID over every incoming parent
// edge. The duplicate check only blocks repeated pairs, so a company can
// hold several parents and the graph is a DAG, not a forest; a search over
// all ancestors is required. Finding childID among them means the new edge
// would close a loop.
func (s *RelationshipService) checkForCycle(ctx context.Context, parentID, childID uuid.UUID) error {
	visited := map[uuid.UUID]bool{parentID: true}
	queue := []uuid.UUID{parentID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		rels, err := s.repo.GetParentRelationships(ctx, current)
		if err != nil {
			return fmt.Errorf("failed to walk parent edges: %w", err)
		}
		for _, rel := range rels {
			if rel.ParentCompanyID == childID {
				return e.ErrCircularDependency
			}
			if !visited[rel.ParentCompanyID] {
				visited[rel.ParentCompanyID] = true
				queue = append(queue, rel.ParentCompanyID)
			}
		}
	}
	return nil
}

// GetRelationshipBetween looks up the edge between two companies regardless
// of direction.
func (s *RelationshipService) GetRelationshipBetween(ctx context.Context, a, b uuid.UUID) (*models.CompanyRelationship, error) {
	rel, err := s.repo.GetRelationshipBetween(ctx, a, b)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get relationship: %w", err)
	}
	return rel, nil
}

// GetCompanyRelationships returns every edge touching the company, split by
// the side the company occupies.
func (s *RelationshipService) GetCompanyRelationships(ctx context.Context, companyID uuid.UUID) (*CompanyRelationships, error) {
	rels, err := s.repo.GetCompanyRelationships(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	result := &CompanyRelationships{}
	for _, rel := range rels {
		if rel.ParentCompanyID == companyID {
			result.AsParent = append(result.AsParent, rel)
		} else {
			result.AsChild = append(result.AsChild, rel)
		}
	}
	return result, nil
}

// UpdateStatus moves an edge through its lifecycle. A terminated edge stays
// on file and keeps blocking its pair; reactivation is a status change, not
// a new edge.
func (s *RelationshipService) UpdateStatus(
	ctx context.Context,
	relationshipID uuid.UUID,
	newStatus models.RelationshipStatus,
	actor uuid.UUID,
) (*models.CompanyRelationship, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: %q", e.ErrInvalidStatus, newStatus)
	}

	rel, err := s.repo.GetRelationship(ctx, relationshipID)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get relationship: %w", err)
	}

	previous := rel.Status
	err = s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		return tx.UpdateRelationshipStatus(ctx, relationshipID, newStatus)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update relationship status: %w", err)
	}
	rel.Status = newStatus

	s.sink.Record(audit.Event{
		Action:     audit.RelationshipEdit,
		ActorID:    actor,
		CompanyID:  rel.ParentCompanyID,
		EntityType: "company_relationship",
		EntityID:   rel.ID,
		Outcome:    string(newStatus),
		Reason:     fmt.Sprintf("status %s -> %s", previous, newStatus),
		OccurredAt: time.Now().UTC(),
	})
	return rel, nil
}
