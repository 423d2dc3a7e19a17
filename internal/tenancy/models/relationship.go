package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RelationshipType classifies a directed edge between two companies.
type RelationshipType string

const (
	RelationshipBranch     RelationshipType = "branch"
	RelationshipSubsidiary RelationshipType = "subsidiary"
	RelationshipPartner    RelationshipType = "partner"
)

// Valid reports whether t is a registered relationship type.
func (t RelationshipType) Valid() bool {
	switch t {
	case RelationshipBranch, RelationshipSubsidiary, RelationshipPartner:
		return true
	}
	return false
}

// RelationshipStatus is the lifecycle state of a relationship edge.
type RelationshipStatus string

const (
	RelationshipActive     RelationshipStatus = "active"
	RelationshipSuspended  RelationshipStatus = "suspended"
	RelationshipTerminated RelationshipStatus = "terminated"
)

// Valid reports whether s is a registered relationship status.
func (s RelationshipStatus) Valid() bool {
	switch s {
	case RelationshipActive, RelationshipSuspended, RelationshipTerminated:
		return true
	}
	return false
}

// CompanyRelationship is a directed parent→child edge between two companies.
// Invariants (enforced by the graph service, not the schema):
//   - ParentCompanyID != ChildCompanyID
//   - at most one edge per unordered company pair, regardless of direction
//   - the parent→child edge set stays acyclic
//
// Edges are never physically deleted; terminated edges stay on file for
// audit and keep blocking their pair.
type CompanyRelationship struct {
	ID              uuid.UUID          `gorm:"type:uuid;primaryKey"`
	ParentCompanyID uuid.UUID          `gorm:"type:uuid;index;not null"`
	ChildCompanyID  uuid.UUID          `gorm:"type:uuid;index;not null"`
	Type            RelationshipType   `gorm:"size:20;not null"`
	Status          RelationshipStatus `gorm:"size:20;not null"`
	// EstablishedBy is the user who created the edge.
	EstablishedBy uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
	DeletedBy     *uuid.UUID     `gorm:"type:uuid"`
}
