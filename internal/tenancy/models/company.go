// Package models defines the core domain models for the tenancy core:
// companies, the directed relationships linking them, user memberships, and
// the access-request workflow records. The structs carry GORM tags and are
// migrated directly by the db package.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company is a tenant: an isolated customer organization. All resource
// access is scoped to exactly one company at a time.
type Company struct {
	// ID is the unique identifier for the company.
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`
	// LegalName is the registered legal name, used by email-domain
	// verification during signup and access requests.
	LegalName string `gorm:"size:200;not null"`
	// BusinessNumber is the official business identifier (e.g. ABN),
	// unique when present.
	BusinessNumber *string `gorm:"size:32;uniqueIndex"`
	// Active marks whether the tenant is operational.
	Active    bool `gorm:"default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
	// Companies are tombstoned, never physically deleted.
	DeletedAt gorm.DeletedAt `gorm:"index"`
	DeletedBy *uuid.UUID     `gorm:"type:uuid"`
}

// User is the minimal identity row this core needs: the switch service
// embeds the email in session claims. Authentication itself lives outside
// this module.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email     string    `gorm:"size:254;uniqueIndex;not null"`
	Name      string    `gorm:"size:120"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}
