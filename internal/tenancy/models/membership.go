package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is a user's role code within a company.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// MembershipStatus is the lifecycle state of a membership row.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "active"
	MembershipSuspended MembershipStatus = "suspended"
)

// JoinedVia records how a membership came to exist.
type JoinedVia string

const (
	JoinedViaSignup        JoinedVia = "signup"
	JoinedViaInvitation    JoinedVia = "invitation"
	JoinedViaAccessRequest JoinedVia = "access_request"
)

// UserCompany grants a user a role within a company. For any user, at most
// one non-deleted row has IsPrimaryCompany set; that company is the one
// embedded in the user's active session.
type UserCompany struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID        `gorm:"type:uuid;index:idx_user_company,unique;not null"`
	CompanyID        uuid.UUID        `gorm:"type:uuid;index:idx_user_company,unique;not null"`
	Role             Role             `gorm:"size:20;not null"`
	Status           MembershipStatus `gorm:"size:20;not null"`
	IsPrimaryCompany bool             `gorm:"default:false"`
	JoinedVia        JoinedVia        `gorm:"size:30"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        gorm.DeletedAt `gorm:"index"`
	DeletedBy        *uuid.UUID     `gorm:"type:uuid"`
}
