package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestType records what initiated a company switch request.
type RequestType string

const (
	RequestAccessRequest      RequestType = "access_request"
	RequestInvitationAccepted RequestType = "invitation_accepted"
	RequestRelationshipJoin   RequestType = "relationship_join"
)

// RequestStatus is the workflow state of a switch request. Transitions are
// pending→approved or pending→rejected, exactly once; requests are never
// re-opened.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// CompanySwitchRequest is a user's request to join (and switch to) a
// company. At most one pending request exists per (UserID, ToCompanyID).
type CompanySwitchRequest struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID     `gorm:"type:uuid;index;not null"`
	ToCompanyID   uuid.UUID     `gorm:"type:uuid;index;not null"`
	FromCompanyID *uuid.UUID    `gorm:"type:uuid"`
	RequestType   RequestType   `gorm:"size:30;not null"`
	Status        RequestStatus `gorm:"size:20;index;not null"`
	// Reason is the requester's free-text justification.
	Reason string `gorm:"size:1000"`
	// DomainVerification stores the email-domain verifier's verdict at
	// request time, shown to admins reviewing the queue.
	DomainVerification string         `gorm:"size:300"`
	ApprovedBy         *uuid.UUID     `gorm:"type:uuid"`
	ApprovedAt         *time.Time
	RejectedBy         *uuid.UUID     `gorm:"type:uuid"`
	RejectedAt         *time.Time
	RejectionReason    string         `gorm:"size:1000"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          gorm.DeletedAt `gorm:"index"`
}
