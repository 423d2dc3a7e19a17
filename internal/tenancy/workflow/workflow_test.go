package workflow

import (
	"context"
	"testing"

	"github.com/gartstein/tenancy/internal/tenancy/audit"
	"github.com/gartstein/tenancy/internal/tenancy/db"
	e "github.com/gartstein/tenancy/internal/tenancy/errors"
	"github.com/gartstein/tenancy/internal/tenancy/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type recordingSink struct {
	events []audit.Event
}

func (s *recordingSink) Record(event audit.Event) {
	s.events = append(s.events, event)
}

func setupService(t *testing.T) (*AccessRequestService, *db.Repository, *recordingSink) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	repo, err := db.NewWithDB(gdb)
	require.NoError(t, err)

	sink := &recordingSink{}
	return NewAccessRequestService(repo, sink, zaptest.NewLogger(t)), repo, sink
}

func seedUser(t *testing.T, repo *db.Repository, email string) uuid.UUID {
	t.Helper()
	user := &models.User{ID: uuid.New(), Email: email}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user.ID
}

func seedCompany(t *testing.T, repo *db.Repository, name string) uuid.UUID {
	t.Helper()
	company := &models.Company{ID: uuid.New(), LegalName: name, Active: true}
	require.NoError(t, repo.CreateCompany(context.Background(), company))
	return company.ID
}

func TestCreateRequest(t *testing.T) {
	svc, repo, sink := setupService(t)
	ctx := context.Background()

	user := seedUser(t, repo, "alice@atlassian.com")
	company := seedCompany(t, repo, "Atlassian Pty Ltd")

	req, err := svc.Create(ctx, user, company, "transferred from the Sydney office")
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)
	assert.Equal(t, models.RequestAccessRequest, req.RequestType)
	assert.Nil(t, req.FromCompanyID)
	assert.NotEmpty(t, req.DomainVerification, "verifier verdict stored for the review queue")
	require.Len(t, sink.events, 1)
	assert.Equal(t, audit.RequestSubmitted, sink.events[0].Action)
}

func TestCreateRequestUnknownTargets(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()

	user := seedUser(t, repo, "alice@acme.com")
	company := seedCompany(t, repo, "Acme Pty Ltd")

	_, err := svc.Create(ctx, uuid.New(), company, "")
	assert.ErrorIs(t, err, e.ErrNotFound)

	_, err = svc.Create(ctx, user, uuid.New(), "")
	assert.ErrorIs(t, err, e.ErrNotFound)
}

func TestCreateRequestDuplicatePending(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()

	user := seedUser(t, repo, "bob@acme.com")
	company := seedCompany(t, repo, "Acme Pty Ltd")

	_, err := svc.Create(ctx, user, company, "first")
	require.NoError(t, err)

	_, err = svc.Create(ctx, user, company, "second")
	assert.ErrorIs(t, err, e.ErrDuplicatePendingRequest)

	// A different company is a different pair; no conflict.
	other := seedCompany(t, repo, "Globex Corporation")
	_, err = svc.Create(ctx, user, other, "third")
	assert.NoError(t, err)
}

func TestCreateRequestRecordsCurrentPrimary(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()

	user := seedUser(t, repo, "carol@acme.com")
	home := seedCompany(t, repo, "Home Pty Ltd")
	target := seedCompany(t, repo, "Target Pty Ltd")
	require.NoError(t, repo.CreateMembership(ctx, &models.UserCompany{
		ID: uuid.New(), UserID: user, CompanyID: home,
		Role: models.RoleMember, Status: models.MembershipActive, IsPrimaryCompany: true,
	}))

	req, err := svc.Create(ctx, user, target, "")
	require.NoError(t, err)
	require.NotNil(t, req.FromCompanyID)
	assert.Equal(t, home, *req.FromCompanyID)
}

func TestApproveEndToEnd(t *testing.T) {
	svc, repo, sink := setupService(t)
	ctx := context.Background()

	user := seedUser(t, repo, "dave@acme.com")
	company := seedCompany(t, repo, "Acme Pty Ltd")
	approver := uuid.New()

	req, err := svc.Create(ctx, user, company, "")
	require.NoError(t, err)

	membership, err := svc.Approve(ctx, req.ID, approver)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipActive, membership.Status)
	assert.False(t, membership.IsPrimaryCompany)
	assert.Equal(t, models.RoleMember, membership.Role)
	assert.Equal(t, models.JoinedViaAccessRequest, membership.JoinedVia)

	stored, err := repo.GetSwitchRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, stored.Status)
	require.NotNil(t, stored.ApprovedBy)
	assert.Equal(t, approver, *stored.ApprovedBy)
	assert.NotNil(t, stored.ApprovedAt)

	persisted, err := repo.GetMembership(ctx, user, company)
	require.NoError(t, err)
	assert.Equal(t, membership.ID, persisted.ID)

	// Terminal: approving again finds no pending request.
	_, err = svc.Approve(ctx, req.ID, approver)
	assert.ErrorIs(t, err, e.ErrNotFound)

	var actions []audit.Action
	for _, ev := range sink.events {
		actions = append(actions, ev.Action)
	}
	assert.Contains(t, actions, audit.RequestApproved)
}

func TestApproveUnknownRequest(t *testing.T) {
	svc, _, _ := setupService(t)
	_, err := svc.Approve(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, e.ErrNotFound)
}

func TestReject(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()

	user := seedUser(t, repo, "eve@acme.com")
	company := seedCompany(t, repo, "Acme Pty Ltd")
	rejecter := uuid.New()

	req, err := svc.Create(ctx, user, company, "")
	require.NoError(t, err)

	require.NoError(t, svc.Reject(ctx, req.ID, rejecter, "domain did not verify"))

	stored, err := repo.GetSwitchRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, stored.Status)
	assert.Equal(t, "domain did not verify", stored.RejectionReason)

	// No membership came out of a rejection.
	_, err = repo.GetMembership(ctx, user, company)
	assert.ErrorIs(t, err, e.ErrNotFound)

	// Rejected is terminal for both transitions.
	err = svc.Reject(ctx, req.ID, rejecter, "again")
	assert.ErrorIs(t, err, e.ErrNotFound)
	_, err = svc.Approve(ctx, req.ID, rejecter)
	assert.ErrorIs(t, err, e.ErrNotFound)
}

func TestListPendingOldestFirst(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()

	company := seedCompany(t, repo, "Acme Pty Ltd")
	first := seedUser(t, repo, "first@acme.com")
	second := seedUser(t, repo, "second@acme.com")

	reqA, err := svc.Create(ctx, first, company, "")
	require.NoError(t, err)
	reqB, err := svc.Create(ctx, second, company, "")
	require.NoError(t, err)

	pending, err := svc.ListPending(ctx, company)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, reqA.ID, pending[0].ID)
	assert.Equal(t, reqB.ID, pending[1].ID)

	// Decided requests leave the queue.
	require.NoError(t, svc.Reject(ctx, reqA.ID, uuid.New(), "no"))
	pending, err = svc.ListPending(ctx, company)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, reqB.ID, pending[0].ID)
}
