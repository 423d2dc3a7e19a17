package switching

import (
	"context"
	"testing"
	"time"

	"github.com/gartstein/tenancy/internal/tenancy/audit"
	"github.com/gartstein/tenancy/internal/tenancy/auth"
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

const testSecret = "test_secret"

type recordingSink struct {
	events []audit.Event
}

func (s *recordingSink) Record(event audit.Event) {
	s.events = append(s.events, event)
}

func setupService(t *testing.T) (*CompanySwitchService, *db.Repository, *recordingSink) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	repo, err := db.NewWithDB(gdb)
	require.NoError(t, err)

	issuer := auth.NewIssuer(auth.Config{
		Secret:     testSecret,
		Issuer:     "tenancy-test",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	})
	sink := &recordingSink{}
	return NewCompanySwitchService(repo, issuer, sink, zaptest.NewLogger(t)), repo, sink
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

func seedMembership(t *testing.T, repo *db.Repository, userID, companyID uuid.UUID, role models.Role, status models.MembershipStatus, primary bool) *models.UserCompany {
	t.Helper()
	m := &models.UserCompany{
		ID: uuid.New(), UserID: userID, CompanyID: companyID,
		Role: role, Status: status, IsPrimaryCompany: primary,
	}
	require.NoError(t, repo.CreateMembership(context.Background(), m))
	return m
}

func countPrimaries(t *testing.T, repo *db.Repository, userID uuid.UUID) (int, uuid.UUID) {
	t.Helper()
	memberships, err := repo.ListUserMemberships(context.Background(), userID)
	require.NoError(t, err)
	var n int
	var company uuid.UUID
	for _, m := range memberships {
		if m.IsPrimaryCompany {
			n++
			company = m.CompanyID
		}
	}
	return n, company
}

func TestSwitchCompanyNotAMember(t *testing.T) {
	svc, repo, _ := setupService(t)
	user := seedUser(t, repo, "alice@acme.com")
	company := seedCompany(t, repo, "Acme Pty Ltd")

	result, err := svc.SwitchCompany(context.Background(), user, company)
	assert.ErrorIs(t, err, e.ErrNotAMember)
	assert.Nil(t, result, "no tokens issued on failure")
}

func TestSwitchCompanyMembershipNotActive(t *testing.T) {
	svc, repo, _ := setupService(t)
	user := seedUser(t, repo, "alice@acme.com")
	company := seedCompany(t, repo, "Acme Pty Ltd")
	seedMembership(t, repo, user, company, models.RoleMember, models.MembershipSuspended, false)

	_, err := svc.SwitchCompany(context.Background(), user, company)
	assert.ErrorIs(t, err, e.ErrMembershipNotActive)
}

func TestSwitchCompanyFlipsPrimaryAndMintsTokens(t *testing.T) {
	svc, repo, sink := setupService(t)
	ctx := context.Background()

	user := seedUser(t, repo, "alice@acme.com")
	home := seedCompany(t, repo, "Home Pty Ltd")
	target := seedCompany(t, repo, "Target Pty Ltd")
	seedMembership(t, repo, user, home, models.RoleMember, models.MembershipActive, true)
	seedMembership(t, repo, user, target, models.RoleAdmin, models.MembershipActive, false)

	result, err := svc.SwitchCompany(ctx, user, target)
	require.NoError(t, err)
	require.NotNil(t, result.Company)
	assert.Equal(t, target, result.Company.ID)

	n, primary := countPrimaries(t, repo, user)
	assert.Equal(t, 1, n, "exactly one primary membership after switch")
	assert.Equal(t, target, primary)

	claims, err := auth.ParseAndVerify(result.AccessToken, testSecret)
	require.NoError(t, err)
	assert.Equal(t, user.String(), claims["sub"])
	assert.Equal(t, "alice@acme.com", claims["email"])
	assert.Equal(t, string(models.RoleAdmin), claims["role"])
	assert.Equal(t, target.String(), claims["company_id"])
	assert.Equal(t, string(auth.AccessToken), claims["typ"])

	refreshClaims, err := auth.ParseAndVerify(result.RefreshToken, testSecret)
	require.NoError(t, err)
	assert.Equal(t, string(auth.RefreshToken), refreshClaims["typ"])

	require.Len(t, sink.events, 1)
	assert.Equal(t, audit.CompanySwitched, sink.events[0].Action)
}

func TestSwitchCompanyIdempotent(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()

	user := seedUser(t, repo, "bob@acme.com")
	company := seedCompany(t, repo, "Acme Pty Ltd")
	seedMembership(t, repo, user, company, models.RoleMember, models.MembershipActive, true)

	result, err := svc.SwitchCompany(ctx, user, company)
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)

	n, primary := countPrimaries(t, repo, user)
	assert.Equal(t, 1, n)
	assert.Equal(t, company, primary)
}

func TestSwitchSequenceKeepsSinglePrimary(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()

	user := seedUser(t, repo, "carol@acme.com")
	companies := make([]uuid.UUID, 4)
	for i := range companies {
		companies[i] = seedCompany(t, repo, "Company Pty Ltd")
		seedMembership(t, repo, user, companies[i], models.RoleMember, models.MembershipActive, i == 0)
	}

	sequence := []int{1, 3, 0, 2, 2, 1}
	for _, idx := range sequence {
		_, err := svc.SwitchCompany(ctx, user, companies[idx])
		require.NoError(t, err)

		n, primary := countPrimaries(t, repo, user)
		require.Equal(t, 1, n, "invariant: exactly one primary at all times")
		require.Equal(t, companies[idx], primary)
	}
}
