package tenant_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-tenant/internal/domain"
	"github.com/smallbiznis/valora-tenant/internal/registry"
	"github.com/smallbiznis/valora-tenant/internal/tenant"
)

func newFixture() (*tenant.Lifecycle, *memTenantRepo, *memProfileRepo, *fakeRegistry) {
	profiles := &memProfileRepo{profiles: map[string]*domain.TenantProfile{}}
	accounts := &memTenantRepo{accounts: map[string]*domain.TenantAccount{}, joined: profiles}
	assigner := &memAssigner{accounts: accounts, profiles: profiles}
	reg := &fakeRegistry{
		tenants:  map[string]*registry.Tenant{},
		profiles: map[string]*registry.Profile{},
	}
	lc := tenant.NewLifecycle(accounts, profiles, assigner, reg, zap.NewNop())
	return lc, accounts, profiles, reg
}

func seedTenant(accounts *memTenantRepo, profiles *memProfileRepo, email string, active, verified bool) {
	accounts.accounts[email] = &domain.TenantAccount{
		ID:         1,
		Email:      email,
		Username:   "acme",
		Role:       domain.RoleTenant,
		IsActive:   active,
		IsVerified: verified,
		ProfileID:  "100",
	}
	profiles.profiles[email] = &domain.TenantProfile{
		ID:       100,
		Email:    email,
		Username: "acme",
		Phone:    "555-0101",
		Address:  "1 Main St",
		Name:     "Acme Inc",
	}
}

func TestVerifyTenantAccept(t *testing.T) {
	ctx := context.Background()
	lc, accounts, profiles, _ := newFixture()
	seedTenant(accounts, profiles, "a@x.com", true, false)

	account, err := lc.VerifyTenant(ctx, "a@x.com", true)
	require.NoError(t, err)
	require.True(t, account.IsVerified)
	require.False(t, account.IsRejected)
	require.True(t, profiles.profiles["a@x.com"].IsVerify)

	// One-shot transition: a second decision must fail without writes.
	_, err = lc.VerifyTenant(ctx, "a@x.com", true)
	require.ErrorIs(t, err, domain.ErrTenantAlreadyVerified)
	_, err = lc.VerifyTenant(ctx, "a@x.com", false)
	require.ErrorIs(t, err, domain.ErrTenantAlreadyVerified)
	require.False(t, accounts.accounts["a@x.com"].IsRejected)
}

func TestVerifyTenantReject(t *testing.T) {
	ctx := context.Background()
	lc, accounts, profiles, _ := newFixture()
	seedTenant(accounts, profiles, "a@x.com", true, false)

	account, err := lc.VerifyTenant(ctx, "a@x.com", false)
	require.NoError(t, err)
	require.True(t, account.IsRejected)
	require.False(t, account.IsVerified)
	// Reject touches the account only.
	require.False(t, profiles.profiles["a@x.com"].IsVerify)

	_, err = lc.VerifyTenant(ctx, "a@x.com", true)
	require.ErrorIs(t, err, domain.ErrTenantAlreadyRejected)
	require.False(t, accounts.accounts["a@x.com"].IsVerified)
}

func TestVerifyTenantPreconditions(t *testing.T) {
	ctx := context.Background()
	lc, accounts, profiles, _ := newFixture()

	_, err := lc.VerifyTenant(ctx, "missing@x.com", true)
	require.ErrorIs(t, err, domain.ErrTenantNotFound)

	seedTenant(accounts, profiles, "inactive@x.com", false, false)
	_, err = lc.VerifyTenant(ctx, "inactive@x.com", true)
	require.ErrorIs(t, err, domain.ErrTenantNotActive)
}

func TestVerifyTenantLostRace(t *testing.T) {
	ctx := context.Background()
	lc, accounts, profiles, _ := newFixture()
	seedTenant(accounts, profiles, "a@x.com", true, false)
	// A concurrent writer flips the flag between the guarded read and the
	// guarded write; the update then matches zero rows.
	accounts.beforeVerify = func() {
		accounts.accounts["a@x.com"].IsVerified = true
	}

	_, err := lc.VerifyTenant(ctx, "a@x.com", true)
	require.ErrorIs(t, err, domain.ErrUpdateConflict)
}

func TestVerifyTenantProfileMirrorFailure(t *testing.T) {
	ctx := context.Background()
	lc, accounts, profiles, _ := newFixture()
	seedTenant(accounts, profiles, "a@x.com", true, false)
	profiles.verifyErr = errors.New("profile store down")

	// Documented partial-failure contract: the account flag lands, the
	// profile mirror stays behind, and the call still succeeds.
	account, err := lc.VerifyTenant(ctx, "a@x.com", true)
	require.NoError(t, err)
	require.True(t, account.IsVerified)
	require.False(t, profiles.profiles["a@x.com"].IsVerify)
}

func TestSetStage(t *testing.T) {
	ctx := context.Background()
	lc, accounts, profiles, _ := newFixture()
	seedTenant(accounts, profiles, "a@x.com", true, false)

	profile, err := lc.SetStage(ctx, "a@x.com", "onboarding:billing")
	require.NoError(t, err)
	require.Equal(t, "onboarding:billing", profile.Stage)

	_, err = lc.SetStage(ctx, "missing@x.com", "any")
	require.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestSetDomainHappyPath(t *testing.T) {
	ctx := context.Background()
	lc, accounts, profiles, reg := newFixture()
	seedTenant(accounts, profiles, "a@x.com", true, true)

	view, err := lc.SetDomain(ctx, "a@x.com", "acme.io")
	require.NoError(t, err)
	require.Equal(t, "acme.io", view.Account.Domain)
	require.Equal(t, "acme.io", view.Profile.Domain)
	require.Equal(t, "a@x.com", view.Account.Email)
	require.Equal(t, "Acme Inc", view.Profile.Name)

	remote := reg.tenants["acme.io"]
	require.NotNil(t, remote)
	require.Equal(t, "a@x.com", remote.Email)
	require.NotNil(t, reg.profiles[remote.ID])
	require.Equal(t, "555-0101", reg.profiles[remote.ID].PhoneNumber)
}

func TestSetDomainPreconditionOrder(t *testing.T) {
	ctx := context.Background()
	lc, accounts, profiles, _ := newFixture()

	_, err := lc.SetDomain(ctx, "missing@x.com", "acme.io")
	require.ErrorIs(t, err, domain.ErrTenantNotFound)

	seedTenant(accounts, profiles, "a@x.com", false, false)
	_, err = lc.SetDomain(ctx, "a@x.com", "acme.io")
	require.ErrorIs(t, err, domain.ErrTenantNotActive)

	accounts.accounts["a@x.com"].IsActive = true
	_, err = lc.SetDomain(ctx, "a@x.com", "acme.io")
	require.ErrorIs(t, err, domain.ErrTenantNotVerified)

	accounts.accounts["a@x.com"].IsVerified = true
	delete(profiles.profiles, "a@x.com")
	_, err = lc.SetDomain(ctx, "a@x.com", "acme.io")
	require.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestSetDomainRemoteConflict(t *testing.T) {
	ctx := context.Background()
	lc, accounts, profiles, reg := newFixture()
	seedTenant(accounts, profiles, "a@x.com", true, true)
	reg.tenants["acme.io"] = &registry.Tenant{ID: "rt-9", Email: "other@y.com", Domain: "acme.io"}

	_, err := lc.SetDomain(ctx, "a@x.com", "acme.io")
	require.ErrorIs(t, err, domain.ErrDomainTaken)
	// Conflict detected before any local write.
	require.Empty(t, accounts.accounts["a@x.com"].Domain)
	require.Empty(t, profiles.profiles["a@x.com"].Domain)
}

func TestSetDomainLocalConflict(t *testing.T) {
	ctx := context.Background()
	lc, accounts, profiles, _ := newFixture()
	seedTenant(accounts, profiles, "a@x.com", true, true)
	accounts.accounts["b@y.com"] = &domain.TenantAccount{
		ID: 2, Email: "b@y.com", Domain: "acme.io", IsActive: true, IsVerified: true,
	}

	_, err := lc.SetDomain(ctx, "a@x.com", "acme.io")
	require.ErrorIs(t, err, domain.ErrDomainTaken)
	require.Empty(t, accounts.accounts["a@x.com"].Domain)
}

func TestSetDomainRetryRepairsRemote(t *testing.T) {
	ctx := context.Background()
	lc, accounts, profiles, reg := newFixture()
	seedTenant(accounts, profiles, "a@x.com", true, true)
	reg.createTenantErr = fmt.Errorf("%w: boom", registry.ErrUnavailable)

	// First attempt: local pair commits, remote provisioning fails.
	_, err := lc.SetDomain(ctx, "a@x.com", "acme.io")
	require.Error(t, err)
	require.Equal(t, "acme.io", accounts.accounts["a@x.com"].Domain)
	require.Equal(t, "acme.io", profiles.profiles["a@x.com"].Domain)
	require.Nil(t, reg.tenants["acme.io"])

	// Retry with the registry healthy again: the guarded local updates match
	// the same rows and the remote mirror is created.
	reg.createTenantErr = nil
	view, err := lc.SetDomain(ctx, "a@x.com", "acme.io")
	require.NoError(t, err)
	require.Equal(t, "acme.io", view.Account.Domain)
	require.NotNil(t, reg.tenants["acme.io"])
}

func TestSetDomainIdempotentWhenRemoteExists(t *testing.T) {
	ctx := context.Background()
	lc, accounts, profiles, reg := newFixture()
	seedTenant(accounts, profiles, "a@x.com", true, true)
	reg.tenants["acme.io"] = &registry.Tenant{ID: "rt-1", Email: "a@x.com", Domain: "acme.io"}

	view, err := lc.SetDomain(ctx, "a@x.com", "acme.io")
	require.NoError(t, err)
	require.Equal(t, "acme.io", view.Account.Domain)
	// Existing remote tenant for the same email is reused, not re-created.
	require.Zero(t, reg.createTenantCalls)
	require.NotNil(t, reg.profiles["rt-1"])
}

func TestSetDomainRemoteCreateRace(t *testing.T) {
	ctx := context.Background()
	lc, accounts, profiles, reg := newFixture()
	seedTenant(accounts, profiles, "a@x.com", true, true)
	// Another tenant grabs the domain remotely between the conflict check and
	// the create: the registry reports AlreadyExists and the domain now
	// resolves to a foreign record.
	reg.createConflict = &registry.Tenant{ID: "rt-other", Email: "other@y.com", Domain: "acme.io"}

	_, err := lc.SetDomain(ctx, "a@x.com", "acme.io")
	require.ErrorIs(t, err, domain.ErrDomainTaken)
	// The foreign record must not receive this tenant's profile.
	require.Empty(t, reg.profiles)
}

func TestSetDomainReassignmentRejected(t *testing.T) {
	ctx := context.Background()
	lc, accounts, profiles, reg := newFixture()
	seedTenant(accounts, profiles, "a@x.com", true, true)

	_, err := lc.SetDomain(ctx, "a@x.com", "acme.io")
	require.NoError(t, err)

	// Moving to a different domain is a deliberate conflict, not a race.
	_, err = lc.SetDomain(ctx, "a@x.com", "elsewhere.io")
	require.ErrorIs(t, err, domain.ErrDomainAlreadyAssigned)
	require.Equal(t, "acme.io", accounts.accounts["a@x.com"].Domain)

	// Re-sending the owned domain stays allowed for retries.
	view, err := lc.SetDomain(ctx, "a@x.com", "acme.io")
	require.NoError(t, err)
	require.Equal(t, "acme.io", view.Account.Domain)
	require.NotNil(t, reg.tenants["acme.io"])
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	lc, accounts, profiles, _ := newFixture()
	seedTenant(accounts, profiles, "a@x.com", true, true)
	seedTenant(accounts, profiles, "b@y.com", false, false)

	all, err := lc.List(ctx, domain.TenantFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	active := true
	onlyActive, err := lc.List(ctx, domain.TenantFilter{IsActive: &active})
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	require.Equal(t, "a@x.com", onlyActive[0].Account.Email)
	require.Equal(t, "1 Main St", onlyActive[0].Profile.Address)
}

// --- in-memory fakes -------------------------------------------------------

type memTenantRepo struct {
	accounts     map[string]*domain.TenantAccount
	joined       *memProfileRepo
	beforeVerify func()
}

func (m *memTenantRepo) GetByEmail(ctx context.Context, email string) (domain.TenantAccount, error) {
	if a, ok := m.accounts[email]; ok && !a.IsDeleted {
		return *a, nil
	}
	return domain.TenantAccount{}, domain.ErrTenantNotFound
}

func (m *memTenantRepo) GetByDomain(ctx context.Context, domainName string) (domain.TenantAccount, error) {
	for _, a := range m.accounts {
		if a.Domain == domainName && !a.IsDeleted {
			return *a, nil
		}
	}
	return domain.TenantAccount{}, domain.ErrTenantNotFound
}

func (m *memTenantRepo) Create(ctx context.Context, account domain.TenantAccount) (domain.TenantAccount, error) {
	m.accounts[account.Email] = &account
	return account, nil
}

func (m *memTenantRepo) SetActive(ctx context.Context, email string) (int64, error) {
	a, ok := m.accounts[email]
	if !ok || a.IsActive || a.IsDeleted {
		return 0, nil
	}
	a.IsActive = true
	return 1, nil
}

func (m *memTenantRepo) SetVerified(ctx context.Context, email string) (int64, error) {
	if m.beforeVerify != nil {
		m.beforeVerify()
	}
	a, ok := m.accounts[email]
	if !ok || !a.IsActive || a.IsVerified || a.IsRejected || a.IsDeleted {
		return 0, nil
	}
	a.IsVerified = true
	return 1, nil
}

func (m *memTenantRepo) SetRejected(ctx context.Context, email string) (int64, error) {
	a, ok := m.accounts[email]
	if !ok || !a.IsActive || a.IsVerified || a.IsRejected || a.IsDeleted {
		return 0, nil
	}
	a.IsRejected = true
	return 1, nil
}

func (m *memTenantRepo) ListWithProfiles(ctx context.Context, filter domain.TenantFilter) ([]domain.TenantView, error) {
	var views []domain.TenantView
	for email, a := range m.accounts {
		if a.IsDeleted {
			continue
		}
		if filter.IsActive != nil && a.IsActive != *filter.IsActive {
			continue
		}
		if filter.IsVerified != nil && a.IsVerified != *filter.IsVerified {
			continue
		}
		if filter.IsRejected != nil && a.IsRejected != *filter.IsRejected {
			continue
		}
		p, ok := m.joined.profiles[email]
		if !ok {
			continue
		}
		views = append(views, domain.TenantView{Account: *a, Profile: *p})
	}
	return views, nil
}

type memProfileRepo struct {
	profiles  map[string]*domain.TenantProfile
	verifyErr error
}

func (m *memProfileRepo) GetByEmail(ctx context.Context, email string) (domain.TenantProfile, error) {
	if p, ok := m.profiles[email]; ok {
		return *p, nil
	}
	return domain.TenantProfile{}, domain.ErrProfileNotFound
}

func (m *memProfileRepo) Create(ctx context.Context, profile domain.TenantProfile) (domain.TenantProfile, error) {
	m.profiles[profile.Email] = &profile
	return profile, nil
}

func (m *memProfileRepo) SetVerify(ctx context.Context, email string) (int64, error) {
	if m.verifyErr != nil {
		return 0, m.verifyErr
	}
	p, ok := m.profiles[email]
	if !ok || p.IsVerify {
		return 0, nil
	}
	p.IsVerify = true
	return 1, nil
}

func (m *memProfileRepo) SetStage(ctx context.Context, email, stage string) (int64, error) {
	p, ok := m.profiles[email]
	if !ok {
		return 0, nil
	}
	p.Stage = stage
	return 1, nil
}

type memAssigner struct {
	accounts *memTenantRepo
	profiles *memProfileRepo
}

func (m *memAssigner) AssignDomain(ctx context.Context, email, domainName string) (int64, int64, error) {
	a, ok := m.accounts.accounts[email]
	if !ok || !a.IsActive || !a.IsVerified || a.IsDeleted || (a.Domain != "" && a.Domain != domainName) {
		return 0, 0, nil
	}
	p, ok := m.profiles.profiles[email]
	if !ok {
		return 0, 0, nil
	}
	a.Domain = domainName
	p.Domain = domainName
	return 1, 1, nil
}

type fakeRegistry struct {
	tenants           map[string]*registry.Tenant
	profiles          map[string]*registry.Profile
	createTenantErr   error
	createConflict    *registry.Tenant
	createTenantCalls int
	nextID            int
}

func (f *fakeRegistry) FindTenantByDomain(ctx context.Context, domainName string) (*registry.Tenant, error) {
	if t, ok := f.tenants[domainName]; ok {
		return t, nil
	}
	return nil, registry.ErrNotFound
}

func (f *fakeRegistry) CreateTenant(ctx context.Context, in registry.CreateTenantInput) (*registry.Tenant, error) {
	f.createTenantCalls++
	if f.createTenantErr != nil {
		return nil, f.createTenantErr
	}
	if f.createConflict != nil {
		f.tenants[f.createConflict.Domain] = f.createConflict
		return nil, registry.ErrAlreadyExists
	}
	if _, ok := f.tenants[in.Domain]; ok {
		return nil, registry.ErrAlreadyExists
	}
	f.nextID++
	t := &registry.Tenant{
		ID:     fmt.Sprintf("rt-%d", f.nextID),
		Email:  in.Email,
		Domain: in.Domain,
		Name:   in.Name,
	}
	f.tenants[in.Domain] = t
	return t, nil
}

func (f *fakeRegistry) FindProfileByTenantID(ctx context.Context, domainName, tenantID string) (*registry.Profile, error) {
	if p, ok := f.profiles[tenantID]; ok {
		return p, nil
	}
	return nil, registry.ErrNotFound
}

func (f *fakeRegistry) CreateProfile(ctx context.Context, in registry.CreateProfileInput) (*registry.Profile, error) {
	p := &registry.Profile{
		ID:          "rp-" + in.TenantID,
		TenantID:    in.TenantID,
		Address:     in.Address,
		PhoneNumber: in.PhoneNumber,
		ServiceName: in.ServiceName,
		Logo:        in.Logo,
		Description: in.Description,
	}
	f.profiles[in.TenantID] = p
	return p, nil
}
