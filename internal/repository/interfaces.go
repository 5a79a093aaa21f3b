package repository

import (
	"context"

	"github.com/smallbiznis/valora-tenant/internal/domain"
)

// TenantRepository exposes persistence for tenant accounts. Update methods
// return the number of rows modified so callers can detect lost races: a
// guarded write that matches zero rows means either the precondition no
// longer held or a concurrent writer got there first.
type TenantRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.TenantAccount, error)
	GetByDomain(ctx context.Context, domainName string) (domain.TenantAccount, error)
	Create(ctx context.Context, account domain.TenantAccount) (domain.TenantAccount, error)
	SetActive(ctx context.Context, email string) (int64, error)
	SetVerified(ctx context.Context, email string) (int64, error)
	SetRejected(ctx context.Context, email string) (int64, error)
	ListWithProfiles(ctx context.Context, filter domain.TenantFilter) ([]domain.TenantView, error)
}

// ProfileRepository exposes persistence for tenant profiles.
type ProfileRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.TenantProfile, error)
	Create(ctx context.Context, profile domain.TenantProfile) (domain.TenantProfile, error)
	SetVerify(ctx context.Context, email string) (int64, error)
	SetStage(ctx context.Context, email, stage string) (int64, error)
}

// DomainAssigner writes the domain onto the account and profile rows for an
// email as a single transaction, so the two collections cannot diverge when
// the second write fails. Returns rows modified per table.
type DomainAssigner interface {
	AssignDomain(ctx context.Context, email, domainName string) (accountModified, profileModified int64, err error)
}
