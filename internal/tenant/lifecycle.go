package tenant

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-tenant/internal/domain"
	"github.com/smallbiznis/valora-tenant/internal/registry"
	"github.com/smallbiznis/valora-tenant/internal/repository"
)

// Lifecycle orchestrates the tenant state machine across the local account
// and profile stores and the remote tenant registry.
//
// Verification transitions are terminal: unverified → verified (accept) or
// unverified → rejected (reject); nothing leaves either terminal state.
// Domain assignment is a multi-step, partially non-transactional protocol;
// the consistency decisions are documented per step below.
type Lifecycle struct {
	accounts repository.TenantRepository
	profiles repository.ProfileRepository
	assigner repository.DomainAssigner
	registry registry.Client
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewLifecycle wires dependencies.
func NewLifecycle(accounts repository.TenantRepository, profiles repository.ProfileRepository, assigner repository.DomainAssigner, reg registry.Client, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		accounts: accounts,
		profiles: profiles,
		assigner: assigner,
		registry: reg,
		logger:   logger,
		tracer:   otel.Tracer("github.com/smallbiznis/valora-tenant/internal/tenant"),
	}
}

// VerifyTenant applies the one-shot verification decision for an account.
//
// On accept the account flag and the profile mirror flag are written as two
// independent, non-transactional updates: if the profile write fails after
// the account write succeeded, the account stays verified and the mirror is
// logged as divergent rather than rolled back. On reject only the account is
// touched. A guarded account update matching zero rows reports
// domain.ErrUpdateConflict (lost race with a concurrent writer).
func (s *Lifecycle) VerifyTenant(ctx context.Context, email string, accept bool) (domain.TenantAccount, error) {
	ctx, span := s.startSpan(ctx, "Lifecycle.VerifyTenant")
	defer span.End()

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		return domain.TenantAccount{}, err
	}
	if !account.IsActive {
		return domain.TenantAccount{}, domain.ErrTenantNotActive
	}
	if account.IsVerified {
		return domain.TenantAccount{}, domain.ErrTenantAlreadyVerified
	}
	if account.IsRejected {
		return domain.TenantAccount{}, domain.ErrTenantAlreadyRejected
	}

	if accept {
		modified, err := s.accounts.SetVerified(ctx, email)
		if err != nil {
			span.RecordError(err)
			return domain.TenantAccount{}, fmt.Errorf("verify tenant: %w", err)
		}
		if modified == 0 {
			return domain.TenantAccount{}, domain.ErrUpdateConflict
		}

		if _, err := s.profiles.SetVerify(ctx, email); err != nil {
			// Account flag is already committed. The profile mirror stays
			// behind until a repair pass or a re-read reconciles it.
			span.RecordError(err)
			s.logger.Error("profile verify mirror diverged",
				zap.String("email", email),
				zap.Error(err),
			)
		}
	} else {
		modified, err := s.accounts.SetRejected(ctx, email)
		if err != nil {
			span.RecordError(err)
			return domain.TenantAccount{}, fmt.Errorf("reject tenant: %w", err)
		}
		if modified == 0 {
			return domain.TenantAccount{}, domain.ErrUpdateConflict
		}
	}

	refreshed, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		return domain.TenantAccount{}, fmt.Errorf("reload tenant: %w", err)
	}

	s.logger.Info("tenant verification decision applied",
		zap.String("email", email),
		zap.Bool("accepted", accept),
	)
	return refreshed, nil
}

// SetStage writes the opaque onboarding stage marker on the profile. Stage
// values are understood by callers; no validation here.
func (s *Lifecycle) SetStage(ctx context.Context, email, stage string) (domain.TenantProfile, error) {
	ctx, span := s.startSpan(ctx, "Lifecycle.SetStage")
	defer span.End()

	if _, err := s.profiles.GetByEmail(ctx, email); err != nil {
		span.RecordError(err)
		return domain.TenantProfile{}, err
	}

	modified, err := s.profiles.SetStage(ctx, email, stage)
	if err != nil {
		span.RecordError(err)
		return domain.TenantProfile{}, fmt.Errorf("set stage: %w", err)
	}
	if modified == 0 {
		return domain.TenantProfile{}, domain.ErrUpdateConflict
	}

	refreshed, err := s.profiles.GetByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		return domain.TenantProfile{}, fmt.Errorf("reload profile: %w", err)
	}
	return refreshed, nil
}

// SetDomain assigns a domain to a verified tenant and provisions it in the
// remote registry. Precondition order is fixed: account missing, not
// active, not verified, profile missing, then a different domain already
// owned by the account. Then:
//
//  1. local uniqueness check against other accounts
//  2. remote conflict check; a remote tenant already at (email, domain) is
//     treated as provisioned, so a retry after a past partial failure skips
//     straight to repair instead of failing with a conflict
//  3. account+profile domain written in one transaction (the local pair can
//     not diverge)
//  4. re-read both rows
//  5. ensure the remote tenant and its profile exist; AlreadyExists from
//     the remote is treated as success
//
// Remote failures after step 3 leave local state committed with no remote
// mirror; the operation is retryable and a retry completes the remote side.
func (s *Lifecycle) SetDomain(ctx context.Context, email, domainName string) (domain.TenantView, error) {
	ctx, span := s.startSpan(ctx, "Lifecycle.SetDomain")
	defer span.End()

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		return domain.TenantView{}, err
	}
	if !account.IsActive {
		return domain.TenantView{}, domain.ErrTenantNotActive
	}
	if !account.IsVerified {
		return domain.TenantView{}, domain.ErrTenantNotVerified
	}
	if _, err := s.profiles.GetByEmail(ctx, email); err != nil {
		span.RecordError(err)
		return domain.TenantView{}, err
	}
	if account.Domain != "" && account.Domain != domainName {
		return domain.TenantView{}, domain.ErrDomainAlreadyAssigned
	}

	if owner, err := s.accounts.GetByDomain(ctx, domainName); err == nil {
		if owner.Email != email {
			return domain.TenantView{}, domain.ErrDomainTaken
		}
	} else if !errors.Is(err, domain.ErrTenantNotFound) {
		span.RecordError(err)
		return domain.TenantView{}, fmt.Errorf("check local domain: %w", err)
	}

	remoteProvisioned := false
	remote, err := s.registry.FindTenantByDomain(ctx, domainName)
	switch {
	case err == nil:
		if remote.Email != email {
			return domain.TenantView{}, domain.ErrDomainTaken
		}
		remoteProvisioned = true
	case errors.Is(err, registry.ErrNotFound):
		// Domain free on the remote side.
	default:
		span.RecordError(err)
		return domain.TenantView{}, fmt.Errorf("check remote domain: %w", err)
	}

	accountModified, profileModified, err := s.assigner.AssignDomain(ctx, email, domainName)
	if err != nil {
		span.RecordError(err)
		return domain.TenantView{}, fmt.Errorf("assign domain: %w", err)
	}
	if accountModified == 0 || profileModified == 0 {
		return domain.TenantView{}, domain.ErrUpdateConflict
	}

	refreshedAccount, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		return domain.TenantView{}, fmt.Errorf("reload tenant: %w", err)
	}
	refreshedProfile, err := s.profiles.GetByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		return domain.TenantView{}, fmt.Errorf("reload profile: %w", err)
	}

	if !remoteProvisioned {
		remote, err = s.ensureRemote(ctx, refreshedAccount, refreshedProfile)
		if err != nil {
			span.RecordError(err)
			s.logger.Error("remote provisioning incomplete after local commit",
				zap.String("email", email),
				zap.String("domain", domainName),
				zap.Error(err),
			)
			return domain.TenantView{}, err
		}
	}

	if err := s.ensureRemoteProfile(ctx, remote, refreshedProfile); err != nil {
		span.RecordError(err)
		s.logger.Error("remote profile provisioning incomplete",
			zap.String("email", email),
			zap.String("domain", domainName),
			zap.Error(err),
		)
		return domain.TenantView{}, err
	}

	s.logger.Info("tenant domain assigned",
		zap.String("email", email),
		zap.String("domain", domainName),
	)
	return domain.TenantView{Account: refreshedAccount, Profile: refreshedProfile}, nil
}

// List returns joined account+profile pairs matching the supplied boolean
// predicates. An empty filter returns every non-deleted pair.
func (s *Lifecycle) List(ctx context.Context, filter domain.TenantFilter) ([]domain.TenantView, error) {
	ctx, span := s.startSpan(ctx, "Lifecycle.List")
	defer span.End()

	views, err := s.accounts.ListWithProfiles(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return views, nil
}

func (s *Lifecycle) ensureRemote(ctx context.Context, account domain.TenantAccount, profile domain.TenantProfile) (*registry.Tenant, error) {
	remote, err := s.registry.CreateTenant(ctx, registry.CreateTenantInput{
		Email:  account.Email,
		Domain: account.Domain,
		Name:   profile.Name,
	})
	if err == nil {
		return remote, nil
	}
	if errors.Is(err, registry.ErrAlreadyExists) {
		// Either a previous attempt got this far, or another tenant won the
		// domain between the conflict check and the create. Only the caller's
		// own record may be picked up.
		existing, err := s.registry.FindTenantByDomain(ctx, account.Domain)
		if err != nil {
			return nil, fmt.Errorf("resolve existing remote tenant: %w", err)
		}
		if existing.Email != account.Email {
			return nil, domain.ErrDomainTaken
		}
		return existing, nil
	}
	return nil, fmt.Errorf("create remote tenant: %w", err)
}

func (s *Lifecycle) ensureRemoteProfile(ctx context.Context, remote *registry.Tenant, profile domain.TenantProfile) error {
	if _, err := s.registry.FindProfileByTenantID(ctx, remote.Domain, remote.ID); err == nil {
		return nil
	} else if !errors.Is(err, registry.ErrNotFound) {
		return fmt.Errorf("check remote profile: %w", err)
	}

	_, err := s.registry.CreateProfile(ctx, registry.CreateProfileInput{
		TenantID:    remote.ID,
		Address:     profile.Address,
		PhoneNumber: profile.Phone,
		ServiceName: profile.CompanyName,
		Logo:        profile.Avatar,
		Description: profile.Description,
	})
	if err != nil && !errors.Is(err, registry.ErrAlreadyExists) {
		return fmt.Errorf("create remote profile: %w", err)
	}
	return nil
}

func (s *Lifecycle) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}
