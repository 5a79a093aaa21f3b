package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-tenant/internal/config"
	"github.com/smallbiznis/valora-tenant/internal/domain"
	"github.com/smallbiznis/valora-tenant/internal/password"
	"github.com/smallbiznis/valora-tenant/internal/repository"
)

// EnsureAdmin creates a default admin account for dev/e2e if missing. The
// admin is seeded active and verified so it can manage tenants immediately.
func EnsureAdmin(lc fx.Lifecycle, cfg config.Config, accounts repository.TenantRepository, profiles repository.ProfileRepository, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureAdmin(ctx, cfg, accounts, profiles, node, logger)
		},
	})
}

func ensureAdmin(ctx context.Context, cfg config.Config, accounts repository.TenantRepository, profiles repository.ProfileRepository, node *snowflake.Node, logger *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" || strings.TrimSpace(cfg.AdminPassword) == "" {
		return fmt.Errorf("admin bootstrap missing required config")
	}

	if _, err := accounts.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrTenantNotFound) {
		return fmt.Errorf("bootstrap lookup admin: %w", err)
	}

	hashed, err := password.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}

	profile, err := profiles.Create(ctx, domain.TenantProfile{
		ID:       node.Generate().Int64(),
		Email:    email,
		Username: "admin",
		Name:     "Admin",
		IsVerify: true,
	})
	if err != nil {
		return fmt.Errorf("bootstrap create admin profile: %w", err)
	}

	created, err := accounts.Create(ctx, domain.TenantAccount{
		ID:           node.Generate().Int64(),
		Email:        email,
		Username:     "admin",
		PasswordHash: hashed,
		Role:         domain.RoleAdmin,
		IsActive:     true,
		IsVerified:   true,
		ProfileID:    strconv.FormatInt(profile.ID, 10),
	})
	if err != nil {
		return fmt.Errorf("bootstrap create admin account: %w", err)
	}

	if logger != nil {
		logger.Info("bootstrap admin account created",
			zap.String("email", created.Email),
			zap.Int64("account_id", created.ID),
		)
	}
	return nil
}
