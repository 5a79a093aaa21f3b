package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-tenant/internal/bootstrap"
	"github.com/smallbiznis/valora-tenant/internal/config"
	httptransport "github.com/smallbiznis/valora-tenant/internal/http"
	"github.com/smallbiznis/valora-tenant/internal/http/handler"
	"github.com/smallbiznis/valora-tenant/internal/http/middleware"
	"github.com/smallbiznis/valora-tenant/internal/mail"
	"github.com/smallbiznis/valora-tenant/internal/otp"
	"github.com/smallbiznis/valora-tenant/internal/registry"
	"github.com/smallbiznis/valora-tenant/internal/repository"
	"github.com/smallbiznis/valora-tenant/internal/server"
	"github.com/smallbiznis/valora-tenant/internal/signup"
	"github.com/smallbiznis/valora-tenant/internal/telemetry"
	"github.com/smallbiznis/valora-tenant/internal/tenant"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newTenantRepository,
			newProfileRepository,
			newDomainAssigner,
			newRedisClient,
			newOTPStore,
			newRegistryClient,
			newMailer,
			newRateLimiter,
			newLifecycle,
			newSignupService,
			newTenantHandler,
			httptransport.NewRouter,
			newHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureAdmin, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newTenantRepository(pool *pgxpool.Pool) repository.TenantRepository {
	return repository.NewPostgresTenantRepo(pool)
}

func newProfileRepository(pool *pgxpool.Pool) repository.ProfileRepository {
	return repository.NewPostgresProfileRepo(pool)
}

func newDomainAssigner(pool *pgxpool.Pool) repository.DomainAssigner {
	return repository.NewPostgresDomainAssigner(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newOTPStore(client redis.UniversalClient) otp.Store {
	return otp.NewRedisStore(client)
}

func newRegistryClient(cfg config.Config, logger *zap.Logger) registry.Client {
	return registry.NewHTTPClient(cfg.RegistryURL, cfg.RegistryTimeout, logger)
}

func newMailer(cfg config.Config, logger *zap.Logger) mail.Mailer {
	if cfg.MailgunDomain == "" || cfg.MailgunAPIKey == "" {
		logger.Warn("mailgun not configured, activation codes are logged instead of mailed")
		return mail.NewNopMailer(logger)
	}
	return mail.NewMailgunMailer(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailSender, logger)
}

func newRateLimiter(cfg config.Config) *middleware.RateLimiter {
	return middleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newLifecycle(accounts repository.TenantRepository, profiles repository.ProfileRepository, assigner repository.DomainAssigner, reg registry.Client, logger *zap.Logger) *tenant.Lifecycle {
	return tenant.NewLifecycle(accounts, profiles, assigner, reg, logger)
}

func newSignupService(accounts repository.TenantRepository, profiles repository.ProfileRepository, codes otp.Store, mailer mail.Mailer, node *snowflake.Node, cfg config.Config, logger *zap.Logger) *signup.Service {
	return signup.NewService(accounts, profiles, codes, mailer, node, signup.Options{
		OTPLength: cfg.OTPLength,
		OTPTTL:    cfg.OTPTTL,
	}, logger)
}

func newTenantHandler(signupSvc *signup.Service, lifecycle *tenant.Lifecycle, logger *zap.Logger) *handler.TenantHandler {
	return handler.NewTenantHandler(signupSvc, lifecycle, logger)
}

func newHTTPServer(router *gin.Engine, cfg config.Config) *server.HTTPServer {
	return server.NewHTTPServer(router, cfg.ShutdownTimeout)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
