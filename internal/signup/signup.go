package signup

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-tenant/internal/domain"
	"github.com/smallbiznis/valora-tenant/internal/mail"
	"github.com/smallbiznis/valora-tenant/internal/otp"
	"github.com/smallbiznis/valora-tenant/internal/password"
	"github.com/smallbiznis/valora-tenant/internal/repository"
)

// Options control OTP issuance.
type Options struct {
	OTPLength int
	OTPTTL    time.Duration
}

// Service handles tenant sign-up and OTP activation. Sign-up always creates
// the account+profile pair together. A mid-sequence store failure can leave
// a profile row without its account; a re-registration attempt adopts the
// orphaned profile instead of tripping over its unique email index.
type Service struct {
	accounts repository.TenantRepository
	profiles repository.ProfileRepository
	codes    otp.Store
	mailer   mail.Mailer
	node     *snowflake.Node
	opts     Options
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewService wires dependencies.
func NewService(accounts repository.TenantRepository, profiles repository.ProfileRepository, codes otp.Store, mailer mail.Mailer, node *snowflake.Node, opts Options, logger *zap.Logger) *Service {
	if opts.OTPLength <= 0 {
		opts.OTPLength = 6
	}
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 5 * time.Minute
	}
	return &Service{
		accounts: accounts,
		profiles: profiles,
		codes:    codes,
		mailer:   mailer,
		node:     node,
		opts:     opts,
		logger:   logger,
		tracer:   otel.Tracer("github.com/smallbiznis/valora-tenant/internal/signup"),
	}
}

// Input carries the sign-up request fields.
type Input struct {
	Email          string
	Username       string
	Password       string
	Phone          string
	Name           string
	Gender         string
	Address        string
	Age            int
	CompanyName    string
	CompanyAddress string
	Description    string
}

// SignUp registers a new tenant in the unactivated state and mails an
// activation code. The account stays inactive until Activate succeeds.
func (s *Service) SignUp(ctx context.Context, in Input) (domain.TenantAccount, error) {
	ctx, span := s.tracer.Start(ctx, "Signup.SignUp")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return domain.TenantAccount{}, domain.ErrAlreadyRegistered
	} else if !errors.Is(err, domain.ErrTenantNotFound) {
		span.RecordError(err)
		return domain.TenantAccount{}, fmt.Errorf("check existing tenant: %w", err)
	}

	profile, err := s.profiles.GetByEmail(ctx, email)
	switch {
	case err == nil:
		// Orphan from an earlier attempt that died before the account insert.
		// The account check above already ruled out a live registration.
		s.logger.Warn("adopting orphaned profile from earlier sign-up", zap.String("email", email))
	case errors.Is(err, domain.ErrProfileNotFound):
		profile, err = s.profiles.Create(ctx, domain.TenantProfile{
			ID:             s.node.Generate().Int64(),
			Email:          email,
			Username:       in.Username,
			Phone:          in.Phone,
			Gender:         in.Gender,
			Address:        in.Address,
			Age:            in.Age,
			Name:           in.Name,
			CompanyName:    in.CompanyName,
			CompanyAddress: in.CompanyAddress,
			Description:    in.Description,
		})
		if err != nil {
			span.RecordError(err)
			return domain.TenantAccount{}, fmt.Errorf("create profile: %w", err)
		}
	default:
		span.RecordError(err)
		return domain.TenantAccount{}, fmt.Errorf("check existing profile: %w", err)
	}

	hashed, err := password.Hash(in.Password)
	if err != nil {
		span.RecordError(err)
		return domain.TenantAccount{}, fmt.Errorf("hash password: %w", err)
	}

	account, err := s.accounts.Create(ctx, domain.TenantAccount{
		ID:           s.node.Generate().Int64(),
		Email:        email,
		Username:     in.Username,
		PasswordHash: hashed,
		Role:         domain.RoleTenant,
		ProfileID:    strconv.FormatInt(profile.ID, 10),
	})
	if err != nil {
		span.RecordError(err)
		return domain.TenantAccount{}, fmt.Errorf("create tenant: %w", err)
	}

	code, err := otp.Generate(s.opts.OTPLength)
	if err != nil {
		span.RecordError(err)
		return domain.TenantAccount{}, fmt.Errorf("issue otp: %w", err)
	}
	if err := s.codes.Save(ctx, email, code, s.opts.OTPTTL); err != nil {
		span.RecordError(err)
		return domain.TenantAccount{}, fmt.Errorf("store otp: %w", err)
	}

	body := fmt.Sprintf("Your activation code is %s. It expires in %s.", code, s.opts.OTPTTL)
	if err := s.mailer.Send(ctx, email, "Activate your account", body); err != nil {
		span.RecordError(err)
		return domain.TenantAccount{}, fmt.Errorf("send activation mail: %w", err)
	}

	s.logger.Info("tenant registered", zap.String("email", email))
	return account, nil
}

// Activate checks the activation code and flips the account to active.
func (s *Service) Activate(ctx context.Context, email, code string) (domain.TenantAccount, error) {
	ctx, span := s.tracer.Start(ctx, "Signup.Activate")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	expected, err := s.codes.Get(ctx, email)
	if err != nil {
		span.RecordError(err)
		return domain.TenantAccount{}, fmt.Errorf("load otp: %w", err)
	}
	if expected == "" || subtle.ConstantTimeCompare([]byte(code), []byte(expected)) != 1 {
		return domain.TenantAccount{}, domain.ErrOTPInvalid
	}

	modified, err := s.accounts.SetActive(ctx, email)
	if err != nil {
		span.RecordError(err)
		return domain.TenantAccount{}, fmt.Errorf("activate tenant: %w", err)
	}
	if modified == 0 {
		return domain.TenantAccount{}, domain.ErrUpdateConflict
	}

	if err := s.codes.Delete(ctx, email); err != nil {
		s.logger.Warn("failed to drop consumed otp", zap.String("email", email), zap.Error(err))
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		return domain.TenantAccount{}, fmt.Errorf("reload tenant: %w", err)
	}

	s.logger.Info("tenant activated", zap.String("email", email))
	return account, nil
}
