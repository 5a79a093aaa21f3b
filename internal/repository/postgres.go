package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/valora-tenant/internal/domain"
)

// Compile-time interface assertions.
var (
	_ TenantRepository  = (*PostgresTenantRepo)(nil)
	_ ProfileRepository = (*PostgresProfileRepo)(nil)
	_ DomainAssigner    = (*PostgresDomainAssigner)(nil)
)

const accountColumns = `id, email, username, password_hash, role, domain, is_active, is_verified, is_rejected, is_deleted, profile_id, created_at, updated_at`

const profileColumns = `id, email, domain, username, phone, gender, address, age, avatar, name, stage, company_name, company_address, description, is_verify, created_at`

// PostgresTenantRepo implements TenantRepository on pgx.
type PostgresTenantRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTenantRepo(pool *pgxpool.Pool) *PostgresTenantRepo {
	return &PostgresTenantRepo{db: pool}
}

func (r *PostgresTenantRepo) GetByEmail(ctx context.Context, email string) (domain.TenantAccount, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM tenant_accounts WHERE email = $1 AND NOT is_deleted`,
		email,
	)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TenantAccount{}, domain.ErrTenantNotFound
		}
		return domain.TenantAccount{}, fmt.Errorf("get tenant by email: %w", err)
	}
	return account, nil
}

func (r *PostgresTenantRepo) GetByDomain(ctx context.Context, domainName string) (domain.TenantAccount, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM tenant_accounts WHERE domain = $1 AND NOT is_deleted`,
		domainName,
	)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TenantAccount{}, domain.ErrTenantNotFound
		}
		return domain.TenantAccount{}, fmt.Errorf("get tenant by domain: %w", err)
	}
	return account, nil
}

const insertAccountSQL = `INSERT INTO tenant_accounts (id, email, username, password_hash, role, domain, is_active, is_verified, is_rejected, is_deleted, profile_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING created_at, updated_at`

func (r *PostgresTenantRepo) Create(ctx context.Context, account domain.TenantAccount) (domain.TenantAccount, error) {
	err := r.db.QueryRow(ctx, insertAccountSQL,
		account.ID,
		account.Email,
		account.Username,
		account.PasswordHash,
		string(account.Role),
		account.Domain,
		account.IsActive,
		account.IsVerified,
		account.IsRejected,
		account.IsDeleted,
		account.ProfileID,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return domain.TenantAccount{}, fmt.Errorf("insert tenant: %w", err)
	}
	return account, nil
}

func (r *PostgresTenantRepo) SetActive(ctx context.Context, email string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenant_accounts SET is_active = TRUE, updated_at = now()
		 WHERE email = $1 AND NOT is_active AND NOT is_deleted`,
		email,
	)
	if err != nil {
		return 0, fmt.Errorf("activate tenant: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresTenantRepo) SetVerified(ctx context.Context, email string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenant_accounts SET is_verified = TRUE, updated_at = now()
		 WHERE email = $1 AND is_active AND NOT is_verified AND NOT is_rejected AND NOT is_deleted`,
		email,
	)
	if err != nil {
		return 0, fmt.Errorf("mark tenant verified: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresTenantRepo) SetRejected(ctx context.Context, email string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenant_accounts SET is_rejected = TRUE, updated_at = now()
		 WHERE email = $1 AND is_active AND NOT is_verified AND NOT is_rejected AND NOT is_deleted`,
		email,
	)
	if err != nil {
		return 0, fmt.Errorf("mark tenant rejected: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListWithProfiles joins accounts to their profiles and applies the supplied
// boolean predicates. Soft-deleted accounts are always excluded. No
// pagination: listings are expected to stay small at current scale.
func (r *PostgresTenantRepo) ListWithProfiles(ctx context.Context, filter domain.TenantFilter) ([]domain.TenantView, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT `)
	sb.WriteString(prefixColumns("a", accountColumns))
	sb.WriteString(`, `)
	sb.WriteString(prefixColumns("p", profileColumns))
	sb.WriteString(` FROM tenant_accounts a JOIN tenant_profiles p ON a.profile_id = p.id::text WHERE NOT a.is_deleted`)

	args := make([]any, 0, 3)
	appendPredicate := func(column string, value *bool) {
		if value == nil {
			return
		}
		args = append(args, *value)
		fmt.Fprintf(&sb, " AND a.%s = $%d", column, len(args))
	}
	appendPredicate("is_active", filter.IsActive)
	appendPredicate("is_verified", filter.IsVerified)
	appendPredicate("is_rejected", filter.IsRejected)
	sb.WriteString(" ORDER BY a.created_at")

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var views []domain.TenantView
	for rows.Next() {
		var v domain.TenantView
		if err := rows.Scan(
			&v.Account.ID, &v.Account.Email, &v.Account.Username, &v.Account.PasswordHash,
			&v.Account.Role, &v.Account.Domain, &v.Account.IsActive, &v.Account.IsVerified,
			&v.Account.IsRejected, &v.Account.IsDeleted, &v.Account.ProfileID,
			&v.Account.CreatedAt, &v.Account.UpdatedAt,
			&v.Profile.ID, &v.Profile.Email, &v.Profile.Domain, &v.Profile.Username,
			&v.Profile.Phone, &v.Profile.Gender, &v.Profile.Address, &v.Profile.Age,
			&v.Profile.Avatar, &v.Profile.Name, &v.Profile.Stage, &v.Profile.CompanyName,
			&v.Profile.CompanyAddress, &v.Profile.Description, &v.Profile.IsVerify,
			&v.Profile.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan tenant view: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return views, nil
}

// PostgresProfileRepo implements ProfileRepository on pgx.
type PostgresProfileRepo struct {
	db *pgxpool.Pool
}

func NewPostgresProfileRepo(pool *pgxpool.Pool) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: pool}
}

func (r *PostgresProfileRepo) GetByEmail(ctx context.Context, email string) (domain.TenantProfile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM tenant_profiles WHERE email = $1`,
		email,
	)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TenantProfile{}, domain.ErrProfileNotFound
		}
		return domain.TenantProfile{}, fmt.Errorf("get profile by email: %w", err)
	}
	return profile, nil
}

const insertProfileSQL = `INSERT INTO tenant_profiles (id, email, domain, username, phone, gender, address, age, avatar, name, stage, company_name, company_address, description, is_verify)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING created_at`

func (r *PostgresProfileRepo) Create(ctx context.Context, profile domain.TenantProfile) (domain.TenantProfile, error) {
	err := r.db.QueryRow(ctx, insertProfileSQL,
		profile.ID,
		profile.Email,
		profile.Domain,
		profile.Username,
		profile.Phone,
		profile.Gender,
		profile.Address,
		profile.Age,
		profile.Avatar,
		profile.Name,
		profile.Stage,
		profile.CompanyName,
		profile.CompanyAddress,
		profile.Description,
		profile.IsVerify,
	).Scan(&profile.CreatedAt)
	if err != nil {
		return domain.TenantProfile{}, fmt.Errorf("insert profile: %w", err)
	}
	return profile, nil
}

func (r *PostgresProfileRepo) SetVerify(ctx context.Context, email string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenant_profiles SET is_verify = TRUE WHERE email = $1 AND NOT is_verify`,
		email,
	)
	if err != nil {
		return 0, fmt.Errorf("mark profile verified: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresProfileRepo) SetStage(ctx context.Context, email, stage string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenant_profiles SET stage = $2 WHERE email = $1`,
		email, stage,
	)
	if err != nil {
		return 0, fmt.Errorf("set profile stage: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PostgresDomainAssigner applies the account+profile domain pair in one
// transaction. Re-running with the same (email, domain) matches the same
// rows again, so a retry after a downstream failure is safe.
type PostgresDomainAssigner struct {
	db *pgxpool.Pool
}

func NewPostgresDomainAssigner(pool *pgxpool.Pool) *PostgresDomainAssigner {
	return &PostgresDomainAssigner{db: pool}
}

func (a *PostgresDomainAssigner) AssignDomain(ctx context.Context, email, domainName string) (int64, int64, error) {
	tx, err := a.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin assign domain: %w", err)
	}
	defer tx.Rollback(ctx)

	accountTag, err := tx.Exec(ctx,
		`UPDATE tenant_accounts SET domain = $2, updated_at = now()
		 WHERE email = $1 AND is_active AND is_verified AND NOT is_deleted
		   AND (domain = '' OR domain = $2)`,
		email, domainName,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("assign account domain: %w", err)
	}
	if accountTag.RowsAffected() == 0 {
		return 0, 0, nil
	}

	profileTag, err := tx.Exec(ctx,
		`UPDATE tenant_profiles SET domain = $2 WHERE email = $1`,
		email, domainName,
	)
	if err != nil {
		return accountTag.RowsAffected(), 0, fmt.Errorf("assign profile domain: %w", err)
	}
	if profileTag.RowsAffected() == 0 {
		return accountTag.RowsAffected(), 0, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit assign domain: %w", err)
	}
	return accountTag.RowsAffected(), profileTag.RowsAffected(), nil
}

func scanAccount(row pgx.Row) (domain.TenantAccount, error) {
	var account domain.TenantAccount
	var role string
	err := row.Scan(
		&account.ID, &account.Email, &account.Username, &account.PasswordHash,
		&role, &account.Domain, &account.IsActive, &account.IsVerified,
		&account.IsRejected, &account.IsDeleted, &account.ProfileID,
		&account.CreatedAt, &account.UpdatedAt,
	)
	account.Role = domain.Role(role)
	return account, err
}

func scanProfile(row pgx.Row) (domain.TenantProfile, error) {
	var profile domain.TenantProfile
	err := row.Scan(
		&profile.ID, &profile.Email, &profile.Domain, &profile.Username,
		&profile.Phone, &profile.Gender, &profile.Address, &profile.Age,
		&profile.Avatar, &profile.Name, &profile.Stage, &profile.CompanyName,
		&profile.CompanyAddress, &profile.Description, &profile.IsVerify,
		&profile.CreatedAt,
	)
	return profile, err
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
