package domain

import "time"

// Role classifies an account within the platform.
type Role string

const (
	RoleTenant Role = "tenant"
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
)

// TenantAccount is the primary entity: a registered organization-user with
// login credentials and lifecycle flags. is_verified and is_rejected are
// mutually exclusive terminal flags.
type TenantAccount struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	Role         Role
	Domain       string
	IsActive     bool
	IsVerified   bool
	IsRejected   bool
	IsDeleted    bool
	ProfileID    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TenantProfile holds descriptive and contact metadata attached to an
// account. It is created together with the account at sign-up and mirrors
// email/domain from it.
type TenantProfile struct {
	ID             int64
	Email          string
	Domain         string
	Username       string
	Phone          string
	Gender         string
	Address        string
	Age            int
	Avatar         string
	Name           string
	Stage          string
	CompanyName    string
	CompanyAddress string
	Description    string
	IsVerify       bool
	CreatedAt      time.Time
}

// TenantFilter carries optional boolean predicates for listing tenants.
// Nil fields impose no constraint; supplied fields are ANDed.
type TenantFilter struct {
	IsActive   *bool
	IsVerified *bool
	IsRejected *bool
}

// TenantView is a joined account+profile pair returned by list and
// domain-assignment operations.
type TenantView struct {
	Account TenantAccount
	Profile TenantProfile
}
