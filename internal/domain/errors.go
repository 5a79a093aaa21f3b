package domain

import "errors"

// Sentinel errors for the tenant lifecycle. The transport layer maps these
// to status codes in one place; services never return raw storage errors.
var (
	// ErrTenantNotFound signals the account email is unknown.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrProfileNotFound signals the profile for an email is missing.
	ErrProfileNotFound = errors.New("tenant profile not found")
	// ErrTenantNotActive rejects lifecycle operations on inactive accounts.
	ErrTenantNotActive = errors.New("tenant is not active")
	// ErrTenantNotVerified rejects domain assignment before verification.
	ErrTenantNotVerified = errors.New("tenant is not verified")
	// ErrTenantAlreadyVerified enforces the one-shot verification transition.
	ErrTenantAlreadyVerified = errors.New("tenant already verified")
	// ErrTenantAlreadyRejected enforces the terminal rejected state.
	ErrTenantAlreadyRejected = errors.New("tenant already rejected")
	// ErrAlreadyRegistered signals a duplicate sign-up attempt.
	ErrAlreadyRegistered = errors.New("tenant already registered")
	// ErrUpdateConflict signals a write that was expected to match one row
	// matched zero: either the precondition no longer holds or a concurrent
	// writer won the race.
	ErrUpdateConflict = errors.New("update matched no rows")
	// ErrDomainTaken signals the requested domain is already provisioned,
	// locally or in the remote registry.
	ErrDomainTaken = errors.New("domain already provisioned")
	// ErrDomainAlreadyAssigned rejects re-assigning an account that already
	// owns a different domain. Re-sending the same domain stays allowed so
	// retries after a partial failure can complete.
	ErrDomainAlreadyAssigned = errors.New("tenant already has a domain assigned")
	// ErrOTPInvalid signals a missing, expired, or mismatched activation code.
	ErrOTPInvalid = errors.New("invalid or expired otp")
)
