package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Errors translated from the remote registry's structured error payload.
// The remote reports failures as {"error": "CODE"}; anything outside the
// recognized codes surfaces as ErrUnavailable.
var (
	ErrNotFound         = errors.New("registry: tenant not found")
	ErrAlreadyExists    = errors.New("registry: tenant already exists")
	ErrPermissionDenied = errors.New("registry: permission denied")
	ErrUnavailable      = errors.New("registry: upstream failure")
)

// Tenant is the remote registry's record of a provisioned tenant.
type Tenant struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Domain string `json:"domain"`
	Name   string `json:"name"`
}

// Profile is the remote registry's storefront profile for a tenant.
type Profile struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenantId"`
	Address     string   `json:"address"`
	PhoneNumber string   `json:"phoneNumber"`
	ServiceName string   `json:"serviceName"`
	Logo        string   `json:"logo"`
	Description string   `json:"description"`
	SocialLinks []string `json:"socialLinks"`
}

// CreateTenantInput carries the fields required to provision a tenant.
type CreateTenantInput struct {
	Email  string `json:"email"`
	Domain string `json:"domain"`
	Name   string `json:"name"`
}

// CreateProfileInput carries the fields for the tenant's remote profile.
type CreateProfileInput struct {
	TenantID    string   `json:"tenantId"`
	Address     string   `json:"address"`
	PhoneNumber string   `json:"phoneNumber"`
	ServiceName string   `json:"serviceName"`
	Logo        string   `json:"logo"`
	Description string   `json:"description"`
	SocialLinks []string `json:"socialLinks"`
}

// Client is the contract with the external tenant registry. Implementations
// must translate remote failures into the sentinel errors above.
type Client interface {
	FindTenantByDomain(ctx context.Context, domainName string) (*Tenant, error)
	CreateTenant(ctx context.Context, in CreateTenantInput) (*Tenant, error)
	FindProfileByTenantID(ctx context.Context, domainName, tenantID string) (*Profile, error)
	CreateProfile(ctx context.Context, in CreateProfileInput) (*Profile, error)
}

// HTTPClient reaches the registry over its REST surface.
type HTTPClient struct {
	http   *resty.Client
	logger *zap.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a registry client with a per-call timeout. A timeout
// is treated like any other upstream failure by callers.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPClient{http: client, logger: logger}
}

func (c *HTTPClient) FindTenantByDomain(ctx context.Context, domainName string) (*Tenant, error) {
	var tenant Tenant
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("domain", domainName).
		SetResult(&tenant).
		Get("/tenants/find")
	if err != nil {
		return nil, fmt.Errorf("%w: find tenant by domain: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, c.mapError("find tenant by domain", resp)
	}
	return &tenant, nil
}

func (c *HTTPClient) CreateTenant(ctx context.Context, in CreateTenantInput) (*Tenant, error) {
	var tenant Tenant
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(in).
		SetResult(&tenant).
		Post("/tenants")
	if err != nil {
		return nil, fmt.Errorf("%w: create tenant: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, c.mapError("create tenant", resp)
	}
	return &tenant, nil
}

func (c *HTTPClient) FindProfileByTenantID(ctx context.Context, domainName, tenantID string) (*Profile, error) {
	var profile Profile
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("domain", domainName).
		SetQueryParam("tenantId", tenantID).
		SetResult(&profile).
		Get("/tenant-profiles/find")
	if err != nil {
		return nil, fmt.Errorf("%w: find tenant profile: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, c.mapError("find tenant profile", resp)
	}
	return &profile, nil
}

func (c *HTTPClient) CreateProfile(ctx context.Context, in CreateProfileInput) (*Profile, error) {
	var profile Profile
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(in).
		SetResult(&profile).
		Post("/tenant-profiles")
	if err != nil {
		return nil, fmt.Errorf("%w: create tenant profile: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, c.mapError("create tenant profile", resp)
	}
	return &profile, nil
}

type errorPayload struct {
	Error string `json:"error"`
}

func (c *HTTPClient) mapError(op string, resp *resty.Response) error {
	var payload errorPayload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil || payload.Error == "" {
		return fmt.Errorf("%w: %s: status=%d", ErrUnavailable, op, resp.StatusCode())
	}

	switch payload.Error {
	case "TENANT_NOT_FOUND", "TENANT_PROFILE_NOT_FOUND":
		return ErrNotFound
	case "TENANT_ALREADY_EXISTS":
		return ErrAlreadyExists
	case "PERMISSION_DENIED":
		return ErrPermissionDenied
	default:
		if c.logger != nil {
			c.logger.Warn("unrecognized registry error code",
				zap.String("op", op),
				zap.String("code", payload.Error),
				zap.Int("status", resp.StatusCode()),
			)
		}
		return fmt.Errorf("%w: %s: code=%s", ErrUnavailable, op, payload.Error)
	}
}
