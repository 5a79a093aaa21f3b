package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-tenant/internal/domain"
	"github.com/smallbiznis/valora-tenant/internal/registry"
	"github.com/smallbiznis/valora-tenant/internal/signup"
)

// SignupService covers registration and OTP activation.
type SignupService interface {
	SignUp(ctx context.Context, in signup.Input) (domain.TenantAccount, error)
	Activate(ctx context.Context, email, code string) (domain.TenantAccount, error)
}

// LifecycleService covers post-activation tenant administration.
type LifecycleService interface {
	VerifyTenant(ctx context.Context, email string, accept bool) (domain.TenantAccount, error)
	SetStage(ctx context.Context, email, stage string) (domain.TenantProfile, error)
	SetDomain(ctx context.Context, email, domainName string) (domain.TenantView, error)
	List(ctx context.Context, filter domain.TenantFilter) ([]domain.TenantView, error)
}

// TenantHandler exposes the tenant API over HTTP.
type TenantHandler struct {
	Signup    SignupService
	Lifecycle LifecycleService
	Logger    *zap.Logger
}

// NewTenantHandler wires handler dependencies.
func NewTenantHandler(signupSvc *signup.Service, lifecycle LifecycleService, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{Signup: signupSvc, Lifecycle: lifecycle, Logger: logger}
}

type accountResponse struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	Domain     string    `json:"domain,omitempty"`
	IsActive   bool      `json:"is_active"`
	IsVerified bool      `json:"is_verified"`
	IsRejected bool      `json:"is_rejected"`
	ProfileID  string    `json:"profile_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type profileResponse struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	Domain         string    `json:"domain,omitempty"`
	Username       string    `json:"username"`
	Phone          string    `json:"phone,omitempty"`
	Gender         string    `json:"gender,omitempty"`
	Address        string    `json:"address,omitempty"`
	Age            int       `json:"age,omitempty"`
	Avatar         string    `json:"avatar,omitempty"`
	Name           string    `json:"name,omitempty"`
	Stage          string    `json:"stage,omitempty"`
	CompanyName    string    `json:"company_name,omitempty"`
	CompanyAddress string    `json:"company_address,omitempty"`
	Description    string    `json:"description,omitempty"`
	IsVerify       bool      `json:"is_verify"`
	CreatedAt      time.Time `json:"created_at"`
}

type tenantResponse struct {
	Account accountResponse `json:"account"`
	Profile profileResponse `json:"profile"`
}

func toAccountResponse(a domain.TenantAccount) accountResponse {
	return accountResponse{
		ID:         a.ID,
		Email:      a.Email,
		Username:   a.Username,
		Role:       string(a.Role),
		Domain:     a.Domain,
		IsActive:   a.IsActive,
		IsVerified: a.IsVerified,
		IsRejected: a.IsRejected,
		ProfileID:  a.ProfileID,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func toProfileResponse(p domain.TenantProfile) profileResponse {
	return profileResponse{
		ID:             p.ID,
		Email:          p.Email,
		Domain:         p.Domain,
		Username:       p.Username,
		Phone:          p.Phone,
		Gender:         p.Gender,
		Address:        p.Address,
		Age:            p.Age,
		Avatar:         p.Avatar,
		Name:           p.Name,
		Stage:          p.Stage,
		CompanyName:    p.CompanyName,
		CompanyAddress: p.CompanyAddress,
		Description:    p.Description,
		IsVerify:       p.IsVerify,
		CreatedAt:      p.CreatedAt,
	}
}

func toTenantResponse(v domain.TenantView) tenantResponse {
	return tenantResponse{
		Account: toAccountResponse(v.Account),
		Profile: toProfileResponse(v.Profile),
	}
}

// Register handles POST /tenant/signup.
func (h *TenantHandler) Register(c *gin.Context) {
	var req struct {
		Email          string `json:"email"`
		Username       string `json:"username"`
		Password       string `json:"password"`
		Phone          string `json:"phone"`
		Name           string `json:"name"`
		Gender         string `json:"gender"`
		Address        string `json:"address"`
		Age            int    `json:"age"`
		CompanyName    string `json:"company_name"`
		CompanyAddress string `json:"company_address"`
		Description    string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid payload."})
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Password) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Email and password are required."})
		return
	}

	account, err := h.Signup.SignUp(c.Request.Context(), signup.Input{
		Email:          req.Email,
		Username:       req.Username,
		Password:       req.Password,
		Phone:          req.Phone,
		Name:           req.Name,
		Gender:         req.Gender,
		Address:        req.Address,
		Age:            req.Age,
		CompanyName:    req.CompanyName,
		CompanyAddress: req.CompanyAddress,
		Description:    req.Description,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toAccountResponse(account))
}

// Activate handles POST /tenant/activate.
func (h *TenantHandler) Activate(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid payload."})
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Email and code are required."})
		return
	}

	account, err := h.Signup.Activate(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toAccountResponse(account))
}

// Verify handles POST /tenant/verify. Both accept and reject arrive here;
// is_accepted selects the terminal state.
func (h *TenantHandler) Verify(c *gin.Context) {
	var req struct {
		Email      string `json:"email"`
		IsAccepted bool   `json:"is_accepted"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid payload."})
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Email is required."})
		return
	}

	account, err := h.Lifecycle.VerifyTenant(c.Request.Context(), req.Email, req.IsAccepted)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toAccountResponse(account))
}

// SetStage handles POST /tenant/stage.
func (h *TenantHandler) SetStage(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
		Stage string `json:"stage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid payload."})
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Stage) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Email and stage are required."})
		return
	}

	profile, err := h.Lifecycle.SetStage(c.Request.Context(), req.Email, req.Stage)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toProfileResponse(profile))
}

// SetDomain handles POST /tenant/domain.
func (h *TenantHandler) SetDomain(c *gin.Context) {
	var req struct {
		Email  string `json:"email"`
		Domain string `json:"domain"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid payload."})
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Domain) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Email and domain are required."})
		return
	}

	view, err := h.Lifecycle.SetDomain(c.Request.Context(), req.Email, req.Domain)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTenantResponse(view))
}

// List handles GET /tenant. Lifecycle flags arrive as optional query params.
func (h *TenantHandler) List(c *gin.Context) {
	filter := domain.TenantFilter{}
	for _, f := range []struct {
		key  string
		dest **bool
	}{
		{"is_active", &filter.IsActive},
		{"is_verified", &filter.IsVerified},
		{"is_rejected", &filter.IsRejected},
	} {
		raw, ok := c.GetQuery(f.key)
		if !ok {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Query param " + f.key + " must be a boolean."})
			return
		}
		*f.dest = &v
	}

	views, err := h.Lifecycle.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]tenantResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toTenantResponse(v))
	}
	c.JSON(http.StatusOK, gin.H{"tenants": out})
}

func (h *TenantHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrTenantNotFound), errors.Is(err, domain.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Tenant not found."})
	case errors.Is(err, domain.ErrAlreadyRegistered):
		c.JSON(http.StatusConflict, gin.H{"error": "already_registered", "error_description": "Email is already registered."})
	case errors.Is(err, domain.ErrDomainTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "domain_taken", "error_description": "Domain is already assigned to another tenant."})
	case errors.Is(err, domain.ErrDomainAlreadyAssigned):
		c.JSON(http.StatusConflict, gin.H{"error": "domain_already_assigned", "error_description": "Tenant already owns a different domain."})
	case errors.Is(err, domain.ErrUpdateConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "update_conflict", "error_description": "The record changed concurrently. Retry the request."})
	case errors.Is(err, domain.ErrTenantNotActive):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "tenant_not_active", "error_description": "Tenant account has not been activated."})
	case errors.Is(err, domain.ErrTenantNotVerified):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "tenant_not_verified", "error_description": "Tenant account has not been verified."})
	case errors.Is(err, domain.ErrTenantAlreadyVerified):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "already_verified", "error_description": "Tenant is already verified."})
	case errors.Is(err, domain.ErrTenantAlreadyRejected):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "already_rejected", "error_description": "Tenant is already rejected."})
	case errors.Is(err, domain.ErrOTPInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_otp", "error_description": "Activation code is invalid or expired."})
	case errors.Is(err, registry.ErrPermissionDenied):
		c.JSON(http.StatusBadGateway, gin.H{"error": "registry_denied", "error_description": "Tenant registry rejected the request."})
	case errors.Is(err, registry.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "registry_unavailable", "error_description": "Tenant registry is unavailable."})
	default:
		if h.Logger != nil {
			h.Logger.Error("unhandled request error", zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "error_description": "Unexpected server error."})
	}
}
