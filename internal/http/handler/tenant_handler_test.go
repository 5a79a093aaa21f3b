package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-tenant/internal/domain"
	"github.com/smallbiznis/valora-tenant/internal/http/handler"
	"github.com/smallbiznis/valora-tenant/internal/signup"
)

type fakeSignup struct {
	signUpErr   error
	activateErr error
	lastInput   signup.Input
}

func (f *fakeSignup) SignUp(ctx context.Context, in signup.Input) (domain.TenantAccount, error) {
	f.lastInput = in
	if f.signUpErr != nil {
		return domain.TenantAccount{}, f.signUpErr
	}
	return domain.TenantAccount{ID: 1, Email: in.Email, Role: domain.RoleTenant}, nil
}

func (f *fakeSignup) Activate(ctx context.Context, email, code string) (domain.TenantAccount, error) {
	if f.activateErr != nil {
		return domain.TenantAccount{}, f.activateErr
	}
	return domain.TenantAccount{ID: 1, Email: email, IsActive: true}, nil
}

type fakeLifecycle struct {
	verifyErr  error
	domainErr  error
	lastFilter domain.TenantFilter
	views      []domain.TenantView
}

func (f *fakeLifecycle) VerifyTenant(ctx context.Context, email string, accept bool) (domain.TenantAccount, error) {
	if f.verifyErr != nil {
		return domain.TenantAccount{}, f.verifyErr
	}
	return domain.TenantAccount{Email: email, IsVerified: accept, IsRejected: !accept}, nil
}

func (f *fakeLifecycle) SetStage(ctx context.Context, email, stage string) (domain.TenantProfile, error) {
	return domain.TenantProfile{Email: email, Stage: stage}, nil
}

func (f *fakeLifecycle) SetDomain(ctx context.Context, email, domainName string) (domain.TenantView, error) {
	if f.domainErr != nil {
		return domain.TenantView{}, f.domainErr
	}
	return domain.TenantView{
		Account: domain.TenantAccount{Email: email, Domain: domainName},
		Profile: domain.TenantProfile{Email: email, Domain: domainName},
	}, nil
}

func (f *fakeLifecycle) List(ctx context.Context, filter domain.TenantFilter) ([]domain.TenantView, error) {
	f.lastFilter = filter
	return f.views, nil
}

func newTestRouter(signupSvc *fakeSignup, lifecycle *fakeLifecycle) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := &handler.TenantHandler{Signup: signupSvc, Lifecycle: lifecycle, Logger: zap.NewNop()}

	r := gin.New()
	grp := r.Group("/tenant")
	grp.POST("/signup", h.Register)
	grp.POST("/activate", h.Activate)
	grp.POST("/verify", h.Verify)
	grp.POST("/stage", h.SetStage)
	grp.POST("/domain", h.SetDomain)
	grp.GET("", h.List)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegister(t *testing.T) {
	su := &fakeSignup{}
	r := newTestRouter(su, &fakeLifecycle{})

	w := doJSON(t, r, http.MethodPost, "/tenant/signup", `{"email":"a@x.com","username":"acme","password":"pw","phone":"555"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "555", su.lastInput.Phone)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "a@x.com", resp["email"])
	require.NotContains(t, w.Body.String(), "password")
}

func TestRegisterValidation(t *testing.T) {
	r := newTestRouter(&fakeSignup{}, &fakeLifecycle{})

	w := doJSON(t, r, http.MethodPost, "/tenant/signup", `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/tenant/signup", `not-json`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.ErrTenantNotFound, http.StatusNotFound},
		{"duplicate", domain.ErrAlreadyRegistered, http.StatusConflict},
		{"conflict", domain.ErrUpdateConflict, http.StatusConflict},
		{"domain taken", domain.ErrDomainTaken, http.StatusConflict},
		{"domain already assigned", domain.ErrDomainAlreadyAssigned, http.StatusConflict},
		{"not active", domain.ErrTenantNotActive, http.StatusUnprocessableEntity},
		{"already verified", domain.ErrTenantAlreadyVerified, http.StatusUnprocessableEntity},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&fakeSignup{}, &fakeLifecycle{verifyErr: tc.err})
			w := doJSON(t, r, http.MethodPost, "/tenant/verify", `{"email":"a@x.com","is_accepted":true}`)
			require.Equal(t, tc.want, w.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotEmpty(t, resp["error"])
			require.NotEmpty(t, resp["error_description"])
		})
	}
}

func TestActivateInvalidOTP(t *testing.T) {
	r := newTestRouter(&fakeSignup{activateErr: domain.ErrOTPInvalid}, &fakeLifecycle{})
	w := doJSON(t, r, http.MethodPost, "/tenant/activate", `{"email":"a@x.com","code":"123456"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListFilterParsing(t *testing.T) {
	lc := &fakeLifecycle{}
	r := newTestRouter(&fakeSignup{}, lc)

	req := httptest.NewRequest(http.MethodGet, "/tenant?is_active=true&is_rejected=false", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	require.NotNil(t, lc.lastFilter.IsActive)
	require.True(t, *lc.lastFilter.IsActive)
	require.Nil(t, lc.lastFilter.IsVerified)
	require.NotNil(t, lc.lastFilter.IsRejected)
	require.False(t, *lc.lastFilter.IsRejected)

	req = httptest.NewRequest(http.MethodGet, "/tenant?is_active=maybe", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetDomain(t *testing.T) {
	r := newTestRouter(&fakeSignup{}, &fakeLifecycle{})
	w := doJSON(t, r, http.MethodPost, "/tenant/domain", `{"email":"a@x.com","domain":"acme.example"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Account struct {
			Domain string `json:"domain"`
		} `json:"account"`
		Profile struct {
			Domain string `json:"domain"`
		} `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "acme.example", resp.Account.Domain)
	require.Equal(t, "acme.example", resp.Profile.Domain)
}
