package tenancy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

type stubLookup struct {
	tenants map[uuid.UUID]bool
	err     error
	calls   int
}

func (s *stubLookup) TenantExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.tenants[id], nil
}

type resolverFixture struct {
	resolver *Resolver
	tokens   *auth.TokenManager
	lookup   *stubLookup
	metrics  *observability.Metrics
	logs     *bytes.Buffer
	tenantA  uuid.UUID
	tenantB  uuid.UUID
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()
	tokens, err := auth.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)

	f := &resolverFixture{
		tokens:  tokens,
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		logs:    &bytes.Buffer{},
		tenantA: uuid.New(),
		tenantB: uuid.New(),
	}
	f.lookup = &stubLookup{tenants: map[uuid.UUID]bool{f.tenantA: true, f.tenantB: true}}
	f.resolver = NewResolver(tokens, f.lookup,
		WithLogger(observability.NewLogger(observability.WarnLevel, f.logs)),
		WithMetrics(f.metrics),
	)
	return f
}

func (f *resolverFixture) token(t *testing.T, tenantID uuid.UUID) string {
	t.Helper()
	tok, err := f.tokens.Issue(auth.Identity{UserID: uuid.New(), Email: "ops@example.com", TenantID: tenantID})
	require.NoError(t, err)
	return tok
}

func TestResolver_Resolve(t *testing.T) {
	f := newResolverFixture(t)

	tests := []struct {
		name          string
		authorization string
		header        string
		wantTenant    uuid.UUID
		wantSource    string
		wantPrincipal bool
		wantErr       error
	}{
		{
			name:          "token only",
			authorization: "Bearer " + f.token(t, f.tenantA),
			wantTenant:    f.tenantA,
			wantSource:    SourceToken,
			wantPrincipal: true,
		},
		{
			name:          "token wins over header",
			authorization: "Bearer " + f.token(t, f.tenantA),
			header:        f.tenantB.String(),
			wantTenant:    f.tenantA,
			wantSource:    SourceToken,
			wantPrincipal: true,
		},
		{
			name:       "header only",
			header:     f.tenantB.String(),
			wantTenant: f.tenantB,
			wantSource: SourceHeader,
		},
		{
			name:          "invalid token falls back to header",
			authorization: "Bearer not-a-token",
			header:        f.tenantB.String(),
			wantTenant:    f.tenantB,
			wantSource:    SourceHeader,
		},
		{
			name:    "nothing supplied",
			wantErr: ErrMissingTenantContext,
		},
		{
			name:          "invalid token and no header",
			authorization: "Bearer not-a-token",
			wantErr:       ErrMissingTenantContext,
		},
		{
			name:    "malformed header",
			header:  "acme",
			wantErr: ErrInvalidTenant,
		},
		{
			name:    "unknown tenant",
			header:  uuid.NewString(),
			wantErr: ErrInvalidTenant,
		},
		{
			name:          "token for unknown tenant",
			authorization: "Bearer " + f.token(t, uuid.New()),
			wantErr:       ErrInvalidTenant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			if tt.header != "" {
				req.Header.Set(DefaultTenantHeader, tt.header)
			}

			res, err := f.resolver.Resolve(req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTenant, res.TenantID)
			assert.Equal(t, tt.wantSource, res.Source)
			assert.Equal(t, tt.wantPrincipal, res.Principal != nil)
		})
	}
}

func TestResolver_MalformedHeaderSkipsLookup(t *testing.T) {
	f := newResolverFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DefaultTenantHeader, "not-a-uuid")

	_, err := f.resolver.Resolve(req)
	assert.ErrorIs(t, err, ErrInvalidTenant)
	assert.Zero(t, f.lookup.calls)
}

func TestResolver_LookupFailureIsNotInvalidTenant(t *testing.T) {
	f := newResolverFixture(t)
	f.lookup.err = errors.New("connection refused")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DefaultTenantHeader, f.tenantA.String())

	_, err := f.resolver.Resolve(req)
	require.Error(t, err)
	assert.False(t, IsInvalidTenant(err))
	assert.False(t, IsMissingTenant(err))
}

func TestResolver_CustomHeader(t *testing.T) {
	f := newResolverFixture(t)
	r := NewResolver(nil, f.lookup, WithHeader("X-Org"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Org", f.tenantA.String())
	req.Header.Set("Authorization", "Bearer "+f.token(t, f.tenantB))

	res, err := r.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, f.tenantA, res.TenantID, "without a verifier tokens are ignored")
}

func TestResolver_ResolveAndRun(t *testing.T) {
	f := newResolverFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, f.tenantA))

	var sawTenant uuid.UUID
	var sawPrincipal *auth.Principal
	err := f.resolver.ResolveAndRun(req, func(ctx context.Context) error {
		sawTenant, _ = Current(ctx)
		sawPrincipal = auth.PrincipalFromContext(ctx)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, f.tenantA, sawTenant)
	require.NotNil(t, sawPrincipal)
	assert.Equal(t, "ops@example.com", sawPrincipal.Email)

	// the request's own context never gains a tenant
	_, ok := Current(req.Context())
	assert.False(t, ok)

	handlerCalled := false
	err = f.resolver.ResolveAndRun(httptest.NewRequest(http.MethodGet, "/", nil), func(context.Context) error {
		handlerCalled = true
		return nil
	})
	assert.ErrorIs(t, err, ErrMissingTenantContext)
	assert.False(t, handlerCalled)
}

func TestResolver_Middleware(t *testing.T) {
	f := newResolverFixture(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := Current(r.Context())
		_, _ = w.Write([]byte(id.String()))
	})
	h := f.resolver.Middleware(next)

	t.Run("resolved", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(DefaultTenantHeader, f.tenantB.String())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, f.tenantB.String(), rec.Body.String())
	})

	failures := []struct {
		name    string
		header  string
		message string
	}{
		{name: "missing", message: "missing tenant context"},
		{name: "unknown", header: uuid.NewString(), message: "invalid tenant"},
		{name: "malformed", header: "acme", message: "invalid tenant"},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(DefaultTenantHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body["error"])
		})
	}

	t.Run("lookup error", func(t *testing.T) {
		f.lookup.err = errors.New("connection refused")
		defer func() { f.lookup.err = nil }()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(DefaultTenantHeader, f.tenantA.String())
		req = req.WithContext(observability.WithLogger(req.Context(), observability.NopLogger()))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestResolver_RecordsFailures(t *testing.T) {
	f := newResolverFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DefaultTenantHeader, uuid.NewString())
	_, _ = f.resolver.Resolve(req)
	_, _ = f.resolver.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.TenantResolutionsTotal.WithLabelValues(observability.ResultInvalid, SourceHeader)))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.TenantResolutionsTotal.WithLabelValues(observability.ResultMissing, SourceNone)))
	assert.Contains(t, f.logs.String(), "Tenant resolution failed")
}
