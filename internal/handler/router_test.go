package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/authstate"
	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/handler"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/kv"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/observability"

	"go.uber.org/zap"
)

// ============================================================
// Fakes
// ============================================================

type fakeIDP struct {
	users map[string]*domain.User
}

func (f *fakeIDP) session(u *domain.User) *domain.Session {
	return &domain.Session{
		AccessToken:  "token-" + u.ID,
		RefreshToken: "refresh-" + u.ID,
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         *u,
	}
}

func (f *fakeIDP) SignUp(ctx context.Context, email, password string, data map[string]any) (*domain.Session, *domain.User, error) {
	u := &domain.User{ID: "u-" + email, Email: email, Metadata: data}
	return f.session(u), u, nil
}

func (f *fakeIDP) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	u, ok := f.users[email]
	if !ok {
		return nil, &domain.ErrUnauthorized{Message: "Credenciales inválidas o sesión expirada"}
	}
	return f.session(u), nil
}

func (f *fakeIDP) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error) {
	return nil, &domain.ErrUnauthorized{}
}

func (f *fakeIDP) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*domain.Session, error) {
	return nil, &domain.ErrUnauthorized{}
}

func (f *fakeIDP) SignOut(ctx context.Context, accessToken string) error { return nil }

func (f *fakeIDP) GetUser(ctx context.Context, accessToken string) (*domain.User, error) {
	return nil, nil
}

func (f *fakeIDP) UpdateUser(ctx context.Context, accessToken string, attrs *domain.UserAttributes) (*domain.User, error) {
	return &domain.User{Metadata: attrs.Data}, nil
}

func (f *fakeIDP) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return nil
}

func (f *fakeIDP) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	return "https://auth.example.com/authorize?provider=" + provider
}

type fakeData struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
	roles    map[string]string
}

func (f *fakeData) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeData) UpsertProfile(ctx context.Context, p *domain.Profile) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.ID] = *p
	saved := *p
	return &saved, nil
}

func (f *fakeData) UpdateProfile(ctx context.Context, userID string, updates map[string]any) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.profiles[userID]
	p.ID = userID
	if v, ok := updates["city"].(string); ok {
		p.City = v
	}
	f.profiles[userID] = p
	return &p, nil
}

func (f *fakeData) GetRole(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[userID], nil
}

func (f *fakeData) UpdateRole(ctx context.Context, userID string, role domain.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[userID] = string(role)
	return nil
}

func (f *fakeData) ListOwnedCompanies(ctx context.Context, userID string) ([]domain.Company, error) {
	return nil, nil
}

func (f *fakeData) ListMemberships(ctx context.Context, userID string) ([]domain.Membership, error) {
	return nil, nil
}

func (f *fakeData) CreateCompany(ctx context.Context, c *domain.Company) (*domain.Company, error) {
	created := *c
	created.ID = "company-1"
	return &created, nil
}

func (f *fakeData) UpdateCompany(ctx context.Context, companyID string, updates map[string]any) (*domain.Company, error) {
	return nil, &domain.ErrNotFound{Resource: "company", ID: companyID}
}

// ============================================================
// Helpers
// ============================================================

func newTestRouter(t *testing.T, checks ...handler.HealthCheck) http.Handler {
	t.Helper()
	idp := &fakeIDP{users: map[string]*domain.User{
		"ana@example.com": {ID: "u1", Email: "ana@example.com"},
	}}
	data := &fakeData{
		profiles: map[string]domain.Profile{"u1": {ID: "u1", FullName: "Ana"}},
		roles:    map[string]string{"u1": "talent"},
	}
	registry := authstate.NewRegistry(authstate.Deps{
		Backend:  kv.NewMemory(),
		Identity: idp,
		Data:     data,
		Metrics:  observability.NewMetrics(),
		Logger:   zap.NewNop(),
		Config: authstate.Config{
			FetchMaxAttempts: 1,
			FetchRetryBase:   time.Millisecond,
			SiteURL:          "https://app.example.com",
		},
	})
	t.Cleanup(registry.Close)

	return handler.NewRouter(registry, handler.Services{}, handler.Options{
		OAuthWaitTimeout: 2 * time.Second,
		HealthChecks:     checks,
	}, observability.NewMetrics(), zap.NewNop())
}

func do(router http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func clientCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == handler.ClientCookie {
			return c
		}
	}
	t.Fatal("expected the client cookie to be issued")
	return nil
}

type sessionBody struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	UserRole        string `json:"userRole"`
	RedirectTo      string `json:"redirectTo"`
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionBody {
	t.Helper()
	var body sessionBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	return body
}

// ============================================================
// Tests
// ============================================================

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	rec := do(router, http.MethodGet, "/healthz", "")

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHealthz_DegradedDependency(t *testing.T) {
	router := newTestRouter(t, handler.HealthCheck{
		Name:  "supabase",
		Check: func(context.Context) error { return errors.New("down") },
	})

	rec := do(router, http.MethodGet, "/healthz", "")

	var health domain.HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if health.Status != "degraded" || len(health.Services) != 2 {
		t.Errorf("expected degraded with two services, got %+v", health)
	}
}

func TestReadyz(t *testing.T) {
	router := newTestRouter(t)

	rec := do(router, http.MethodGet, "/readyz", "")

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/metrics", "/v1/metrics/auth"} {
		rec := do(router, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestSession_IssuesClientCookie(t *testing.T) {
	router := newTestRouter(t)

	rec := do(router, http.MethodGet, "/v1/session", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	c := clientCookie(t, rec)
	if !c.HttpOnly || c.Value == "" {
		t.Errorf("unexpected cookie %+v", c)
	}
	if decodeSession(t, rec).IsAuthenticated {
		t.Error("expected a fresh client to be signed out")
	}
}

func TestSignIn_SettlesSessionForClient(t *testing.T) {
	router := newTestRouter(t)
	cookie := clientCookie(t, do(router, http.MethodGet, "/v1/session", ""))

	rec := do(router, http.MethodPost, "/v1/auth/signin", `{"email":"ana@example.com","password":"secret1"}`, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeSession(t, rec)
	if !body.IsAuthenticated || body.UserRole != string(domain.RoleFreemiumTalent) || body.RedirectTo != "/talent-dashboard" {
		t.Errorf("unexpected session %+v", body)
	}

	rec = do(router, http.MethodGet, "/v1/session", "", cookie)
	if !decodeSession(t, rec).IsAuthenticated {
		t.Error("expected the same client to stay signed in")
	}

	rec = do(router, http.MethodGet, "/v1/session", "")
	if decodeSession(t, rec).IsAuthenticated {
		t.Error("expected another client to be isolated")
	}
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	router := newTestRouter(t)

	rec := do(router, http.MethodPost, "/v1/auth/signin", `{"email":"bob@example.com","password":"secret1"}`)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestSignIn_MalformedBody(t *testing.T) {
	router := newTestRouter(t)

	rec := do(router, http.MethodPost, "/v1/auth/signin", `{`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/v1/notifications", "/v1/companies", "/v1/me/applications"} {
		rec := do(router, http.MethodGet, path, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestSignOut_RedirectsHome(t *testing.T) {
	router := newTestRouter(t)
	cookie := clientCookie(t, do(router, http.MethodGet, "/v1/session", ""))
	do(router, http.MethodPost, "/v1/auth/signin", `{"email":"ana@example.com","password":"secret1"}`, cookie)

	rec := do(router, http.MethodPost, "/v1/auth/signout", "", cookie)

	var resp domain.SignOutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.RedirectTo != "https://app.example.com/" {
		t.Errorf("unexpected redirect %q", resp.RedirectTo)
	}
	rec = do(router, http.MethodGet, "/v1/companies", "", cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after sign-out, got %d", rec.Code)
	}
}

func TestOAuthWait_TimesOutSignedOut(t *testing.T) {
	router := newTestRouter(t)

	rec := do(router, http.MethodGet, "/v1/auth/oauth/wait", "")

	var body struct {
		TimedOut   bool   `json:"timedOut"`
		RedirectTo string `json:"redirectTo"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !body.TimedOut || body.RedirectTo != "/login" {
		t.Errorf("unexpected wait result %+v", body)
	}
}
