package authstate_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/authstate"
	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/kv"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/observability"
	"github.com/boddenberg/marketplace-bff-go/internal/port"

	"go.uber.org/zap"
)

// ============================================================
// Mock user data store
// ============================================================

type mockData struct {
	mu          sync.Mutex
	profiles    map[string]domain.Profile
	roles       map[string]string
	owned       map[string][]domain.Company
	memberships map[string][]domain.Membership

	getErr        error
	updateRoleErr error

	profileGets int
	upserts     int
	roleUpdates []domain.Role
	nextID      int
}

func newMockData() *mockData {
	return &mockData{
		profiles:    make(map[string]domain.Profile),
		roles:       make(map[string]string),
		owned:       make(map[string][]domain.Company),
		memberships: make(map[string][]domain.Membership),
	}
}

func (m *mockData) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profileGets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockData) UpsertProfile(ctx context.Context, p *domain.Profile) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	m.profiles[p.ID] = *p
	saved := *p
	return &saved, nil
}

func (m *mockData) UpdateProfile(ctx context.Context, userID string, updates map[string]any) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profiles[userID]
	p.ID = userID
	if v, ok := updates["full_name"].(string); ok {
		p.FullName = v
	}
	if v, ok := updates["city"].(string); ok {
		p.City = v
	}
	if v, ok := updates["profile_completeness"].(int); ok {
		p.Completeness = v
	}
	m.profiles[userID] = p
	return &p, nil
}

func (m *mockData) GetRole(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	return m.roles[userID], nil
}

func (m *mockData) UpdateRole(ctx context.Context, userID string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateRoleErr != nil {
		return m.updateRoleErr
	}
	m.roleUpdates = append(m.roleUpdates, role)
	m.roles[userID] = string(role)
	return nil
}

func (m *mockData) ListOwnedCompanies(ctx context.Context, userID string) ([]domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owned[userID], nil
}

func (m *mockData) ListMemberships(ctx context.Context, userID string) ([]domain.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memberships[userID], nil
}

func (m *mockData) CreateCompany(ctx context.Context, c *domain.Company) (*domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	created := *c
	created.ID = fmt.Sprintf("company-%d", m.nextID)
	m.owned[c.UserID] = append(m.owned[c.UserID], created)
	return &created, nil
}

func (m *mockData) UpdateCompany(ctx context.Context, companyID string, updates map[string]any) (*domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for uid, list := range m.owned {
		for i := range list {
			if list[i].ID == companyID {
				if v, ok := updates["name"].(string); ok {
					list[i].Name = v
				}
				m.owned[uid] = list
				c := list[i]
				return &c, nil
			}
		}
	}
	return nil, &domain.ErrNotFound{Resource: "company", ID: companyID}
}

func (m *mockData) roleUpdateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.roleUpdates)
}

func (m *mockData) upsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// ============================================================
// Mock identity provider
// ============================================================

type mockIDP struct {
	mu         sync.Mutex
	users      map[string]*domain.User
	signOutErr error
	metaWrites []map[string]any
}

func newMockIDP(users ...*domain.User) *mockIDP {
	m := &mockIDP{users: make(map[string]*domain.User)}
	for _, u := range users {
		m.users[u.Email] = u
	}
	return m
}

func sessionFor(u *domain.User) *domain.Session {
	return &domain.Session{
		AccessToken:  "token-" + u.ID,
		RefreshToken: "refresh-" + u.ID,
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         *u,
	}
}

func (m *mockIDP) SignUp(ctx context.Context, email, password string, data map[string]any) (*domain.Session, *domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &domain.User{ID: "user-" + email, Email: email, Metadata: data}
	m.users[email] = u
	return sessionFor(u), u, nil
}

func (m *mockIDP) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, &domain.ErrUnauthorized{Message: "Credenciales inválidas o sesión expirada"}
	}
	return sessionFor(u), nil
}

func (m *mockIDP) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error) {
	return nil, &domain.ErrUnauthorized{}
}

func (m *mockIDP) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*domain.Session, error) {
	return nil, &domain.ErrUnauthorized{}
}

func (m *mockIDP) SignOut(ctx context.Context, accessToken string) error { return m.signOutErr }

func (m *mockIDP) GetUser(ctx context.Context, accessToken string) (*domain.User, error) {
	return nil, nil
}

func (m *mockIDP) UpdateUser(ctx context.Context, accessToken string, attrs *domain.UserAttributes) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metaWrites = append(m.metaWrites, attrs.Data)
	for _, u := range m.users {
		if "token-"+u.ID == accessToken {
			meta := map[string]any{}
			for k, v := range u.Metadata {
				meta[k] = v
			}
			for k, v := range attrs.Data {
				meta[k] = v
			}
			u.Metadata = meta
			copied := *u
			return &copied, nil
		}
	}
	return &domain.User{ID: "unknown", Metadata: attrs.Data}, nil
}

func (m *mockIDP) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return nil
}

func (m *mockIDP) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	return "https://auth.example.com/authorize?provider=" + provider + "&code_challenge=" + codeChallenge
}

// ============================================================
// Mock change feed
// ============================================================

type mockFeed struct {
	mu         sync.Mutex
	subs       map[string]func(domain.ChangeEvent)
	subscribes int
	tokens     map[string][]string
}

func newMockFeed() *mockFeed {
	return &mockFeed{
		subs:   make(map[string]func(domain.ChangeEvent)),
		tokens: make(map[string][]string),
	}
}

func (f *mockFeed) Subscribe(ctx context.Context, sub domain.ChangeSubscription, accessToken string, fn func(domain.ChangeEvent)) (port.FeedSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	f.subs[sub.Filter] = fn
	f.tokens[sub.Filter] = []string{accessToken}
	return &mockSubscription{feed: f, filter: sub.Filter}, nil
}

// tokensFor returns every token the subscription of filter has seen.
func (f *mockFeed) tokensFor(filter string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens[filter]...)
}

func (f *mockFeed) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

type mockSubscription struct {
	feed   *mockFeed
	filter string
}

func (s *mockSubscription) SetAccessToken(token string) {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	s.feed.tokens[s.filter] = append(s.feed.tokens[s.filter], token)
}

func (s *mockSubscription) Close() {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	delete(s.feed.subs, s.filter)
}

func (f *mockFeed) push(filter string, e domain.ChangeEvent) bool {
	f.mu.Lock()
	fn, ok := f.subs[filter]
	f.mu.Unlock()
	if ok {
		fn(e)
	}
	return ok
}

func (f *mockFeed) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// ============================================================
// Helpers
// ============================================================

func testDeps(backend kv.Backend, idp *mockIDP, data *mockData, feed *mockFeed) authstate.Deps {
	d := authstate.Deps{
		Backend:  backend,
		Identity: idp,
		Data:     data,
		Metrics:  observability.NewMetrics(),
		Logger:   zap.NewNop(),
		Config: authstate.Config{
			FetchMaxAttempts: 3,
			FetchRetryBase:   time.Millisecond,
			SiteURL:          "https://app.example.com",
		},
	}
	if feed != nil {
		d.Feed = feed
	}
	return d
}

func newFetcher(data *mockData) *authstate.Fetcher {
	return authstate.NewFetcher(data, 3, time.Millisecond, observability.NewMetrics(), zap.NewNop())
}
