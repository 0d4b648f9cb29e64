package authstate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/authstate"
	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/kv"
)

func startStore(t *testing.T, d authstate.Deps) *authstate.Store {
	t.Helper()
	s := authstate.NewStore("client-1", d)
	s.Start(context.Background())
	s.Wait()
	t.Cleanup(s.Close)
	return s
}

func signIn(t *testing.T, s *authstate.Store, email string) domain.AuthSnapshot {
	t.Helper()
	u, err := s.SignIn(context.Background(), &domain.SignInRequest{Email: email, Password: "secret1"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.AwaitReady(ctx, u.ID); err != nil {
		t.Fatalf("pipeline did not settle: %v", err)
	}
	s.Wait()
	return s.Snapshot()
}

func TestStore_InitialWithoutSession(t *testing.T) {
	s := startStore(t, testDeps(kv.NewMemory(), newMockIDP(), newMockData(), nil))

	snap := s.Snapshot()
	if snap.IsLoading || snap.IsAuthenticated {
		t.Errorf("expected settled signed-out state, got %+v", snap)
	}
}

func TestStore_SignInSettles(t *testing.T) {
	user := &domain.User{ID: "u1", Email: "ana@example.com"}
	data := newMockData()
	data.profiles["u1"] = domain.Profile{ID: "u1", FullName: "Ana"}
	data.roles["u1"] = "talent"

	s := startStore(t, testDeps(kv.NewMemory(), newMockIDP(user), data, nil))
	snap := signIn(t, s, "ana@example.com")

	if snap.IsLoading || !snap.IsAuthenticated {
		t.Fatalf("expected settled authenticated state, got %+v", snap)
	}
	if snap.UserRole == "" || snap.Profile == nil {
		t.Errorf("expected role and profile, got role=%q profile=%v", snap.UserRole, snap.Profile)
	}
	if snap.UserRole.Dashboard(snap.Company != nil) != "/talent-dashboard" {
		t.Errorf("unexpected dashboard for %s", snap.UserRole)
	}
}

func TestStore_SignInWithMissingRowsUsesDefaults(t *testing.T) {
	user := &domain.User{ID: "u1", Email: "ana@example.com"}
	data := newMockData()

	s := startStore(t, testDeps(kv.NewMemory(), newMockIDP(user), data, nil))
	snap := signIn(t, s, "ana@example.com")

	if snap.UserRole != domain.DefaultRole {
		t.Errorf("expected default role, got %q", snap.UserRole)
	}
	if snap.Profile == nil || data.upsertCount() != 1 {
		t.Errorf("expected healed profile, got %v with %d upserts", snap.Profile, data.upsertCount())
	}
}

func TestStore_SignInInvalidCredentials(t *testing.T) {
	s := startStore(t, testDeps(kv.NewMemory(), newMockIDP(), newMockData(), nil))

	_, err := s.SignIn(context.Background(), &domain.SignInRequest{Email: "nobody@example.com", Password: "secret1"})
	var unauth *domain.ErrUnauthorized
	if !errors.As(err, &unauth) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestStore_SignUpBusinessIntentReconciled(t *testing.T) {
	data := newMockData()
	// the remote trigger creates a talent role regardless of the intent
	data.roles["user-leo@example.com"] = "talent"
	data.profiles["user-leo@example.com"] = domain.Profile{ID: "user-leo@example.com"}

	s := startStore(t, testDeps(kv.NewMemory(), newMockIDP(), data, nil))
	resp, err := s.SignUp(context.Background(), &domain.SignUpRequest{
		Email: "leo@example.com", Password: "secret1", FullName: "Leo", UserType: "business",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if resp.ConfirmationRequired {
		t.Error("expected immediate session")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.AwaitReady(ctx, resp.User.ID); err != nil {
		t.Fatalf("pipeline did not settle: %v", err)
	}
	s.Wait()

	snap := s.Snapshot()
	if snap.UserRole != domain.RoleFreemiumBusiness {
		t.Errorf("expected freemium_business, got %s", snap.UserRole)
	}
	if n := data.roleUpdateCount(); n != 1 {
		t.Errorf("expected exactly one corrective write, got %d", n)
	}
	if _, ok, _ := kv.Get(context.Background(), s.Namespace(), kv.PendingUserType); ok {
		t.Error("expected pending user type to be cleared")
	}
}

func TestStore_SignUpValidation(t *testing.T) {
	s := startStore(t, testDeps(kv.NewMemory(), newMockIDP(), newMockData(), nil))

	cases := []domain.SignUpRequest{
		{Email: "bad", Password: "secret1"},
		{Email: "a@b.com", Password: "123"},
		{Email: "a@b.com", Password: "secret1", UserType: "astronaut"},
	}
	for _, req := range cases {
		req := req
		_, err := s.SignUp(context.Background(), &req)
		var valErr *domain.ErrValidation
		if !errors.As(err, &valErr) {
			t.Errorf("expected ErrValidation for %+v, got %v", req, err)
		}
	}
}

func TestStore_SignOutClearsEverythingOnRemoteFailure(t *testing.T) {
	user := &domain.User{ID: "u1", Email: "ana@example.com"}
	idp := newMockIDP(user)
	idp.signOutErr = errors.New("network unreachable")
	data := newMockData()
	data.profiles["u1"] = domain.Profile{ID: "u1"}
	data.roles["u1"] = "business"
	data.owned["u1"] = []domain.Company{{ID: "c1", UserID: "u1", Name: "Acme"}}

	backend := kv.NewMemory()
	s := startStore(t, testDeps(backend, idp, data, nil))
	signIn(t, s, "ana@example.com")

	ctx := context.Background()
	ns := s.Namespace()
	_ = kv.Set(ctx, ns, kv.PendingUserType, "business")
	_ = kv.Set(ctx, ns, kv.OnboardingStep("company"), 2)
	_ = kv.Set(ctx, ns, kv.OpportunityDraft("new"), domain.Opportunity{Title: "Go dev"})

	resp := s.SignOut(ctx)
	s.Wait()

	if resp.RedirectTo != "https://app.example.com/" {
		t.Errorf("unexpected redirect %q", resp.RedirectTo)
	}
	snap := s.Snapshot()
	if snap.IsAuthenticated || snap.User != nil {
		t.Errorf("expected signed-out snapshot, got %+v", snap)
	}
	keys, _ := ns.Keys(ctx)
	if len(keys) != 0 {
		t.Errorf("expected empty client storage, got %v", keys)
	}
}

func TestStore_SwitchCompanyRejectsPendingMembership(t *testing.T) {
	user := &domain.User{ID: "u1", Email: "ana@example.com"}
	data := newMockData()
	data.profiles["u1"] = domain.Profile{ID: "u1"}
	data.roles["u1"] = "business"
	data.owned["u1"] = []domain.Company{{ID: "own", UserID: "u1", Name: "Own"}}
	data.memberships["u1"] = []domain.Membership{
		{ID: "m1", CompanyID: "pending-co", UserID: "u1", Status: domain.MembershipPending, Company: &domain.Company{ID: "pending-co"}},
		{ID: "m2", CompanyID: "member-co", UserID: "u1", Status: domain.MembershipAccepted, Company: &domain.Company{ID: "member-co"}},
	}

	s := startStore(t, testDeps(kv.NewMemory(), newMockIDP(user), data, nil))
	snap := signIn(t, s, "ana@example.com")

	for _, c := range snap.UserCompanies {
		if c.ID == "pending-co" {
			t.Fatal("pending membership must not be listed")
		}
	}
	if snap.ActiveCompanyID != "own" {
		t.Errorf("expected owned company to be active, got %q", snap.ActiveCompanyID)
	}

	_, err := s.SwitchCompany(context.Background(), "pending-co")
	var forbidden *domain.ErrForbidden
	if !errors.As(err, &forbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	if _, err := s.SwitchCompany(context.Background(), "member-co"); err != nil {
		t.Fatalf("expected switch to accepted membership, got %v", err)
	}
	stored, _, _ := kv.Get(context.Background(), s.Namespace(), kv.ActiveCompanyID)
	if stored != "member-co" || s.Snapshot().Company.ID != "member-co" {
		t.Errorf("expected member-co active, got stored=%q", stored)
	}
}

func TestStore_CreateCompanyRequiresBusiness(t *testing.T) {
	user := &domain.User{ID: "u1", Email: "ana@example.com"}
	data := newMockData()
	data.profiles["u1"] = domain.Profile{ID: "u1"}
	data.roles["u1"] = "talent"

	s := startStore(t, testDeps(kv.NewMemory(), newMockIDP(user), data, nil))
	signIn(t, s, "ana@example.com")

	name := "Acme"
	_, err := s.CreateCompany(context.Background(), &domain.CompanyRequest{Name: &name})
	var forbidden *domain.ErrForbidden
	if !errors.As(err, &forbidden) {
		t.Errorf("expected ErrForbidden for talent, got %v", err)
	}
}

func TestStore_CreateAndUpdateCompany(t *testing.T) {
	user := &domain.User{ID: "u1", Email: "ana@example.com"}
	data := newMockData()
	data.profiles["u1"] = domain.Profile{ID: "u1"}
	data.roles["u1"] = "premium_business"

	s := startStore(t, testDeps(kv.NewMemory(), newMockIDP(user), data, nil))
	signIn(t, s, "ana@example.com")

	name := "Acme"
	created, err := s.CreateCompany(context.Background(), &domain.CompanyRequest{Name: &name})
	if err != nil {
		t.Fatalf("CreateCompany failed: %v", err)
	}
	snap := s.Snapshot()
	if snap.ActiveCompanyID != created.ID || len(snap.UserCompanies) != 1 {
		t.Errorf("expected new company to be active and listed, got %+v", snap)
	}

	renamed := "Acme Labs"
	updated, err := s.UpdateCompany(context.Background(), &domain.CompanyRequest{Name: &renamed})
	if err != nil {
		t.Fatalf("UpdateCompany failed: %v", err)
	}
	if updated.Name != "Acme Labs" || s.Snapshot().Company.Name != "Acme Labs" {
		t.Errorf("expected renamed company in snapshot")
	}
}

func TestStore_UpdateProfileRecomputesCompleteness(t *testing.T) {
	user := &domain.User{ID: "u1", Email: "ana@example.com"}
	data := newMockData()
	data.profiles["u1"] = domain.Profile{ID: "u1", FullName: "Ana"}
	data.roles["u1"] = "talent"

	s := startStore(t, testDeps(kv.NewMemory(), newMockIDP(user), data, nil))
	signIn(t, s, "ana@example.com")

	city := "Lima"
	p, err := s.UpdateProfile(context.Background(), &domain.UpdateProfileRequest{City: &city})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if p.City != "Lima" || p.Completeness != 33 {
		t.Errorf("expected city and 33%% completeness, got %+v", p)
	}
	if s.Snapshot().Profile.City != "Lima" {
		t.Error("expected snapshot to carry the updated profile")
	}
}

func TestStore_SwitchUserType(t *testing.T) {
	user := &domain.User{ID: "u1", Email: "ana@example.com"}
	idp := newMockIDP(user)
	data := newMockData()
	data.profiles["u1"] = domain.Profile{ID: "u1"}
	data.roles["u1"] = "talent"

	s := startStore(t, testDeps(kv.NewMemory(), idp, data, nil))
	signIn(t, s, "ana@example.com")

	resp, err := s.SwitchUserType(context.Background(), &domain.SwitchUserTypeRequest{UserType: "business"})
	if err != nil {
		t.Fatalf("SwitchUserType failed: %v", err)
	}
	s.Wait()

	if resp.UserRole != domain.RoleFreemiumBusiness || resp.RedirectTo != "/company-onboarding" {
		t.Errorf("unexpected response %+v", resp)
	}
	if s.Snapshot().UserRole != domain.RoleFreemiumBusiness {
		t.Errorf("expected snapshot role freemium_business, got %s", s.Snapshot().UserRole)
	}
	if data.roles["u1"] != "freemium_business" {
		t.Errorf("expected persisted role update, got %q", data.roles["u1"])
	}
}

func TestStore_RoleWatcherMirrorsRemoteChange(t *testing.T) {
	user := &domain.User{ID: "u1", Email: "ana@example.com"}
	data := newMockData()
	data.profiles["u1"] = domain.Profile{ID: "u1"}
	data.roles["u1"] = "freemium_talent"
	feed := newMockFeed()

	s := startStore(t, testDeps(kv.NewMemory(), newMockIDP(user), data, feed))
	signIn(t, s, "ana@example.com")

	fetchesBefore := data.profileGets
	delivered := feed.push("user_id=eq.u1", domain.ChangeEvent{
		Type:   "UPDATE",
		Record: map[string]any{"user_id": "u1", "role": "premium_talent"},
	})
	if !delivered {
		t.Fatal("expected an active role subscription")
	}

	if s.Snapshot().UserRole != domain.RolePremiumTalent {
		t.Errorf("expected premium_talent, got %s", s.Snapshot().UserRole)
	}
	if data.profileGets != fetchesBefore {
		t.Error("expected role change without running the fetch pipeline")
	}

	s.SignOut(context.Background())
	s.Wait()
	if feed.active() != 0 {
		t.Errorf("expected role subscription to stop on sign-out, got %d", feed.active())
	}
}

func TestStore_NoPublishAfterClose(t *testing.T) {
	user := &domain.User{ID: "u1", Email: "ana@example.com"}
	s := authstate.NewStore("client-1", testDeps(kv.NewMemory(), newMockIDP(user), newMockData(), nil))
	s.Start(context.Background())
	s.Wait()

	published := 0
	s.Subscribe(func(domain.AuthSnapshot) { published++ })
	s.Close()

	_, _ = s.SignIn(context.Background(), &domain.SignInRequest{Email: "ana@example.com", Password: "secret1"})
	s.Wait()

	if published != 0 {
		t.Errorf("expected no snapshots after Close, got %d", published)
	}
	if s.Snapshot().IsAuthenticated {
		t.Error("expected the closed store to keep its last state")
	}
}

// gatedBackend parks reads of one key until released and reports when
// the stored session is deleted.
type gatedBackend struct {
	*kv.Memory
	key      string
	entered  chan struct{}
	release  chan struct{}
	dropped  chan struct{}
	dropOnce sync.Once
	gateOnce sync.Once
}

func newGatedBackend(key string) *gatedBackend {
	return &gatedBackend{
		Memory:  kv.NewMemory(),
		key:     key,
		entered: make(chan struct{}),
		release: make(chan struct{}),
		dropped: make(chan struct{}),
	}
}

func (b *gatedBackend) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if key == b.key {
		b.gateOnce.Do(func() {
			close(b.entered)
			<-b.release
		})
	}
	return b.Memory.Get(ctx, namespace, key)
}

func (b *gatedBackend) Delete(ctx context.Context, namespace, key string) error {
	err := b.Memory.Delete(ctx, namespace, key)
	if key == kv.Session.Name {
		b.dropOnce.Do(func() { close(b.dropped) })
	}
	return err
}

func TestStore_SignOutDuringPipelineLeavesNothingBehind(t *testing.T) {
	user := &domain.User{ID: "u1", Email: "ana@example.com"}
	data := newMockData()
	data.profiles["u1"] = domain.Profile{ID: "u1"}
	data.roles["u1"] = "business"
	data.owned["u1"] = []domain.Company{{ID: "c1", UserID: "u1", Name: "Acme"}}

	backend := newGatedBackend(kv.ActiveCompanyID.Name)
	s := startStore(t, testDeps(backend, newMockIDP(user), data, nil))

	ctx := context.Background()
	if _, err := s.SignIn(ctx, &domain.SignInRequest{Email: "ana@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	select {
	case <-backend.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline never reached the active company lookup")
	}

	done := make(chan domain.SignOutResponse, 1)
	go func() { done <- s.SignOut(ctx) }()

	select {
	case <-backend.dropped:
	case <-time.After(2 * time.Second):
		t.Fatal("sign-out never dropped the session")
	}
	close(backend.release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sign-out did not finish")
	}
	s.Wait()

	keys, err := s.Namespace().Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected empty client storage after sign-out, got %v", keys)
	}
	if snap := s.Snapshot(); snap.IsAuthenticated || snap.User != nil {
		t.Errorf("expected signed-out snapshot, got %+v", snap)
	}
}
