package authstate_test

import (
	"testing"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/authstate"
	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/kv"
)

func TestRegistry_ReusesStorePerClient(t *testing.T) {
	r := authstate.NewRegistry(testDeps(kv.NewMemory(), newMockIDP(), newMockData(), nil))
	defer r.Close()

	a := r.Get("client-a")
	if r.Get("client-a") != a {
		t.Error("expected the same store for the same client id")
	}
	b := r.Get("client-b")
	if a == b {
		t.Error("expected distinct stores per client id")
	}
	if a.Namespace().ID() != "client-a" || b.ClientID() != "client-b" {
		t.Errorf("unexpected namespaces %q / %q", a.Namespace().ID(), b.ClientID())
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 stores, got %d", r.Len())
	}
}

func TestRegistry_CloseStopsEveryStore(t *testing.T) {
	r := authstate.NewRegistry(testDeps(kv.NewMemory(), newMockIDP(), newMockData(), nil))
	r.Get("client-a")
	r.Get("client-b")

	r.Close()

	if r.Len() != 0 {
		t.Errorf("expected no stores after Close, got %d", r.Len())
	}
}

func TestRegistry_ReapsIdleStores(t *testing.T) {
	deps := testDeps(kv.NewMemory(), newMockIDP(), newMockData(), nil)
	deps.Config.IdleTTL = 20 * time.Millisecond
	r := authstate.NewRegistry(deps)
	defer r.Close()

	first := r.Get("client-a")
	waitFor(t, func() bool { return r.Len() == 0 })

	if r.Get("client-a") == first {
		t.Error("expected a fresh store after the idle one was reaped")
	}
}

func TestRegistry_KeepsSubscribedStores(t *testing.T) {
	deps := testDeps(kv.NewMemory(), newMockIDP(), newMockData(), nil)
	deps.Config.IdleTTL = 20 * time.Millisecond
	r := authstate.NewRegistry(deps)
	defer r.Close()

	watched := r.Get("client-a")
	unsubscribe := watched.Subscribe(func(domain.AuthSnapshot) {})
	r.Get("client-b")

	waitFor(t, func() bool { return r.Len() == 1 })
	if r.Get("client-a") != watched {
		t.Fatal("expected the subscribed store to survive")
	}

	unsubscribe()
	waitFor(t, func() bool { return r.Len() == 0 })
}
