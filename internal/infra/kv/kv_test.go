package kv_test

import (
	"context"
	"testing"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/kv"
)

func TestKV_SetGetRemove(t *testing.T) {
	ctx := context.Background()
	ns := kv.NewNamespace(kv.NewMemory(), "client-1")

	if err := kv.Set(ctx, ns, kv.PendingUserType, "business"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := kv.Get(ctx, ns, kv.PendingUserType)
	if err != nil || !ok {
		t.Fatalf("expected value, got ok=%v err=%v", ok, err)
	}
	if got != "business" {
		t.Errorf("expected 'business', got %q", got)
	}

	if err := kv.Remove(ctx, ns, kv.PendingUserType); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, ns, kv.PendingUserType); ok {
		t.Error("expected key to be removed")
	}
}

func TestKV_VersionMismatchReadsAsAbsent(t *testing.T) {
	ctx := context.Background()
	ns := kv.NewNamespace(kv.NewMemory(), "client-1")

	v1 := kv.NewKey[string]("draft", 1)
	v2 := kv.NewKey[string]("draft", 2)

	if err := kv.Set(ctx, ns, v1, "old shape"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, ok, err := kv.Get(ctx, ns, v2); ok || err != nil {
		t.Errorf("expected absent value for newer version, got ok=%v err=%v", ok, err)
	}
}

func TestKV_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	a := kv.NewNamespace(backend, "client-a")
	b := kv.NewNamespace(backend, "client-b")

	_ = kv.Set(ctx, a, kv.ActiveCompanyID, "company-1")

	if _, ok, _ := kv.Get(ctx, b, kv.ActiveCompanyID); ok {
		t.Error("expected client-b not to see client-a's key")
	}
}

func TestKV_ClearRemovesEveryKey(t *testing.T) {
	ctx := context.Background()
	ns := kv.NewNamespace(kv.NewMemory(), "client-1")

	_ = kv.Set(ctx, ns, kv.PendingUserType, "talent")
	_ = kv.Set(ctx, ns, kv.ActiveCompanyID, "company-1")
	_ = kv.Set(ctx, ns, kv.Session, domain.Session{AccessToken: "tok"})
	_ = kv.Set(ctx, ns, kv.OpportunityDraft("new"), domain.Opportunity{Title: "Backend dev"})
	_ = kv.Set(ctx, ns, kv.OnboardingStep("talent"), 2)

	if err := ns.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	keys, err := ns.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}

func TestKV_EmptyNamespace(t *testing.T) {
	ns := kv.NewNamespace(kv.NewMemory(), "")

	if err := kv.Set(context.Background(), ns, kv.PendingUserType, "talent"); err != kv.ErrEmptyNamespace {
		t.Errorf("expected ErrEmptyNamespace, got %v", err)
	}
}

func TestKV_OnboardingKeyNames(t *testing.T) {
	if got := kv.OnboardingStep("talent").Name; got != "onboarding.currentStep" {
		t.Errorf("unexpected talent step key %q", got)
	}
	if got := kv.OnboardingStep("company").Name; got != "company-onboarding.currentStep" {
		t.Errorf("unexpected company step key %q", got)
	}
	if got := kv.OpportunityDraft("abc").Name; got != "opportunity-draft-abc" {
		t.Errorf("unexpected draft key %q", got)
	}
}
