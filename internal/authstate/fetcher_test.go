package authstate_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
)

func TestFetch_HealsMissingProfileAfterRetries(t *testing.T) {
	data := newMockData()
	data.roles["u1"] = "talent"
	f := newFetcher(data)

	user := &domain.User{ID: "u1", Metadata: map[string]any{domain.MetaFullName: "Ana Pérez"}}
	got := f.Fetch(context.Background(), user)

	if data.profileGets != 3 {
		t.Errorf("expected 3 attempts, got %d", data.profileGets)
	}
	if data.upsertCount() != 1 {
		t.Errorf("expected exactly one upsert, got %d", data.upsertCount())
	}
	if got.Profile == nil || got.Profile.FullName != "Ana Pérez" {
		t.Errorf("expected healed profile with metadata name, got %+v", got.Profile)
	}
	if got.Role != domain.RoleFreemiumTalent {
		t.Errorf("expected mapped role freemium_talent, got %s", got.Role)
	}
}

func TestFetch_IsIdempotent(t *testing.T) {
	data := newMockData()
	data.roles["u1"] = "freemium_talent"
	f := newFetcher(data)
	user := &domain.User{ID: "u1"}

	first := f.Fetch(context.Background(), user)
	second := f.Fetch(context.Background(), user)

	if data.upsertCount() != 1 {
		t.Errorf("expected a single profile row to be created, got %d upserts", data.upsertCount())
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical results, got %+v and %+v", first, second)
	}
}

func TestFetch_MissingRoleFallsBackWithoutWrite(t *testing.T) {
	data := newMockData()
	data.profiles["u1"] = domain.Profile{ID: "u1", FullName: "Ana"}
	f := newFetcher(data)

	got := f.Fetch(context.Background(), &domain.User{ID: "u1"})

	if got.Role != domain.DefaultRole {
		t.Errorf("expected default role, got %s", got.Role)
	}
	if data.roleUpdateCount() != 0 {
		t.Errorf("expected no role write, got %d", data.roleUpdateCount())
	}
	if data.upsertCount() != 0 {
		t.Errorf("expected existing profile to be kept, got %d upserts", data.upsertCount())
	}
}

func TestFetch_RemoteErrorDegrades(t *testing.T) {
	data := newMockData()
	data.getErr = errors.New("connection refused")
	f := newFetcher(data)

	got := f.Fetch(context.Background(), &domain.User{ID: "u1"})

	want := domain.UserData{Role: domain.RoleFreemiumTalent}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected fallback %+v, got %+v", want, got)
	}
}

func TestFetch_CancelledContextDegrades(t *testing.T) {
	data := newMockData()
	data.roles["u1"] = "talent"
	f := newFetcher(data)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	got := f.Fetch(ctx, &domain.User{ID: "u1"})
	if got.Role != domain.DefaultRole || got.Profile != nil {
		t.Errorf("expected fallback, got %+v", got)
	}
	if time.Since(start) > time.Second {
		t.Error("expected fetch to stop waiting on a cancelled context")
	}
}

func TestFetch_BusinessCompanyResolution(t *testing.T) {
	tests := []struct {
		name          string
		owned         []domain.Company
		memberships   []domain.Membership
		wantCompany   string
		wantCompanies []string
	}{
		{
			name:          "owned company wins",
			owned:         []domain.Company{{ID: "own", UserID: "u1"}},
			memberships:   []domain.Membership{{CompanyID: "m1", Status: domain.MembershipAccepted, Company: &domain.Company{ID: "m1"}}},
			wantCompany:   "own",
			wantCompanies: []string{"own", "m1"},
		},
		{
			name: "most recent accepted membership",
			memberships: []domain.Membership{
				{CompanyID: "pend", Status: domain.MembershipPending, Company: &domain.Company{ID: "pend"}},
				{CompanyID: "recent", Status: domain.MembershipAccepted, Company: &domain.Company{ID: "recent"}},
				{CompanyID: "older", Status: domain.MembershipAccepted, Company: &domain.Company{ID: "older"}},
			},
			wantCompany:   "recent",
			wantCompanies: []string{"recent", "older"},
		},
		{
			name:          "no company yet",
			memberships:   []domain.Membership{{CompanyID: "pend", Status: domain.MembershipPending, Company: &domain.Company{ID: "pend"}}},
			wantCompanies: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := newMockData()
			data.profiles["u1"] = domain.Profile{ID: "u1"}
			data.roles["u1"] = "business"
			data.owned["u1"] = tt.owned
			data.memberships["u1"] = tt.memberships

			got := newFetcher(data).Fetch(context.Background(), &domain.User{ID: "u1"})

			if got.Role != domain.RoleFreemiumBusiness {
				t.Errorf("expected freemium_business, got %s", got.Role)
			}
			gotCompany := ""
			if got.Company != nil {
				gotCompany = got.Company.ID
			}
			if gotCompany != tt.wantCompany {
				t.Errorf("expected company %q, got %q", tt.wantCompany, gotCompany)
			}
			ids := []string{}
			for _, c := range got.Companies {
				ids = append(ids, c.ID)
			}
			if !reflect.DeepEqual(ids, tt.wantCompanies) {
				t.Errorf("expected companies %v, got %v", tt.wantCompanies, ids)
			}
		})
	}
}
