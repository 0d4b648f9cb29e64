// Package service provides the marketplace use cases that sit next to the
// auth state: companies and memberships, opportunities, applications,
// notifications, messaging, onboarding wizards and profile media.
//
// Every operation receives the caller's Account (the client's auth state
// store) and authorizes against its snapshot. The Supabase adapter uses
// the service-role key, so these checks are the only gate.
package service

import (
	"context"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/kv"
)

// Account is the auth state of the calling client.
type Account interface {
	Snapshot() domain.AuthSnapshot
	Namespace() *kv.Namespace
	CreateCompany(ctx context.Context, req *domain.CompanyRequest) (*domain.Company, error)
	PatchProfile(ctx context.Context, updates map[string]any) (*domain.Profile, error)
	// Refetch reloads the user data in the background.
	Refetch()
}

func requireUser(acct Account) (domain.AuthSnapshot, error) {
	snap := acct.Snapshot()
	if !snap.IsAuthenticated || snap.User == nil {
		return snap, &domain.ErrUnauthorized{Message: "Debes iniciar sesión"}
	}
	return snap, nil
}

// requireBusiness returns the snapshot of a business user with an active company.
func requireBusiness(acct Account) (domain.AuthSnapshot, error) {
	snap, err := requireUser(acct)
	if err != nil {
		return snap, err
	}
	if !snap.UserRole.IsBusiness() {
		return snap, &domain.ErrForbidden{Action: "esta acción requiere un perfil de empresa"}
	}
	if snap.Company == nil {
		return snap, &domain.ErrConflict{Message: "Primero debes registrar tu empresa"}
	}
	return snap, nil
}

func requireTalent(acct Account) (domain.AuthSnapshot, error) {
	snap, err := requireUser(acct)
	if err != nil {
		return snap, err
	}
	if !snap.UserRole.IsTalent() {
		return snap, &domain.ErrForbidden{Action: "esta acción requiere un perfil de talento"}
	}
	return snap, nil
}

// operates reports whether the caller may act on behalf of companyID.
func operates(snap domain.AuthSnapshot, companyID string) bool {
	for i := range snap.UserCompanies {
		if snap.UserCompanies[i].ID == companyID {
			return true
		}
	}
	return false
}

// found turns a missing row (nil, nil) into ErrNotFound.
func found[T any](v *T, err error, resource, id string) (*T, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, &domain.ErrNotFound{Resource: resource, ID: id}
	}
	return v, nil
}
