package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Companies
// ============================================================

func (c *Client) ListOwnedCompanies(ctx context.Context, userID string) ([]domain.Company, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListOwnedCompanies")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var companies []domain.Company
	err := c.execute(ctx, "companies", func() error {
		body, err := c.doGet(ctx, fmt.Sprintf("companies?user_id=%s&select=*&order=created_at.asc", eq(userID)))
		if err != nil {
			return err
		}
		companies, err = decodeRows[domain.Company](body, "companies")
		return err
	})
	return companies, err
}

func (c *Client) GetCompany(ctx context.Context, companyID string) (*domain.Company, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCompany")
	defer span.End()

	var company *domain.Company
	err := c.execute(ctx, "companies", func() error {
		body, err := c.doGet(ctx, fmt.Sprintf("companies?id=%s&select=*", eq(companyID)))
		if err != nil {
			return err
		}
		company, err = decodeFirst[domain.Company](body, "company")
		return err
	})
	return company, err
}

func (c *Client) CreateCompany(ctx context.Context, company *domain.Company) (*domain.Company, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateCompany")
	defer span.End()

	row, err := insertPayload(company)
	if err != nil {
		return nil, err
	}

	var created *domain.Company
	err = c.execute(ctx, "companies", func() error {
		body, err := c.doPost(ctx, "companies", row, false)
		if err != nil {
			return err
		}
		created, err = decodeFirst[domain.Company](body, "company")
		return err
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, &domain.ErrExternalService{Service: "supabase/companies", Err: fmt.Errorf("empty insert response")}
	}
	return created, nil
}

func (c *Client) UpdateCompany(ctx context.Context, companyID string, updates map[string]any) (*domain.Company, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateCompany")
	defer span.End()

	var company *domain.Company
	err := c.execute(ctx, "companies", func() error {
		body, err := c.doPatch(ctx, fmt.Sprintf("companies?id=%s", eq(companyID)), updates)
		if err != nil {
			return err
		}
		company, err = decodeFirst[domain.Company](body, "company")
		return err
	})
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, &domain.ErrNotFound{Resource: "company", ID: companyID}
	}
	return company, nil
}

// ============================================================
// Memberships (company_user_roles)
// ============================================================

// ListMemberships returns every membership of the user with its company
// embedded, most recently accepted first.
func (c *Client) ListMemberships(ctx context.Context, userID string) ([]domain.Membership, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMemberships")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var memberships []domain.Membership
	err := c.execute(ctx, "company_user_roles", func() error {
		body, err := c.doGet(ctx, fmt.Sprintf(
			"company_user_roles?user_id=%s&select=*,companies(*)&order=accepted_at.desc.nullslast", eq(userID)))
		if err != nil {
			return err
		}
		memberships, err = decodeRows[domain.Membership](body, "memberships")
		return err
	})
	return memberships, err
}

func (c *Client) ListCompanyMembers(ctx context.Context, companyID string) ([]domain.Membership, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCompanyMembers")
	defer span.End()

	var members []domain.Membership
	err := c.execute(ctx, "company_user_roles", func() error {
		body, err := c.doGet(ctx, fmt.Sprintf("company_user_roles?company_id=%s&select=*&order=created_at.asc", eq(companyID)))
		if err != nil {
			return err
		}
		members, err = decodeRows[domain.Membership](body, "members")
		return err
	})
	return members, err
}

func (c *Client) GetMembership(ctx context.Context, companyID, userID string) (*domain.Membership, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetMembership")
	defer span.End()

	var m *domain.Membership
	err := c.execute(ctx, "company_user_roles", func() error {
		body, err := c.doGet(ctx, fmt.Sprintf("company_user_roles?company_id=%s&user_id=%s&select=*", eq(companyID), eq(userID)))
		if err != nil {
			return err
		}
		m, err = decodeFirst[domain.Membership](body, "membership")
		return err
	})
	return m, err
}

func (c *Client) CreateMembership(ctx context.Context, m *domain.Membership) (*domain.Membership, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateMembership")
	defer span.End()

	row, err := insertPayload(m)
	if err != nil {
		return nil, err
	}

	var created *domain.Membership
	err = c.execute(ctx, "company_user_roles", func() error {
		body, err := c.doPost(ctx, "company_user_roles", row, false)
		if err != nil {
			return err
		}
		created, err = decodeFirst[domain.Membership](body, "membership")
		return err
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = m
	}
	return created, nil
}

func (c *Client) UpdateMembershipStatus(ctx context.Context, membershipID string, status domain.MembershipStatus) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateMembershipStatus")
	defer span.End()
	span.SetAttributes(attribute.String("membership.status", string(status)))

	updates := map[string]any{"status": status}
	if status == domain.MembershipAccepted {
		updates["accepted_at"] = time.Now().UTC()
	}
	return c.execute(ctx, "company_user_roles", func() error {
		_, err := c.doPatch(ctx, fmt.Sprintf("company_user_roles?id=%s", eq(membershipID)), updates)
		return err
	})
}

// GetInvitation returns the pending membership carrying token, or nil.
func (c *Client) GetInvitation(ctx context.Context, token string) (*domain.Membership, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetInvitation")
	defer span.End()

	var m *domain.Membership
	err := c.execute(ctx, "company_user_roles", func() error {
		body, err := c.doGet(ctx, fmt.Sprintf(
			"company_user_roles?invitation_token=%s&status=eq.pending&select=*,companies(*)", eq(token)))
		if err != nil {
			return err
		}
		m, err = decodeFirst[domain.Membership](body, "invitation")
		return err
	})
	return m, err
}

// AcceptInvitation binds the invited membership to userID and consumes the token.
func (c *Client) AcceptInvitation(ctx context.Context, membershipID, userID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.AcceptInvitation")
	defer span.End()

	var accepted *domain.Membership
	err := c.execute(ctx, "company_user_roles", func() error {
		body, err := c.doPatch(ctx, fmt.Sprintf("company_user_roles?id=%s&status=eq.pending", eq(membershipID)), map[string]any{
			"user_id":          userID,
			"status":           domain.MembershipAccepted,
			"accepted_at":      time.Now().UTC(),
			"invitation_token": nil,
		})
		if err != nil {
			return err
		}
		accepted, err = decodeFirst[domain.Membership](body, "membership")
		return err
	})
	if err != nil {
		return err
	}
	// No row back: someone else consumed the invitation first.
	if accepted == nil {
		return &domain.ErrNotFound{Resource: "invitation", ID: membershipID}
	}
	return nil
}
