package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Opportunities
// ============================================================

func (c *Client) ListOpportunities(ctx context.Context, companyID, status string) ([]domain.Opportunity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListOpportunities")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", companyID), attribute.String("status", status))

	path := "opportunities?select=*&order=created_at.desc"
	if companyID != "" {
		path += "&company_id=" + eq(companyID)
	}
	if status != "" {
		path += "&status=" + eq(status)
	}

	var opportunities []domain.Opportunity
	err := c.execute(ctx, "opportunities", func() error {
		body, err := c.doGet(ctx, path)
		if err != nil {
			return err
		}
		opportunities, err = decodeRows[domain.Opportunity](body, "opportunities")
		return err
	})
	return opportunities, err
}

func (c *Client) GetOpportunity(ctx context.Context, id string) (*domain.Opportunity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetOpportunity")
	defer span.End()

	var o *domain.Opportunity
	err := c.execute(ctx, "opportunities", func() error {
		body, err := c.doGet(ctx, fmt.Sprintf("opportunities?id=%s&select=*", eq(id)))
		if err != nil {
			return err
		}
		o, err = decodeFirst[domain.Opportunity](body, "opportunity")
		return err
	})
	return o, err
}

func (c *Client) CreateOpportunity(ctx context.Context, o *domain.Opportunity) (*domain.Opportunity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateOpportunity")
	defer span.End()

	row, err := insertPayload(o)
	if err != nil {
		return nil, err
	}

	var created *domain.Opportunity
	err = c.execute(ctx, "opportunities", func() error {
		body, err := c.doPost(ctx, "opportunities", row, false)
		if err != nil {
			return err
		}
		created, err = decodeFirst[domain.Opportunity](body, "opportunity")
		return err
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, &domain.ErrExternalService{Service: "supabase/opportunities", Err: fmt.Errorf("empty insert response")}
	}
	return created, nil
}

func (c *Client) UpdateOpportunity(ctx context.Context, id string, updates map[string]any) (*domain.Opportunity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateOpportunity")
	defer span.End()

	updates["updated_at"] = time.Now().UTC()

	var o *domain.Opportunity
	err := c.execute(ctx, "opportunities", func() error {
		body, err := c.doPatch(ctx, fmt.Sprintf("opportunities?id=%s", eq(id)), updates)
		if err != nil {
			return err
		}
		o, err = decodeFirst[domain.Opportunity](body, "opportunity")
		return err
	})
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, &domain.ErrNotFound{Resource: "opportunity", ID: id}
	}
	return o, nil
}

func (c *Client) DeleteOpportunity(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteOpportunity")
	defer span.End()

	return c.execute(ctx, "opportunities", func() error {
		return c.doDelete(ctx, fmt.Sprintf("opportunities?id=%s", eq(id)))
	})
}

// ============================================================
// Applications
// ============================================================

func (c *Client) CreateApplication(ctx context.Context, a *domain.Application) (*domain.Application, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateApplication")
	defer span.End()

	row, err := insertPayload(a)
	if err != nil {
		return nil, err
	}

	var created *domain.Application
	err = c.execute(ctx, "applications", func() error {
		body, err := c.doPost(ctx, "applications", row, false)
		if err != nil {
			return err
		}
		created, err = decodeFirst[domain.Application](body, "application")
		return err
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = a
	}
	return created, nil
}

func (c *Client) GetApplication(ctx context.Context, id string) (*domain.Application, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetApplication")
	defer span.End()

	var a *domain.Application
	err := c.execute(ctx, "applications", func() error {
		body, err := c.doGet(ctx, fmt.Sprintf("applications?id=%s&select=*", eq(id)))
		if err != nil {
			return err
		}
		a, err = decodeFirst[domain.Application](body, "application")
		return err
	})
	return a, err
}

func (c *Client) ListApplicationsByOpportunity(ctx context.Context, opportunityID string) ([]domain.Application, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListApplicationsByOpportunity")
	defer span.End()

	return c.listApplications(ctx, "opportunity_id", opportunityID)
}

func (c *Client) ListApplicationsByUser(ctx context.Context, userID string) ([]domain.Application, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListApplicationsByUser")
	defer span.End()

	return c.listApplications(ctx, "user_id", userID)
}

func (c *Client) listApplications(ctx context.Context, column, value string) ([]domain.Application, error) {
	var apps []domain.Application
	err := c.execute(ctx, "applications", func() error {
		body, err := c.doGet(ctx, fmt.Sprintf("applications?%s=%s&select=*&order=created_at.desc", column, eq(value)))
		if err != nil {
			return err
		}
		apps, err = decodeRows[domain.Application](body, "applications")
		return err
	})
	return apps, err
}

func (c *Client) UpdateApplicationStatus(ctx context.Context, id, status string) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateApplicationStatus")
	defer span.End()
	span.SetAttributes(attribute.String("status", status))

	return c.execute(ctx, "applications", func() error {
		_, err := c.doPatch(ctx, fmt.Sprintf("applications?id=%s", eq(id)), map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
		return err
	})
}

// ============================================================
// Notifications
// ============================================================

func (c *Client) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListNotifications")
	defer span.End()

	var list []domain.Notification
	err := c.execute(ctx, "notifications", func() error {
		body, err := c.doGet(ctx, fmt.Sprintf("notifications?user_id=%s&select=*&order=created_at.desc&limit=%d", eq(userID), limit))
		if err != nil {
			return err
		}
		list, err = decodeRows[domain.Notification](body, "notifications")
		return err
	})
	return list, err
}

func (c *Client) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.MarkNotificationRead")
	defer span.End()

	return c.execute(ctx, "notifications", func() error {
		_, err := c.doPatch(ctx, fmt.Sprintf("notifications?id=%s&user_id=%s", eq(notificationID), eq(userID)),
			map[string]any{"read": true})
		return err
	})
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.MarkAllNotificationsRead")
	defer span.End()

	return c.execute(ctx, "notifications", func() error {
		_, err := c.doPatch(ctx, fmt.Sprintf("notifications?user_id=%s&read=eq.false", eq(userID)),
			map[string]any{"read": true})
		return err
	})
}
