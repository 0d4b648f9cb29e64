package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Profiles
// ============================================================

func (c *Client) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var profile *domain.Profile
	err := c.execute(ctx, "profiles", func() error {
		body, err := c.doGet(ctx, fmt.Sprintf("profiles?id=%s&select=*", eq(userID)))
		if err != nil {
			return err
		}
		profile, err = decodeFirst[domain.Profile](body, "profile")
		return err
	})
	return profile, err
}

// UpsertProfile inserts the profile or merges it into the existing row.
func (c *Client) UpsertProfile(ctx context.Context, profile *domain.Profile) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", profile.ID))

	row, err := insertPayload(profile)
	if err != nil {
		return nil, err
	}
	row["updated_at"] = time.Now().UTC()

	var saved *domain.Profile
	err = c.execute(ctx, "profiles", func() error {
		body, err := c.doPost(ctx, "profiles?on_conflict=id", row, true)
		if err != nil {
			return err
		}
		saved, err = decodeFirst[domain.Profile](body, "profile")
		return err
	})
	if err != nil {
		return nil, err
	}
	if saved == nil {
		saved = profile
	}
	c.logger.Info("supabase: profile upserted", zap.String("user_id", profile.ID))
	return saved, nil
}

func (c *Client) UpdateProfile(ctx context.Context, userID string, updates map[string]any) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateProfile")
	defer span.End()

	updates["updated_at"] = time.Now().UTC()

	var profile *domain.Profile
	err := c.execute(ctx, "profiles", func() error {
		body, err := c.doPatch(ctx, fmt.Sprintf("profiles?id=%s", eq(userID)), updates)
		if err != nil {
			return err
		}
		profile, err = decodeFirst[domain.Profile](body, "profile")
		return err
	})
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: userID}
	}
	return profile, nil
}

// ============================================================
// Roles (user_roles)
// ============================================================

type roleRow struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// GetRole returns the persisted role string, "" when the user has no row.
func (c *Client) GetRole(ctx context.Context, userID string) (string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetRole")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var role string
	err := c.execute(ctx, "user_roles", func() error {
		body, err := c.doGet(ctx, fmt.Sprintf("user_roles?user_id=%s&select=user_id,role&limit=1", eq(userID)))
		if err != nil {
			return err
		}
		row, err := decodeFirst[roleRow](body, "role")
		if err != nil {
			return err
		}
		if row != nil {
			role = row.Role
		}
		return nil
	})
	return role, err
}

// UpdateRole writes the role, creating the row when missing.
func (c *Client) UpdateRole(ctx context.Context, userID string, role domain.Role) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateRole")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("role", string(role)))

	return c.execute(ctx, "user_roles", func() error {
		_, err := c.doPost(ctx, "user_roles?on_conflict=user_id", roleRow{UserID: userID, Role: string(role)}, true)
		return err
	})
}
