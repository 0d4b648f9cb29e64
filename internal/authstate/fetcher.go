package authstate

import (
	"context"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/observability"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/resilience"
	"github.com/boddenberg/marketplace-bff-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fetcher resolves profile, role and company of a user, healing a
// missing profile once its retries run out.
type Fetcher struct {
	store       port.UserDataStore
	metrics     *observability.Metrics
	logger      *zap.Logger
	maxAttempts int
	retryBase   time.Duration
}

// NewFetcher creates a Fetcher. Zero values fall back to 3 attempts and 1s.
func NewFetcher(store port.UserDataStore, maxAttempts int, retryBase time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Fetcher {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if retryBase <= 0 {
		retryBase = time.Second
	}
	return &Fetcher{
		store:       store,
		metrics:     metrics,
		logger:      logger,
		maxAttempts: maxAttempts,
		retryBase:   retryBase,
	}
}

// fallback is what callers get when the remote API cannot be read.
func fallback() domain.UserData {
	return domain.UserData{Role: domain.DefaultRole}
}

// Fetch never fails; remote errors degrade to the fallback record.
func (f *Fetcher) Fetch(ctx context.Context, user *domain.User) domain.UserData {
	ctx, span := tracer.Start(ctx, "Fetcher.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", user.ID))

	var (
		profile *domain.Profile
		rawRole string
	)
	for attempt := 1; ; attempt++ {
		var err error
		profile, rawRole, err = f.fetchCore(ctx, user.ID)
		if err != nil {
			f.logger.Error("fetcher: failed to load user data", zap.String("user_id", user.ID), zap.Error(err))
			return fallback()
		}
		if profile != nil && rawRole != "" {
			break
		}
		if attempt >= f.maxAttempts {
			break
		}

		f.metrics.IncrFetchRetry()
		f.logger.Info("fetcher: user data not visible yet, retrying",
			zap.String("user_id", user.ID),
			zap.Int("attempt", attempt),
			zap.Bool("has_profile", profile != nil),
			zap.Bool("has_role", rawRole != ""),
		)
		if err := resilience.Sleep(ctx, resilience.LinearBackoff(f.retryBase, attempt)); err != nil {
			return fallback()
		}
	}

	if profile == nil {
		profile = f.healProfile(ctx, user)
	}

	role := domain.DefaultRole
	if rawRole == "" {
		f.logger.Warn("fetcher: role missing, using default", zap.String("user_id", user.ID), zap.String("role", string(role)))
	} else {
		role = domain.MapRole(rawRole)
	}

	data := domain.UserData{Profile: profile, Role: role}
	if role.IsBusiness() {
		data.Company, data.Companies = f.fetchCompanies(ctx, user.ID)
	}
	return data
}

func (f *Fetcher) fetchCore(ctx context.Context, userID string) (*domain.Profile, string, error) {
	var (
		profile *domain.Profile
		role    string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = f.store.GetProfile(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		role, err = f.store.GetRole(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, "", err
	}
	return profile, role, nil
}

// healProfile creates the missing profile; concurrent creators merge.
func (f *Fetcher) healProfile(ctx context.Context, user *domain.User) *domain.Profile {
	p := &domain.Profile{ID: user.ID, FullName: user.MetadataString(domain.MetaFullName)}
	p.Completeness = p.ComputeCompleteness()

	saved, err := f.store.UpsertProfile(ctx, p)
	if err != nil {
		f.logger.Error("fetcher: failed to create missing profile", zap.String("user_id", user.ID), zap.Error(err))
		return nil
	}
	f.metrics.IncrProfileHealed()
	f.logger.Info("fetcher: missing profile created", zap.String("user_id", user.ID))
	return saved
}

// fetchCompanies returns the primary company and every company the user
// may operate: owned ones and accepted memberships, pending ones excluded.
func (f *Fetcher) fetchCompanies(ctx context.Context, userID string) (*domain.Company, []domain.Company) {
	var (
		owned       []domain.Company
		memberships []domain.Membership
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		owned, err = f.store.ListOwnedCompanies(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		memberships, err = f.store.ListMemberships(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		f.logger.Error("fetcher: failed to load companies", zap.String("user_id", userID), zap.Error(err))
		return nil, nil
	}

	seen := make(map[string]bool)
	companies := make([]domain.Company, 0, len(owned)+len(memberships))
	for _, c := range owned {
		if !seen[c.ID] {
			seen[c.ID] = true
			companies = append(companies, c)
		}
	}
	var fromMembership *domain.Company
	for _, m := range memberships {
		if m.Status != domain.MembershipAccepted || m.Company == nil {
			continue
		}
		if fromMembership == nil {
			fromMembership = m.Company
		}
		if !seen[m.Company.ID] {
			seen[m.Company.ID] = true
			companies = append(companies, *m.Company)
		}
	}

	switch {
	case len(owned) > 0:
		c := owned[0]
		return &c, companies
	case fromMembership != nil:
		c := *fromMembership
		return &c, companies
	}
	return nil, companies
}
