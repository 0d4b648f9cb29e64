package authstate

import (
	"context"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/kv"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/observability"
	"github.com/boddenberg/marketplace-bff-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// UserUpdater writes auth user metadata.
type UserUpdater interface {
	UpdateUser(ctx context.Context, attrs *domain.UserAttributes) (*domain.User, error)
}

// Reconciler re-aligns the persisted role with the signup intent.
type Reconciler struct {
	store   port.UserDataStore
	fetcher *Fetcher
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewReconciler(store port.UserDataStore, fetcher *Fetcher, metrics *observability.Metrics, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: store, fetcher: fetcher, metrics: metrics, logger: logger}
}

// Reconcile returns data unchanged unless the role contradicts the
// academy marker in metadata or the pending signup intent, in which case
// the role is corrected and data fetched again. The pending intent is
// consumed whatever the outcome.
func (r *Reconciler) Reconcile(ctx context.Context, ns *kv.Namespace, user *domain.User, data domain.UserData, updater UserUpdater) domain.UserData {
	ctx, span := tracer.Start(ctx, "Reconciler.Reconcile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", user.ID), attribute.String("role", string(data.Role)))

	pending, hasPending, err := kv.Get(ctx, ns, kv.PendingUserType)
	if err != nil {
		r.logger.Warn("reconciler: failed to read pending user type", zap.Error(err))
		hasPending = false
	}
	original := user.MetadataString(domain.MetaOriginalUserType)

	if original == string(domain.RoleAcademyPremium) && data.Role != domain.RoleAcademyPremium {
		if r.correct(ctx, user, data.Role, domain.RoleAcademyPremium, updater) {
			data = r.fetcher.Fetch(ctx, user)
		}
	}

	if hasPending && pending != "" {
		target, ok := domain.IntentRole(pending)
		switch {
		case !ok:
			r.logger.Warn("reconciler: unknown pending user type", zap.String("user_id", user.ID), zap.String("pending", pending))
		case target.IsBusiness() != data.Role.IsBusiness():
			if r.correct(ctx, user, data.Role, target, updater) {
				data = r.fetcher.Fetch(ctx, user)
			}
		}
	}

	if hasPending {
		if err := kv.Remove(ctx, ns, kv.PendingUserType); err != nil {
			r.logger.Warn("reconciler: failed to clear pending user type", zap.Error(err))
		}
	}
	return data
}

// correct persists target as the user's role. Failures are logged and
// reported as false; the metadata write is best-effort.
func (r *Reconciler) correct(ctx context.Context, user *domain.User, from, target domain.Role, updater UserUpdater) bool {
	if err := r.store.UpdateRole(ctx, user.ID, target); err != nil {
		r.metrics.IncrRoleCorrection("error")
		r.logger.Error("reconciler: corrective role update failed",
			zap.String("user_id", user.ID),
			zap.String("from", string(from)),
			zap.String("to", string(target)),
			zap.Error(err),
		)
		return false
	}
	r.metrics.IncrRoleCorrection("ok")
	r.logger.Info("reconciler: role corrected",
		zap.String("user_id", user.ID),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
	)

	if updater != nil {
		attrs := &domain.UserAttributes{Data: map[string]any{domain.MetaUserType: string(target)}}
		if _, err := updater.UpdateUser(ctx, attrs); err != nil {
			r.logger.Warn("reconciler: failed to sync user metadata", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return true
}
