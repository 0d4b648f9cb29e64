package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/kv"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/observability"
	"github.com/boddenberg/marketplace-bff-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var notificationTracer = otel.Tracer("service/notification")

const notificationLimit = 50

// NotificationService lists and acknowledges the caller's notifications.
// Lists are cached per user and mirrored into the client namespace.
type NotificationService struct {
	store   port.NotificationStore
	cache   port.Cache[[]domain.Notification]
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewNotificationService(store port.NotificationStore, cache port.Cache[[]domain.Notification], metrics *observability.Metrics, logger *zap.Logger) *NotificationService {
	return &NotificationService{store: store, cache: cache, metrics: metrics, logger: logger}
}

func cacheKey(userID string) string {
	return fmt.Sprintf("notifications:%s", userID)
}

func (s *NotificationService) List(ctx context.Context, acct Account) ([]domain.Notification, error) {
	ctx, span := notificationTracer.Start(ctx, "NotificationService.List")
	defer span.End()

	snap, err := requireUser(acct)
	if err != nil {
		return nil, err
	}
	key := cacheKey(snap.User.ID)
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.IncrCacheHit("notifications")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("notifications")

	list, err := s.store.ListNotifications(ctx, snap.User.ID, notificationLimit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Notification{}
	}
	s.cache.Set(key, list)
	if err := kv.Set(ctx, acct.Namespace(), kv.Notifications, list); err != nil {
		s.logger.Warn("failed to mirror notifications", zap.Error(err))
	}
	return list, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, acct Account) (int, error) {
	list, err := s.List(ctx, acct)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range list {
		if !list[i].Read {
			n++
		}
	}
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, acct Account, notificationID string) error {
	ctx, span := notificationTracer.Start(ctx, "NotificationService.MarkRead")
	defer span.End()

	snap, err := requireUser(acct)
	if err != nil {
		return err
	}
	if err := s.store.MarkNotificationRead(ctx, snap.User.ID, notificationID); err != nil {
		return err
	}
	s.invalidate(ctx, acct, snap.User.ID)
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, acct Account) error {
	ctx, span := notificationTracer.Start(ctx, "NotificationService.MarkAllRead")
	defer span.End()

	snap, err := requireUser(acct)
	if err != nil {
		return err
	}
	if err := s.store.MarkAllNotificationsRead(ctx, snap.User.ID); err != nil {
		return err
	}
	s.invalidate(ctx, acct, snap.User.ID)
	return nil
}

func (s *NotificationService) invalidate(ctx context.Context, acct Account, userID string) {
	s.cache.Delete(cacheKey(userID))
	if err := kv.Remove(ctx, acct.Namespace(), kv.Notifications); err != nil {
		s.logger.Warn("failed to drop mirrored notifications", zap.Error(err))
	}
}
