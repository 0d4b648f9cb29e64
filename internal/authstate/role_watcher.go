package authstate

import (
	"context"
	"sync"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/port"

	"go.uber.org/zap"
)

// RoleWatcher mirrors server-side changes of the user's role row.
type RoleWatcher struct {
	feed   port.ChangeFeed
	logger *zap.Logger

	mu     sync.Mutex
	userID string
	token  string
	sub    port.FeedSubscription
}

// NewRoleWatcher returns a watcher; a nil feed disables it.
func NewRoleWatcher(feed port.ChangeFeed, logger *zap.Logger) *RoleWatcher {
	return &RoleWatcher{feed: feed, logger: logger}
}

// RoleSubscription selects UPDATE events of one user's role row.
func RoleSubscription(userID string) domain.ChangeSubscription {
	return domain.ChangeSubscription{
		Schema: "public",
		Table:  "user_roles",
		Event:  "UPDATE",
		Filter: "user_id=eq." + userID,
	}
}

// Watch follows userID's role, calling onRole with the mapped value of
// every update. Watching the same user again only forwards a changed
// access token to the live subscription.
func (w *RoleWatcher) Watch(ctx context.Context, userID, accessToken string, onRole func(domain.Role)) error {
	if w.feed == nil {
		return nil
	}

	w.mu.Lock()
	if w.sub != nil && w.userID == userID {
		sub := w.sub
		changed := w.token != accessToken
		w.token = accessToken
		w.mu.Unlock()
		if changed {
			sub.SetAccessToken(accessToken)
		}
		return nil
	}
	previous := w.sub
	w.sub = nil
	w.userID = ""
	w.token = ""
	w.mu.Unlock()
	if previous != nil {
		previous.Close()
	}

	sub, err := w.feed.Subscribe(ctx, RoleSubscription(userID), accessToken, func(e domain.ChangeEvent) {
		raw := e.RecordString("role")
		if raw == "" {
			return
		}
		role := domain.MapRole(raw)
		w.logger.Info("role watcher: role changed remotely", zap.String("user_id", userID), zap.String("role", string(role)))
		onRole(role)
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.userID = userID
	w.token = accessToken
	w.sub = sub
	w.mu.Unlock()
	return nil
}

// Stop ends the current subscription, if any.
func (w *RoleWatcher) Stop() {
	w.mu.Lock()
	sub := w.sub
	w.sub = nil
	w.userID = ""
	w.token = ""
	w.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}
