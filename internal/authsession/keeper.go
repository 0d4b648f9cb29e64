// Package authsession keeps the auth session of one browser client:
// it persists the session in the client namespace, restores and refreshes
// it, and notifies subscribers of auth events.
package authsession

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/kv"
	"github.com/boddenberg/marketplace-bff-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var tracer = otel.Tracer("authsession")

const (
	// DefaultRefreshLeeway is how long before expiry a session is refreshed.
	DefaultRefreshLeeway = time.Minute
	refreshTimeout       = 15 * time.Second
)

// Keeper owns the session of one client.
type Keeper struct {
	idp      port.IdentityProvider
	ns       *kv.Namespace
	verifier *TokenVerifier
	logger   *zap.Logger
	leeway   time.Duration

	mu      sync.Mutex
	session *domain.Session
	loaded  bool
	subs    map[int]func(domain.AuthChange)
	nextSub int
	timer   *time.Timer
	closed  bool
}

// New creates a Keeper. verifier may be nil.
func New(idp port.IdentityProvider, ns *kv.Namespace, verifier *TokenVerifier, logger *zap.Logger) *Keeper {
	return &Keeper{
		idp:      idp,
		ns:       ns,
		verifier: verifier,
		logger:   logger.With(zap.String("client_id", ns.ID())),
		leeway:   DefaultRefreshLeeway,
		subs:     make(map[int]func(domain.AuthChange)),
	}
}

// OnAuthStateChange registers fn for every later auth event.
func (k *Keeper) OnAuthStateChange(fn func(domain.AuthChange)) (unsubscribe func()) {
	k.mu.Lock()
	id := k.nextSub
	k.nextSub++
	k.subs[id] = fn
	k.mu.Unlock()

	return func() {
		k.mu.Lock()
		delete(k.subs, id)
		k.mu.Unlock()
	}
}

func (k *Keeper) emit(event domain.AuthEvent, s *domain.Session) {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return
	}
	fns := make([]func(domain.AuthChange), 0, len(k.subs))
	for _, fn := range k.subs {
		fns = append(fns, fn)
	}
	k.mu.Unlock()

	change := domain.AuthChange{Event: event, Session: s}
	for _, fn := range fns {
		fn(change)
	}
}

// Current returns the in-memory session without touching storage.
func (k *Keeper) Current() *domain.Session {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.session
}

// GetSession returns the current session, restoring it from the client
// namespace on first use. A stored session whose token does not verify is
// discarded; an expired one is refreshed. A nil session with nil error
// means signed out.
func (k *Keeper) GetSession(ctx context.Context) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Keeper.GetSession")
	defer span.End()

	k.mu.Lock()
	if k.loaded {
		s := k.session
		k.mu.Unlock()
		if s != nil && s.Expired(time.Now(), 0) {
			return k.Refresh(ctx)
		}
		return s, nil
	}
	k.mu.Unlock()

	stored, ok, err := kv.Get(ctx, k.ns, kv.Session)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	k.loaded = true
	k.mu.Unlock()

	if !ok || stored.AccessToken == "" {
		return nil, nil
	}

	if !k.verifier.Matches(&stored) {
		k.logger.Warn("authsession: stored session rejected", zap.String("user_id", stored.User.ID))
		_ = kv.Remove(ctx, k.ns, kv.Session)
		return nil, nil
	}

	k.mu.Lock()
	k.session = &stored
	k.mu.Unlock()

	if stored.Expired(time.Now(), k.leeway) {
		s, err := k.Refresh(ctx)
		if err != nil {
			k.logger.Warn("authsession: restored session could not be refreshed", zap.Error(err))
			k.drop(ctx)
			return nil, nil
		}
		return s, nil
	}

	k.schedule(&stored)
	return &stored, nil
}

// SetSession stores s as the current session and emits event.
func (k *Keeper) SetSession(ctx context.Context, s *domain.Session, event domain.AuthEvent) error {
	if err := kv.Set(ctx, k.ns, kv.Session, *s); err != nil {
		return err
	}
	k.mu.Lock()
	k.session = s
	k.loaded = true
	k.mu.Unlock()

	k.schedule(s)
	k.emit(event, s)
	return nil
}

// Refresh exchanges the refresh token for a new session.
func (k *Keeper) Refresh(ctx context.Context) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Keeper.Refresh")
	defer span.End()

	current := k.Current()
	if current == nil || current.RefreshToken == "" {
		return nil, &domain.ErrUnauthorized{Message: "No hay una sesión activa"}
	}

	s, err := k.idp.RefreshSession(ctx, current.RefreshToken)
	if err != nil {
		return nil, err
	}
	if s.User.ID == "" {
		s.User = current.User
	}
	if err := k.SetSession(ctx, s, domain.EventTokenRefreshed); err != nil {
		return nil, err
	}
	k.logger.Debug("authsession: token refreshed", zap.String("user_id", s.User.ID), zap.Time("expires_at", s.ExpiresAt))
	return s, nil
}

// UpdateUser changes the remote user record and emits USER_UPDATED.
func (k *Keeper) UpdateUser(ctx context.Context, attrs *domain.UserAttributes) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Keeper.UpdateUser")
	defer span.End()

	current := k.Current()
	if current == nil {
		return nil, &domain.ErrUnauthorized{Message: "No hay una sesión activa"}
	}

	user, err := k.idp.UpdateUser(ctx, current.AccessToken, attrs)
	if err != nil {
		return nil, err
	}

	next := *current
	next.User = *user
	if err := k.SetSession(ctx, &next, domain.EventUserUpdated); err != nil {
		return nil, err
	}
	return user, nil
}

// SignOut revokes the session remotely and always forgets it locally.
// The remote error, if any, is returned after local cleanup.
func (k *Keeper) SignOut(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Keeper.SignOut")
	defer span.End()

	var remoteErr error
	if current := k.Current(); current != nil {
		remoteErr = k.idp.SignOut(ctx, current.AccessToken)
		if remoteErr != nil {
			k.logger.Warn("authsession: remote sign-out failed", zap.Error(remoteErr))
		}
	}
	k.drop(ctx)
	return remoteErr
}

func (k *Keeper) drop(ctx context.Context) {
	k.mu.Lock()
	k.session = nil
	k.loaded = true
	if k.timer != nil {
		k.timer.Stop()
		k.timer = nil
	}
	k.mu.Unlock()

	if err := kv.Remove(ctx, k.ns, kv.Session); err != nil {
		k.logger.Warn("authsession: failed to remove stored session", zap.Error(err))
	}
	k.emit(domain.EventSignedOut, nil)
}

// ============================================================
// OAuth PKCE
// ============================================================

// StartPKCE creates and stores a code verifier and returns its S256 challenge.
func (k *Keeper) StartPKCE(ctx context.Context) (string, error) {
	verifier := oauth2.GenerateVerifier()
	if err := kv.Set(ctx, k.ns, kv.OAuthVerifier, verifier); err != nil {
		return "", err
	}
	return oauth2.S256ChallengeFromVerifier(verifier), nil
}

// ExchangeCode completes the PKCE flow started by StartPKCE. event is
// SIGNED_IN for sign-in callbacks and PASSWORD_RECOVERY for reset links.
func (k *Keeper) ExchangeCode(ctx context.Context, code string, event domain.AuthEvent) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Keeper.ExchangeCode")
	defer span.End()

	verifier, ok, err := kv.Get(ctx, k.ns, kv.OAuthVerifier)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &domain.ErrValidation{Field: "code", Message: "No hay un inicio de sesión pendiente"}
	}

	s, err := k.idp.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, err
	}
	_ = kv.Remove(ctx, k.ns, kv.OAuthVerifier)

	if err := k.SetSession(ctx, s, event); err != nil {
		return nil, err
	}
	return s, nil
}

// ============================================================
// Auto refresh
// ============================================================

func (k *Keeper) schedule(s *domain.Session) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return
	}
	if k.timer != nil {
		k.timer.Stop()
	}
	wait := time.Until(s.ExpiresAt) - k.leeway
	if wait < 0 {
		wait = 0
	}
	k.timer = time.AfterFunc(wait, k.autoRefresh)
}

func (k *Keeper) autoRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	_, err := k.Refresh(ctx)
	if err == nil {
		return
	}
	var unauth *domain.ErrUnauthorized
	if errors.As(err, &unauth) {
		k.logger.Info("authsession: refresh token rejected, signing out")
		k.drop(ctx)
		return
	}
	k.logger.Warn("authsession: auto refresh failed", zap.Error(err))
}

// Close stops auto refresh and silences subscribers.
func (k *Keeper) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
	if k.timer != nil {
		k.timer.Stop()
		k.timer = nil
	}
	k.subs = make(map[int]func(domain.AuthChange))
}
