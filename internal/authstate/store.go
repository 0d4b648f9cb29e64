// Package authstate holds the auth state of each browser client: the
// session listener, the user-data fetcher, the role reconciler, the
// observable store and the realtime role watcher.
package authstate

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/authsession"
	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/kv"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/observability"
	"github.com/boddenberg/marketplace-bff-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("authstate")

const minPasswordLength = 6

// Config tunes the per-client pipeline.
type Config struct {
	FetchMaxAttempts int
	FetchRetryBase   time.Duration
	SiteURL          string
	IdleTTL          time.Duration
}

// Deps are the collaborators shared by every client store.
type Deps struct {
	Backend  kv.Backend
	Identity port.IdentityProvider
	Data     port.UserDataStore
	Feed     port.ChangeFeed
	Verifier *authsession.TokenVerifier
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Config   Config
}

// Store is the observable auth state of one client.
type Store struct {
	clientID   string
	ns         *kv.Namespace
	session    *authsession.Keeper
	idp        port.IdentityProvider
	data       port.UserDataStore
	fetcher    *Fetcher
	reconciler *Reconciler
	watcher    *RoleWatcher
	listener   *Listener
	metrics    *observability.Metrics
	logger     *zap.Logger
	siteURL    string

	// commitMu orders pipeline commits against SignOut.
	commitMu sync.Mutex
	pubMu    sync.Mutex
	mu       sync.RWMutex
	snap     domain.AuthSnapshot
	closed   bool
	subs     map[int]func(domain.AuthSnapshot)
	nextSub  int
}

// NewStore builds the store of clientID. Call Start to begin processing.
func NewStore(clientID string, d Deps) *Store {
	logger := d.Logger.With(zap.String("client_id", clientID))
	ns := kv.NewNamespace(d.Backend, clientID)
	fetcher := NewFetcher(d.Data, d.Config.FetchMaxAttempts, d.Config.FetchRetryBase, d.Metrics, logger)

	s := &Store{
		clientID:   clientID,
		ns:         ns,
		session:    authsession.New(d.Identity, ns, d.Verifier, logger),
		idp:        d.Identity,
		data:       d.Data,
		fetcher:    fetcher,
		reconciler: NewReconciler(d.Data, fetcher, d.Metrics, logger),
		watcher:    NewRoleWatcher(d.Feed, logger),
		metrics:    d.Metrics,
		logger:     logger,
		siteURL:    strings.TrimRight(d.Config.SiteURL, "/"),
		snap:       domain.AuthSnapshot{IsLoading: true},
		subs:       make(map[int]func(domain.AuthSnapshot)),
	}
	s.listener = NewListener(s.session, s.process, logger)
	return s
}

// Start runs the initial session lookup and follows auth events.
func (s *Store) Start(ctx context.Context) {
	s.listener.Start(ctx)
}

// Close stops the listener and the role watcher; no snapshot is
// published afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.subs = make(map[int]func(domain.AuthSnapshot))
	s.mu.Unlock()

	s.listener.Close()
	s.watcher.Stop()
	s.session.Close()
}

// Wait blocks until in-flight pipeline runs finished.
func (s *Store) Wait() {
	s.listener.Wait()
}

func (s *Store) ClientID() string { return s.clientID }

// Namespace is the client key-value namespace.
func (s *Store) Namespace() *kv.Namespace { return s.ns }

// Snapshot returns the current state.
func (s *Store) Snapshot() domain.AuthSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe calls fn with every published snapshot. fn must not block.
func (s *Store) Subscribe(fn func(domain.AuthSnapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) watched() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs) > 0
}

// Refetch queues a pipeline run for the current session, e.g. after a
// membership changed remotely.
func (s *Store) Refetch() {
	if current := s.session.Current(); current != nil {
		s.listener.dispatch(domain.AuthChange{Event: domain.EventUserUpdated, Session: current})
	}
}

// AwaitReady waits until the pipeline settled for an authenticated user
// (userID, when not empty) and returns that snapshot.
func (s *Store) AwaitReady(ctx context.Context, userID string) (domain.AuthSnapshot, error) {
	ready := func(snap domain.AuthSnapshot) bool {
		if !snap.IsAuthenticated || snap.IsLoading || snap.User == nil {
			return false
		}
		return userID == "" || snap.User.ID == userID
	}

	updates := make(chan domain.AuthSnapshot, 1)
	unsubscribe := s.Subscribe(func(snap domain.AuthSnapshot) {
		select {
		case updates <- snap:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- snap:
			default:
			}
		}
	})
	defer unsubscribe()

	if snap := s.Snapshot(); ready(snap) {
		return snap, nil
	}
	for {
		select {
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		case snap := <-updates:
			if ready(snap) {
				return snap, nil
			}
		}
	}
}

// publish applies mutate and notifies subscribers in publish order.
func (s *Store) publish(mutate func(snap *domain.AuthSnapshot)) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	mutate(&s.snap)
	s.snap.UpdatedAt = time.Now().UTC()
	snap := s.snap
	fns := make([]func(domain.AuthSnapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func signedOut(snap *domain.AuthSnapshot) {
	*snap = domain.AuthSnapshot{}
}

// ============================================================
// Pipeline
// ============================================================

// process runs fetch and reconcile for one auth event and publishes the result.
func (s *Store) process(ctx context.Context, change domain.AuthChange) {
	ctx, span := tracer.Start(ctx, "Store.process")
	defer span.End()
	span.SetAttributes(attribute.String("auth.event", string(change.Event)), attribute.Bool("auth.initial", change.IsInitial))

	s.metrics.IncrPipelineRun(change.Event)

	if change.Session == nil {
		s.watcher.Stop()
		s.publish(signedOut)
		return
	}

	user := change.Session.User
	started := s.commitFor(user.ID, func(*domain.Session) {
		s.publish(func(snap *domain.AuthSnapshot) {
			if snap.User == nil || snap.User.ID != user.ID {
				*snap = domain.AuthSnapshot{IsLoading: true}
			}
			snap.User = &user
			snap.Session = change.Session
			snap.IsAuthenticated = true
		})
	})
	if !started {
		s.logger.Debug("store: skipping event for a replaced session", zap.String("user_id", user.ID))
		return
	}

	data := s.fetcher.Fetch(ctx, &user)
	data = s.reconciler.Reconcile(ctx, s.ns, &user, data, s.session)

	if ctx.Err() != nil || !s.listener.Alive() {
		return
	}
	committed := s.commitFor(user.ID, func(current *domain.Session) {
		active := s.resolveActiveCompany(ctx, data)
		s.publish(func(snap *domain.AuthSnapshot) {
			latest := current.User
			snap.User = &latest
			snap.Session = current
			snap.Profile = data.Profile
			snap.UserRole = data.Role
			snap.UserCompanies = data.Companies
			snap.Company = active
			snap.ActiveCompanyID = ""
			if active != nil {
				snap.ActiveCompanyID = active.ID
			}
			snap.IsAuthenticated = true
			snap.IsLoading = false
		})

		if err := s.watcher.Watch(ctx, user.ID, current.AccessToken, s.setRole); err != nil {
			s.logger.Warn("store: role watcher unavailable", zap.String("user_id", user.ID), zap.Error(err))
		}
	})
	if !committed {
		s.logger.Debug("store: discarding result for a replaced session", zap.String("user_id", user.ID))
	}
}

// commitFor runs fn under the commit lock while userID still owns the
// session. SignOut clears the client namespace under the same lock, so
// nothing fn writes outlives a sign-out.
func (s *Store) commitFor(userID string, fn func(current *domain.Session)) bool {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	current := s.session.Current()
	if current == nil || current.User.ID != userID {
		return false
	}
	fn(current)
	return true
}

// resolveActiveCompany keeps the stored active company when the user may
// still operate it, otherwise falls back to the primary company.
func (s *Store) resolveActiveCompany(ctx context.Context, data domain.UserData) *domain.Company {
	stored, ok, err := kv.Get(ctx, s.ns, kv.ActiveCompanyID)
	if err != nil {
		s.logger.Warn("store: failed to read active company", zap.Error(err))
	}
	if ok {
		for i := range data.Companies {
			if data.Companies[i].ID == stored {
				c := data.Companies[i]
				return &c
			}
		}
	}

	if data.Company == nil {
		if ok {
			_ = kv.Remove(ctx, s.ns, kv.ActiveCompanyID)
		}
		return nil
	}
	if err := kv.Set(ctx, s.ns, kv.ActiveCompanyID, data.Company.ID); err != nil {
		s.logger.Warn("store: failed to persist active company", zap.Error(err))
	}
	return data.Company
}

// setRole applies a role pushed by the realtime feed.
func (s *Store) setRole(role domain.Role) {
	s.publish(func(snap *domain.AuthSnapshot) {
		if snap.IsAuthenticated {
			snap.UserRole = role
		}
	})
}
