package authstate

import (
	"context"
	"sync"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"

	"go.uber.org/zap"
)

// SessionSource is the auth client a Listener observes.
type SessionSource interface {
	GetSession(ctx context.Context) (*domain.Session, error)
	OnAuthStateChange(fn func(domain.AuthChange)) (unsubscribe func())
}

// Listener turns the initial session lookup and later auth events into
// one stream of pipeline runs. At most one run is in flight; an event
// arriving meanwhile replaces any earlier waiting one and runs next.
type Listener struct {
	source SessionSource
	handle func(ctx context.Context, change domain.AuthChange)
	logger *zap.Logger

	mu          sync.Mutex
	alive       bool
	processing  bool
	pending     *domain.AuthChange
	unsubscribe func()
	cancel      context.CancelFunc
	ctx         context.Context
	wg          sync.WaitGroup
}

func NewListener(source SessionSource, handle func(ctx context.Context, change domain.AuthChange), logger *zap.Logger) *Listener {
	return &Listener{source: source, handle: handle, logger: logger}
}

// Start looks up the current session in the background, processes it as
// the initial event and then follows the auth event feed.
func (l *Listener) Start(parent context.Context) {
	l.mu.Lock()
	if l.alive {
		l.mu.Unlock()
		return
	}
	l.ctx, l.cancel = context.WithCancel(parent)
	l.alive = true
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()

		session, err := l.source.GetSession(l.ctx)
		if err != nil {
			l.logger.Warn("listener: initial session lookup failed", zap.Error(err))
			session = nil
		}
		l.dispatch(domain.AuthChange{Event: domain.EventInitialSession, Session: session, IsInitial: true})

		unsubscribe := l.source.OnAuthStateChange(l.dispatch)
		l.mu.Lock()
		if !l.alive {
			l.mu.Unlock()
			unsubscribe()
			return
		}
		l.unsubscribe = unsubscribe
		l.mu.Unlock()
	}()
}

func (l *Listener) dispatch(change domain.AuthChange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.alive {
		return
	}
	if l.processing {
		if l.pending != nil {
			l.logger.Debug("listener: superseding queued event",
				zap.String("dropped", string(l.pending.Event)),
				zap.String("kept", string(change.Event)),
			)
		}
		l.pending = &change
		return
	}
	l.processing = true
	l.wg.Add(1)
	go l.run(change)
}

func (l *Listener) run(change domain.AuthChange) {
	defer l.wg.Done()
	for {
		l.handle(l.ctx, change)

		l.mu.Lock()
		if !l.alive || l.pending == nil {
			l.processing = false
			l.pending = nil
			l.mu.Unlock()
			return
		}
		change = *l.pending
		l.pending = nil
		l.mu.Unlock()
	}
}

// Alive reports whether the listener has not been closed.
func (l *Listener) Alive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alive
}

// Close unsubscribes and cancels the in-flight run; nothing is handled afterwards.
func (l *Listener) Close() {
	l.mu.Lock()
	if !l.alive {
		l.mu.Unlock()
		return
	}
	l.alive = false
	l.pending = nil
	unsubscribe := l.unsubscribe
	l.unsubscribe = nil
	cancel := l.cancel
	l.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	cancel()
}

// Wait blocks until the initial lookup and every started run returned.
func (l *Listener) Wait() {
	l.wg.Wait()
}
