package authstate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type registryEntry struct {
	store    *Store
	lastUsed time.Time
}

// Registry owns one Store per client id. Stores are created on first use
// and closed after IdleTTL without requests, unless something is still
// subscribed. The session survives in the client namespace and is
// restored on the next request.
type Registry struct {
	deps Deps

	mu     sync.Mutex
	stores map[string]*registryEntry
	stop   chan struct{}
	once   sync.Once
}

func NewRegistry(deps Deps) *Registry {
	r := &Registry{
		deps:   deps,
		stores: make(map[string]*registryEntry),
		stop:   make(chan struct{}),
	}
	if deps.Config.IdleTTL > 0 {
		go r.reap(deps.Config.IdleTTL)
	}
	return r
}

// Get returns the started store of clientID.
func (r *Registry) Get(clientID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.stores[clientID]; ok {
		e.lastUsed = time.Now()
		return e.store
	}

	s := NewStore(clientID, r.deps)
	// Stores outlive the request that created them.
	s.Start(context.Background())
	r.stores[clientID] = &registryEntry{store: s, lastUsed: time.Now()}
	r.deps.Metrics.StoreOpened()
	r.deps.Logger.Debug("registry: store opened", zap.String("client_id", clientID))
	return s
}

// Len reports the number of open stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

func (r *Registry) reap(ttl time.Duration) {
	interval := ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.closeIdle(time.Now().Add(-ttl), false)
		}
	}
}

func (r *Registry) closeIdle(before time.Time, force bool) {
	r.mu.Lock()
	var idle []*Store
	for id, e := range r.stores {
		if e.lastUsed.Before(before) && (force || !e.store.watched()) {
			idle = append(idle, e.store)
			delete(r.stores, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.Close()
		r.deps.Metrics.StoreClosed()
	}
	if len(idle) > 0 {
		r.deps.Logger.Info("registry: closed idle stores", zap.Int("count", len(idle)))
	}
}

// Close stops every store.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.stop) })
	r.closeIdle(time.Now().Add(time.Hour), true)
}
