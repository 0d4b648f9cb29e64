package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/authstate"
	"github.com/boddenberg/marketplace-bff-go/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const storeKey contextKey = "authStore"

// ClientCookie names the cookie carrying the opaque browser client id.
const ClientCookie = "mp_client"

const (
	clientCookieMaxAge = 365 * 24 * 60 * 60
	settleTimeout      = 5 * time.Second
)

// ClientMiddleware resolves the browser client id from the mp_client
// cookie, issuing a new one when missing or malformed, and injects the
// client's auth store into the context.
func ClientMiddleware(registry *authstate.Registry, secure bool, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ""
			if c, err := r.Cookie(ClientCookie); err == nil {
				if id, err := uuid.Parse(c.Value); err == nil {
					clientID = id.String()
				}
			}
			if clientID == "" {
				clientID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookie,
					Value:    clientID,
					Path:     "/",
					MaxAge:   clientCookieMaxAge,
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
				logger.Debug("client: issued id", zap.String("client_id", clientID))
			}

			ctx := context.WithValue(r.Context(), storeKey, registry.Get(clientID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StoreFromContext returns the auth store injected by ClientMiddleware.
func StoreFromContext(ctx context.Context) *authstate.Store {
	s, _ := ctx.Value(storeKey).(*authstate.Store)
	return s
}

// RequireAuth rejects requests of clients without a session once the
// store finished its initial lookup.
func RequireAuth(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := StoreFromContext(r.Context())
			if store == nil {
				writeError(w, http.StatusUnauthorized, "Debes iniciar sesión")
				return
			}
			snap := settled(r.Context(), store)
			if !snap.IsAuthenticated {
				logger.Warn("auth: no session",
					zap.String("path", r.URL.Path),
					zap.String("client_id", store.ClientID()),
				)
				writeError(w, http.StatusUnauthorized, "Debes iniciar sesión")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// settled returns the first snapshot that is no longer loading, or the
// current one when ctx ends or settleTimeout elapses.
func settled(ctx context.Context, store *authstate.Store) domain.AuthSnapshot {
	if snap := store.Snapshot(); !snap.IsLoading {
		return snap
	}

	done := make(chan domain.AuthSnapshot, 1)
	unsubscribe := store.Subscribe(func(snap domain.AuthSnapshot) {
		if snap.IsLoading {
			return
		}
		select {
		case done <- snap:
		default:
		}
	})
	defer unsubscribe()

	if snap := store.Snapshot(); !snap.IsLoading {
		return snap
	}
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	select {
	case snap := <-done:
		return snap
	case <-ctx.Done():
		return store.Snapshot()
	}
}
