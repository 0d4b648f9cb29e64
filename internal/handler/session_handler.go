package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"

	"go.uber.org/zap"
)

const sseKeepAlive = 25 * time.Second

// sessionResponse is the snapshot plus the route the client should land on.
type sessionResponse struct {
	domain.AuthSnapshot
	RedirectTo string `json:"redirectTo,omitempty"`
	TimedOut   bool   `json:"timedOut,omitempty"`
}

func newSessionResponse(snap domain.AuthSnapshot) sessionResponse {
	resp := sessionResponse{AuthSnapshot: snap}
	if snap.IsAuthenticated {
		resp.RedirectTo = snap.UserRole.Dashboard(snap.Company != nil)
	}
	return resp
}

func getSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := StoreFromContext(r.Context())
		writeJSON(w, http.StatusOK, newSessionResponse(settled(r.Context(), store)))
	}
}

// sessionEventsHandler streams snapshots as Server-Sent Events. A slow
// reader only ever receives the latest snapshot.
func sessionEventsHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}
		store := StoreFromContext(r.Context())

		updates := make(chan domain.AuthSnapshot, 1)
		unsubscribe := store.Subscribe(func(snap domain.AuthSnapshot) {
			for {
				select {
				case updates <- snap:
					return
				default:
				}
				select {
				case <-updates:
				default:
				}
			}
		})
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		if err := writeSnapshotEvent(w, store.Snapshot()); err != nil {
			return
		}
		flusher.Flush()

		keepAlive := time.NewTicker(sseKeepAlive)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				logger.Debug("session stream closed", zap.String("client_id", store.ClientID()))
				return
			case snap := <-updates:
				if err := writeSnapshotEvent(w, snap); err != nil {
					return
				}
				flusher.Flush()
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeSnapshotEvent(w http.ResponseWriter, snap domain.AuthSnapshot) error {
	raw, err := json.Marshal(newSessionResponse(snap))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", raw)
	return err
}
