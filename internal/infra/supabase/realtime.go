package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/resilience"
	"github.com/boddenberg/marketplace-bff-go/internal/port"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ============================================================
// Realtime change feed (Phoenix channels over WebSocket)
// ============================================================

const (
	defaultHeartbeat  = 30 * time.Second
	maxReconnectDelay = 30 * time.Second
)

// Realtime implements port.ChangeFeed against the project's realtime endpoint.
type Realtime struct {
	wsURL     string
	apiKey    string
	dialer    *websocket.Dialer
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewRealtime derives the websocket endpoint from the project URL.
func NewRealtime(baseURL, apiKey string, logger *zap.Logger) *Realtime {
	ws := strings.Replace(strings.Replace(baseURL, "https://", "wss://", 1), "http://", "ws://", 1)
	q := url.Values{}
	q.Set("apikey", apiKey)
	q.Set("vsn", "1.0.0")
	return &Realtime{
		wsURL:     ws + "/realtime/v1/websocket?" + q.Encode(),
		apiKey:    apiKey,
		dialer:    websocket.DefaultDialer,
		heartbeat: defaultHeartbeat,
		logger:    logger,
	}
}

type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

type changesPayload struct {
	Data domain.ChangeEvent `json:"data"`
}

type replyPayload struct {
	Status   string         `json:"status"`
	Response map[string]any `json:"response"`
}

// channel is one live subscription; it redials until stopped.
type channel struct {
	rt     *Realtime
	sub    domain.ChangeSubscription
	fn     func(domain.ChangeEvent)
	cancel context.CancelFunc
	once   sync.Once

	mu    sync.Mutex
	conn  *websocket.Conn
	ref   int
	token string
}

// Subscribe joins the change feed for sub. The first dial is synchronous
// so configuration errors surface to the caller; later drops reconnect.
func (r *Realtime) Subscribe(ctx context.Context, sub domain.ChangeSubscription, accessToken string, fn func(domain.ChangeEvent)) (port.FeedSubscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	ch := &channel{rt: r, sub: sub, token: accessToken, fn: fn, cancel: cancel}

	conn, err := ch.connect(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	go ch.run(ctx, conn)
	return ch, nil
}

// SetAccessToken hands a refreshed token to the joined channel and keeps
// it for later rejoins.
func (ch *channel) SetAccessToken(token string) {
	ch.mu.Lock()
	if ch.token == token {
		ch.mu.Unlock()
		return
	}
	ch.token = token
	ch.mu.Unlock()

	if err := ch.push(ch.sub.Topic(), "access_token", map[string]any{"access_token": token}); err != nil {
		// The next join carries the new token.
		ch.rt.logger.Debug("realtime: token push deferred to rejoin", zap.String("topic", ch.sub.Topic()), zap.Error(err))
	}
}

// Close leaves the channel and stops reconnecting.
func (ch *channel) Close() {
	ch.once.Do(func() {
		ch.leave()
		ch.cancel()
	})
}

func (ch *channel) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := ch.rt.dialer.DialContext(ctx, ch.rt.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("realtime dial: %w", err)
	}

	ch.mu.Lock()
	ch.conn = conn
	token := ch.token
	ch.mu.Unlock()

	change := map[string]string{
		"event":  ch.sub.Event,
		"schema": ch.sub.Schema,
		"table":  ch.sub.Table,
	}
	if ch.sub.Filter != "" {
		change["filter"] = ch.sub.Filter
	}
	join := map[string]any{
		"config": map[string]any{
			"broadcast":        map[string]any{"self": false},
			"presence":         map[string]any{"key": ""},
			"postgres_changes": []map[string]string{change},
		},
		"access_token": token,
	}
	if err := ch.push(ch.sub.Topic(), "phx_join", join); err != nil {
		conn.Close()
		return nil, err
	}
	ch.rt.logger.Info("realtime: joined",
		zap.String("topic", ch.sub.Topic()),
		zap.String("event", ch.sub.Event),
	)
	return conn, nil
}

func (ch *channel) push(topic, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.conn == nil {
		return fmt.Errorf("realtime: not connected")
	}
	ch.ref++
	ref := fmt.Sprintf("%d", ch.ref)
	msg := phxMessage{Topic: topic, Event: event, Payload: raw, Ref: &ref}
	if event == "phx_join" {
		joinRef := uuid.NewString()
		msg.JoinRef = &joinRef
	}
	_ = ch.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ch.conn.WriteJSON(msg)
}

func (ch *channel) leave() {
	_ = ch.push(ch.sub.Topic(), "phx_leave", map[string]any{})
	ch.mu.Lock()
	if ch.conn != nil {
		_ = ch.conn.Close()
		ch.conn = nil
	}
	ch.mu.Unlock()
}

func (ch *channel) run(ctx context.Context, conn *websocket.Conn) {
	attempt := 0
	for {
		ch.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}

		for {
			attempt++
			delay := resilience.LinearBackoff(time.Second, attempt)
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			ch.rt.logger.Warn("realtime: connection lost, reconnecting",
				zap.String("topic", ch.sub.Topic()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			if err := resilience.Sleep(ctx, delay); err != nil {
				return
			}
			var err error
			if conn, err = ch.connect(ctx); err == nil {
				attempt = 0
				break
			}
		}
	}
}

// serve reads until the connection drops or ctx is done.
func (ch *channel) serve(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	defer conn.Close()

	go func() {
		ticker := time.NewTicker(ch.rt.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := ch.push("phoenix", "heartbeat", map[string]any{}); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		var msg phxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				ch.rt.logger.Debug("realtime: read failed", zap.Error(err))
			}
			return
		}

		switch msg.Event {
		case "postgres_changes":
			var p changesPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				ch.rt.logger.Warn("realtime: bad change payload", zap.Error(err))
				continue
			}
			if ctx.Err() != nil {
				return
			}
			ch.fn(p.Data)
		case "phx_reply":
			var p replyPayload
			if err := json.Unmarshal(msg.Payload, &p); err == nil && p.Status != "ok" {
				ch.rt.logger.Warn("realtime: channel error reply",
					zap.String("topic", msg.Topic),
					zap.String("status", p.Status),
					zap.Any("response", p.Response),
				)
			}
		case "phx_error", "phx_close":
			ch.rt.logger.Warn("realtime: channel closed by server", zap.String("topic", msg.Topic), zap.String("event", msg.Event))
			return
		}
	}
}
