package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chargecore/internal/events"
)

// CommandDispatcher forwards admin-issued commands to the outbound-CALL path.
type CommandDispatcher interface {
	RemoteStart(chargePointID, idTag string, connectorID int) error
	RemoteStop(chargePointID string, transactionID int) error
}

// Config tunes the upstream subscription connection.
type Config struct {
	URL            string
	Secret         string
	Channels       []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

func (c *Config) applyDefaults() {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if len(c.Channels) == 0 {
		c.Channels = []string{"commands"}
	}
}

// envelope is the framing used on the broadcast bus, both directions.
type envelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type remoteStartPayload struct {
	ChargePointID string `json:"cpId"`
	IdTag         string `json:"idTag"`
	ConnectorID   int    `json:"connectorId"`
}

type remoteStopPayload struct {
	ChargePointID string `json:"cpId"`
	TransactionID int    `json:"transactionId"`
}

// Bridge maintains one outbound subscription connection to the billing
// backend's broadcast bus. It receives admin-issued remote start/stop
// commands and publishes status events back. Disconnects trigger a reconnect
// after a fixed delay; a local heartbeat detects silently-dead connections
// independent of the remote's own ping cadence. The bridge never crashes the
// process.
type Bridge struct {
	cfg        Config
	dispatcher CommandDispatcher
	logger     *zap.Logger
	dialer     *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	pongSeen chan struct{}
}

// New builds the bridge. An empty URL disables it.
func New(cfg Config, dispatcher CommandDispatcher, logger *zap.Logger) *Bridge {
	cfg.applyDefaults()
	return &Bridge{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		pongSeen: make(chan struct{}, 1),
	}
}

// Run keeps the subscription alive until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	if b.cfg.URL == "" {
		b.logger.Info("upstream bridge disabled")
		return
	}

	for {
		if err := b.runOnce(ctx); err != nil {
			b.logger.Warn("upstream bridge connection lost", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.cfg.ReconnectDelay):
		}
	}
}

func (b *Bridge) runOnce(ctx context.Context) error {
	var header http.Header
	if b.cfg.Secret != "" {
		header = http.Header{"X-Internal-Token": []string{b.cfg.Secret}}
	}
	conn, _, err := b.dialer.DialContext(ctx, b.cfg.URL, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	b.setConn(conn)
	defer b.setConn(nil)

	conn.SetPongHandler(func(string) error {
		select {
		case b.pongSeen <- struct{}{}:
		default:
		}
		return nil
	})

	b.logger.Info("upstream bridge connected", zap.String("url", b.cfg.URL))

	// Subscriptions are fire-and-forget: the bus tolerates channels that do
	// not exist yet.
	for _, channel := range b.cfg.Channels {
		if err := b.writeJSON(envelope{Event: "subscribe", Channel: channel}); err != nil {
			return err
		}
	}

	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	hbErr := make(chan error, 1)
	go b.heartbeat(hbCtx, conn, hbErr)

	msgCh := make(chan envelope)
	readErr := make(chan error, 1)
	go func() {
		for {
			var msg envelope
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			select {
			case msgCh <- msg:
			case <-hbCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-hbErr:
			return err
		case err := <-readErr:
			return err
		case msg := <-msgCh:
			b.handleMessage(msg)
		}
	}
}

// heartbeat sends a ping every interval and fails the connection when no pong
// was observed since the previous ping.
func (b *Bridge) heartbeat(ctx context.Context, conn *websocket.Conn, errCh chan<- error) {
	ticker := time.NewTicker(b.cfg.PingInterval)
	defer ticker.Stop()

	awaitingPong := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.pongSeen:
			awaitingPong = false
		case <-ticker.C:
			if awaitingPong {
				errCh <- errors.New("bridge: no pong since last ping")
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				errCh <- err
				return
			}
			awaitingPong = true
		}
	}
}

func (b *Bridge) handleMessage(msg envelope) {
	switch msg.Event {
	case "subscription_succeeded":
		b.logger.Info("channel subscription confirmed", zap.String("channel", msg.Channel))
	case "ping":
		if err := b.writeJSON(envelope{Event: "pong", Data: msg.Data}); err != nil {
			b.logger.Warn("failed to answer bus ping", zap.Error(err))
		}
	case "remote-start":
		var payload remoteStartPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			b.logger.Warn("malformed remote-start command", zap.Error(err))
			return
		}
		if err := b.dispatcher.RemoteStart(payload.ChargePointID, payload.IdTag, payload.ConnectorID); err != nil {
			b.logger.Warn("remote start failed",
				zap.String("charge_point_id", payload.ChargePointID), zap.Error(err))
		}
	case "remote-stop":
		var payload remoteStopPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			b.logger.Warn("malformed remote-stop command", zap.Error(err))
			return
		}
		if err := b.dispatcher.RemoteStop(payload.ChargePointID, payload.TransactionID); err != nil {
			b.logger.Warn("remote stop failed",
				zap.String("charge_point_id", payload.ChargePointID), zap.Error(err))
		}
	default:
		b.logger.Debug("ignoring bus message", zap.String("event", msg.Event))
	}
}

// Publish implements events.Sink: status events are forwarded to the bus
// best-effort while the connection is up.
func (b *Bridge) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.writeJSON(envelope{Event: string(event.Type), Channel: "events", Data: data})
}

func (b *Bridge) writeJSON(msg envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return errors.New("bridge: not connected")
	}
	return b.conn.WriteJSON(msg)
}

func (b *Bridge) setConn(conn *websocket.Conn) {
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
}
