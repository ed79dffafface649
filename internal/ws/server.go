package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"chargecore/internal/registry"
)

// Subprotocol advertised and accepted by the central system.
const Subprotocol = "ocpp1.6"

// ConnectionObserver is notified about connection lifecycle transitions so
// other components (pending calls, durable log) can react.
type ConnectionObserver interface {
	ConnectionOpened(chargePointID string)
	ConnectionClosed(chargePointID string)
}

// Server upgrades HTTP connections to WebSockets for OCPP traffic. The path
// component after the final slash is the charge point identifier.
type Server struct {
	registry     *registry.Registry
	processor    MessageProcessor
	observer     ConnectionObserver
	logger       *zap.Logger
	writeTimeout time.Duration
	readTimeout  time.Duration
	upgrader     Upgrader
}

// NewServer builds the ws server.
func NewServer(reg *registry.Registry, processor MessageProcessor, observer ConnectionObserver, writeTimeout, readTimeout time.Duration, logger *zap.Logger) *Server {
	return &Server{
		registry:     reg,
		processor:    processor,
		observer:     observer,
		logger:       logger,
		writeTimeout: writeTimeout,
		readTimeout:  readTimeout,
		upgrader: Upgrader{
			Subprotocols: []string{Subprotocol},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS is the HTTP handler for the OCPP endpoint.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	chargePointID := identifierFromPath(r.URL.Path)
	if chargePointID == "" {
		http.Error(w, "charge point identifier is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("charge_point_id", chargePointID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := NewConnection(chargePointID, conn, s.processor, s.writeTimeout, s.readTimeout, s.logger, func(c *Connection) {
		if s.registry.Unregister(c) && s.observer != nil {
			s.observer.ConnectionClosed(c.ChargePointID())
		}
		cancel()
	})

	if old := s.registry.Register(connection); old != nil {
		s.logger.Info("superseded existing connection", zap.String("charge_point_id", chargePointID))
	}
	if s.observer != nil {
		s.observer.ConnectionOpened(chargePointID)
	}

	go connection.Start(ctx)
	s.logger.Info("charge point connected",
		zap.String("charge_point_id", chargePointID),
		zap.String("remote_addr", r.RemoteAddr))
}

func identifierFromPath(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return ""
	}
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-1]
}
