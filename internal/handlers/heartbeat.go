package handlers

import (
	"context"
	"encoding/json"
	"time"

	"chargecore/internal/ocpp"
	"chargecore/internal/ocpp/protocol"
	"chargecore/internal/registry"
)

// NewHeartbeatHandler touches last-seen and returns the server time.
func NewHeartbeatHandler(reg *registry.Registry) ocpp.HandlerFunc {
	return func(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
		reg.TouchHeartbeat(chargePointID)
		return protocol.HeartbeatResponse{
			CurrentTime: time.Now().UTC(),
		}, nil
	}
}
