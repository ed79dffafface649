package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"chargecore/internal/events"
	"chargecore/internal/ocpp"
	"chargecore/internal/ocpp/protocol"
	"chargecore/internal/registry"
)

// NewStatusNotificationHandler mirrors the reported connector status into the
// registry and emits a status-changed event for upstream bridging. The server
// never infers connector state from transaction events alone.
func NewStatusNotificationHandler(reg *registry.Registry, emitter *events.Emitter) ocpp.HandlerFunc {
	return func(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StatusNotificationRequest](payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ocpp.ErrInvalidPayload, err)
		}

		if req.Status == "" {
			req.Status = protocol.ConnectorAvailable
		}
		reg.UpdateConnectorStatus(chargePointID, req.ConnectorID, req.Status, req.ErrorCode, req.Timestamp)

		emitter.Emit(events.Event{
			Type:          events.TypeStatusChanged,
			ChargePointID: chargePointID,
			ConnectorID:   req.ConnectorID,
			Status:        req.Status,
			Timestamp:     req.Timestamp,
		})

		return protocol.StatusNotificationResponse{}, nil
	}
}
