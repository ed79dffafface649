package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"chargecore/internal/ocpp"
	"chargecore/internal/ocpp/protocol"
)

// NewAckHandler acks an action with an empty payload and logs it. Used for
// FirmwareStatusNotification, DiagnosticsStatusNotification,
// SecurityEventNotification and similar log-only actions.
func NewAckHandler(action string, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
		logger.Info("notification received",
			zap.String("charge_point_id", chargePointID),
			zap.String("action", action),
			zap.ByteString("payload", payload))
		return struct{}{}, nil
	}
}

// NewStatusAckHandler acks an action with {status:"Accepted"} and logs it.
// Used for DataTransfer and for availability/configuration changes echoed
// back by charge points that initiate them.
func NewStatusAckHandler(action string, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
		logger.Info("notification received",
			zap.String("charge_point_id", chargePointID),
			zap.String("action", action),
			zap.ByteString("payload", payload))
		return protocol.DataTransferResponse{Status: protocol.AuthorizationAccepted}, nil
	}
}
