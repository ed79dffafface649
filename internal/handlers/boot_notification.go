package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chargecore/internal/events"
	"chargecore/internal/ocpp"
	"chargecore/internal/ocpp/protocol"
	"chargecore/internal/registry"
)

// NewBootNotificationHandler records boot info, emits a charge-point-known
// event, and schedules a GetConfiguration follow-up call.
func NewBootNotificationHandler(reg *registry.Registry, sender *ocpp.CallSender, emitter *events.Emitter, heartbeatInterval time.Duration, followUpDelay time.Duration, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.BootNotificationRequest](payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ocpp.ErrInvalidPayload, err)
		}

		serial := req.ChargePointSerial
		if serial == "" {
			serial = req.ChargeBoxSerial
		}
		reg.UpdateBootInfo(chargePointID, req.ChargePointVendor, req.ChargePointModel, serial, req.FirmwareVersion)

		emitter.Emit(events.Event{
			Type:          events.TypeChargePointKnown,
			ChargePointID: chargePointID,
		})

		// Follow up with GetConfiguration once the charge point has settled
		// after the boot exchange.
		if sender != nil {
			time.AfterFunc(followUpDelay, func() {
				if _, err := sender.Send(chargePointID, protocol.ActionGetConfiguration, protocol.GetConfigurationRequest{}); err != nil {
					logger.Warn("configuration follow-up not sent",
						zap.String("charge_point_id", chargePointID), zap.Error(err))
				}
			})
		}

		return protocol.BootNotificationResponse{
			Status:      protocol.RegistrationAccepted,
			CurrentTime: time.Now().UTC(),
			Interval:    int(heartbeatInterval / time.Second),
		}, nil
	}
}

// NewGetConfigurationResultHandler records the configuration keys reported in
// reply to a server-initiated GetConfiguration CALL.
func NewGetConfigurationResultHandler(reg *registry.Registry, logger *zap.Logger) ocpp.ResultHandlerFunc {
	return func(ctx context.Context, chargePointID string, call ocpp.PendingCall, payload json.RawMessage) {
		resp, err := ocpp.Decode[protocol.GetConfigurationResponse](payload)
		if err != nil {
			logger.Warn("malformed GetConfiguration reply",
				zap.String("charge_point_id", chargePointID), zap.Error(err))
			return
		}

		keys := make([]registry.ConfigurationKey, 0, len(resp.ConfigurationKey))
		for _, k := range resp.ConfigurationKey {
			keys = append(keys, registry.ConfigurationKey{Key: k.Key, Readonly: k.Readonly, Value: k.Value})
		}
		reg.RecordConfiguration(chargePointID, keys)
		logger.Info("configuration recorded",
			zap.String("charge_point_id", chargePointID),
			zap.Int("keys", len(keys)))
	}
}
