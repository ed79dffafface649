package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"chargecore/internal/events"
	"chargecore/internal/ledger"
	"chargecore/internal/ocpp"
	"chargecore/internal/ocpp/protocol"
)

// NewStopTransactionHandler finalizes the ledger entry named by the payload's
// transaction id and emits a session-stopped event with computed totals. An
// unknown id gets the benign ack the protocol requires, with no ledger
// mutation. The final meterStop reading is the authoritative energy source.
func NewStopTransactionHandler(txLedger *ledger.Ledger, emitter *events.Emitter, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StopTransactionRequest](payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ocpp.ErrInvalidPayload, err)
		}

		ack := protocol.StopTransactionResponse{
			IdTagInfo: protocol.IdTagInfo{Status: protocol.AuthorizationAccepted},
		}

		tx, err := txLedger.Close(req.TransactionID, req.MeterStop, req.Timestamp, req.Reason)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				logger.Warn("stop for unknown transaction",
					zap.String("charge_point_id", chargePointID),
					zap.Int("transaction_id", req.TransactionID))
				return ack, nil
			}
			return nil, err
		}

		energy := tx.EnergyKwh()
		elapsed := tx.StoppedAt.Sub(tx.StartedAt)

		emitter.Emit(events.Event{
			Type:          events.TypeSessionStopped,
			ChargePointID: chargePointID,
			ConnectorID:   tx.ConnectorID,
			TransactionID: tx.ID,
			MeterStop:     req.MeterStop,
			Reason:        tx.StopReason,
			EnergyKwh:     energy,
			Timestamp:     *tx.StoppedAt,
		})

		logger.Info("transaction stopped",
			zap.String("charge_point_id", chargePointID),
			zap.Int("transaction_id", tx.ID),
			zap.Float64("energy_kwh", energy),
			zap.Duration("elapsed", elapsed),
			zap.String("reason", tx.StopReason))

		return ack, nil
	}
}
