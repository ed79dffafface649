package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"chargecore/internal/events"
	"chargecore/internal/ledger"
	"chargecore/internal/ocpp"
	"chargecore/internal/ocpp/protocol"
)

// NewStartTransactionHandler allocates a transaction id, opens the ledger
// entry, and emits a session-started event. The reply is Accepted even for
// charge points the billing side does not know: the protocol requires a
// transaction id regardless of billing correlation.
func NewStartTransactionHandler(txLedger *ledger.Ledger, emitter *events.Emitter, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StartTransactionRequest](payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ocpp.ErrInvalidPayload, err)
		}

		if existing, ok := txLedger.FindOpenByConnector(chargePointID, req.ConnectorID); ok {
			logger.Warn("start transaction with another transaction still open on connector",
				zap.String("charge_point_id", chargePointID),
				zap.Int("connector_id", req.ConnectorID),
				zap.Int("open_transaction_id", existing.ID))
		}

		id := txLedger.AllocateID(ctx)
		tx := txLedger.Open(id, chargePointID, req.ConnectorID, req.IdTag, req.MeterStart, req.Timestamp)

		emitter.Emit(events.Event{
			Type:          events.TypeSessionStarted,
			ChargePointID: chargePointID,
			ConnectorID:   tx.ConnectorID,
			TransactionID: tx.ID,
			IdTag:         tx.IdTag,
			MeterStart:    tx.MeterStart,
			Timestamp:     tx.StartedAt,
		})

		logger.Info("transaction started",
			zap.String("charge_point_id", chargePointID),
			zap.Int("connector_id", req.ConnectorID),
			zap.Int("transaction_id", id),
			zap.Int64("meter_start", req.MeterStart))

		return protocol.StartTransactionResponse{
			TransactionID: id,
			IdTagInfo:     protocol.IdTagInfo{Status: protocol.AuthorizationAccepted},
		}, nil
	}
}
