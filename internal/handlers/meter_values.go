package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"chargecore/internal/events"
	"chargecore/internal/ledger"
	"chargecore/internal/ocpp"
	"chargecore/internal/ocpp/protocol"
)

// NewMeterValuesHandler extracts energy and power samples from the nested
// sample structure and, when an open transaction matches, emits an
// incremental session-updated event with recomputed running totals. Samples
// that reference no known transaction are acked and logged only.
func NewMeterValuesHandler(txLedger *ledger.Ledger, emitter *events.Emitter, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.MeterValuesRequest](payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ocpp.ErrInvalidPayload, err)
		}

		energyRegister, powerW, sampleAt, found := latestSamples(req.MeterValue)
		if !found {
			return protocol.MeterValuesResponse{}, nil
		}

		txID := req.TransactionID
		if txID == 0 {
			// Some firmwares omit the transaction id on MeterValues; fall
			// back to the open transaction on this connector.
			if tx, ok := txLedger.FindOpenByConnector(chargePointID, req.ConnectorID); ok {
				txID = tx.ID
			}
		}
		if txID == 0 {
			return protocol.MeterValuesResponse{}, nil
		}

		tx, ok := txLedger.RecordMeterSample(txID, energyRegister, powerW, sampleAt)
		if !ok {
			logger.Warn("meter values for unknown transaction",
				zap.String("charge_point_id", chargePointID),
				zap.Int("transaction_id", txID))
			return protocol.MeterValuesResponse{}, nil
		}

		emitter.Emit(events.Event{
			Type:             events.TypeSessionUpdated,
			ChargePointID:    chargePointID,
			ConnectorID:      tx.ConnectorID,
			TransactionID:    tx.ID,
			RunningEnergyKwh: tx.RunningEnergyKwh(),
			RunningPowerKw:   tx.LastPowerW / 1000.0,
			Timestamp:        tx.LastSampleAt,
		})

		return protocol.MeterValuesResponse{}, nil
	}
}

// latestSamples walks the meter value groups in order and keeps the last seen
// energy register and power readings.
func latestSamples(values []protocol.MeterValue) (energyRegister int64, powerW float64, at time.Time, found bool) {
	for _, mv := range values {
		for _, sample := range mv.SampledValue {
			switch sample.Measurand {
			case protocol.MeasurandEnergyActiveImport, "":
				// An empty measurand defaults to the energy register per the
				// OCPP 1.6 specification.
				if v, err := strconv.ParseFloat(sample.Value, 64); err == nil {
					energyRegister = int64(v)
					at = mv.Timestamp
					found = true
				}
			case protocol.MeasurandPowerActiveImport:
				if v, err := strconv.ParseFloat(sample.Value, 64); err == nil {
					powerW = v
					if sample.Unit == "kW" {
						powerW = v * 1000
					}
				}
			}
		}
	}
	return energyRegister, powerW, at, found
}
