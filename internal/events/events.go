package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Type identifies one of the operational events the core emits toward the
// billing backend.
type Type string

// Event types.
const (
	TypeChargePointKnown Type = "charge-point-known"
	TypeStatusChanged    Type = "status-changed"
	TypeSessionStarted   Type = "session-started"
	TypeSessionUpdated   Type = "session-updated"
	TypeSessionStopped   Type = "session-stopped"
)

// Event is one operational event. Fields not relevant to the type are omitted
// from the encoded payload.
type Event struct {
	Type             Type      `json:"type"`
	ChargePointID    string    `json:"cpId"`
	ConnectorID      int       `json:"connectorId,omitempty"`
	Status           string    `json:"status,omitempty"`
	TransactionID    int       `json:"transactionId,omitempty"`
	IdTag            string    `json:"idTag,omitempty"`
	MeterStart       int64     `json:"meterStart,omitempty"`
	MeterStop        int64     `json:"meterStop,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	EnergyKwh        float64   `json:"energyKwh,omitempty"`
	RunningEnergyKwh float64   `json:"runningEnergyKwh,omitempty"`
	RunningPowerKw   float64   `json:"runningPowerKw,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Sink delivers events to one destination (HTTP push, upstream bridge).
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Emitter fans events out to all sinks. Delivery is best-effort and runs off
// the protocol path: a failing sink is logged and never propagates.
type Emitter struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
}

// NewEmitter builds the emitter.
func NewEmitter(logger *zap.Logger, sinks ...Sink) *Emitter {
	return &Emitter{
		sinks:   sinks,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Emit dispatches the event to every sink asynchronously.
func (e *Emitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		for _, sink := range e.sinks {
			if err := sink.Publish(ctx, event); err != nil {
				e.logger.Warn("event delivery failed",
					zap.String("event_type", string(event.Type)),
					zap.String("charge_point_id", event.ChargePointID),
					zap.Error(err))
			}
		}
	}()
}
