package ocpp

import (
	"fmt"

	"go.uber.org/zap"

	"chargecore/internal/registry"
)

// CallSender initiates outbound CALLs toward connected charge points and
// routes them through the pending-call bookkeeping. It is the single path for
// remote commands regardless of origin (control-plane API, upstream bridge,
// boot follow-ups).
type CallSender struct {
	registry *registry.Registry
	pending  *PendingCalls
	logSink  LogSink
	logger   *zap.Logger
}

// NewCallSender builds the sender.
func NewCallSender(reg *registry.Registry, pending *PendingCalls, logSink LogSink, logger *zap.Logger) *CallSender {
	return &CallSender{
		registry: reg,
		pending:  pending,
		logSink:  logSink,
		logger:   logger,
	}
}

// Send builds a CALL frame, registers it as pending, and enqueues it on the
// charge point's connection. It returns the generated message id.
func (s *CallSender) Send(chargePointID, action string, payload interface{}) (string, error) {
	conn, ok := s.registry.Lookup(chargePointID)
	if !ok {
		return "", fmt.Errorf("ocpp: charge point %s is not connected", chargePointID)
	}

	messageID := NewMessageID()
	frame, err := BuildCall(messageID, action, payload)
	if err != nil {
		return "", fmt.Errorf("ocpp: encode call: %w", err)
	}

	s.pending.Add(messageID, chargePointID, action)
	if s.logSink != nil {
		s.logSink.Record(chargePointID, DirectionOut, frame)
	}
	conn.Send(frame)

	s.logger.Info("outbound call sent",
		zap.String("charge_point_id", chargePointID),
		zap.String("action", action),
		zap.String("message_id", messageID))
	return messageID, nil
}
