package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"chargecore/internal/ocpp/protocol"
)

// ErrInvalidPayload marks a handler decode failure; the processor answers it
// with a FormationViolation CALLERROR instead of InternalError.
var ErrInvalidPayload = errors.New("ocpp: invalid payload")

// HandlerFunc processes an inbound CALL payload and returns the reply body.
type HandlerFunc func(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error)

// ResultHandlerFunc processes the CALLRESULT of a server-initiated CALL.
type ResultHandlerFunc func(ctx context.Context, chargePointID string, call PendingCall, payload json.RawMessage)

// Router dispatches OCPP actions to handlers.
type Router struct {
	handlers       map[string]HandlerFunc
	resultHandlers map[string]ResultHandlerFunc
}

// NewRouter returns router.
func NewRouter() *Router {
	return &Router{
		handlers:       make(map[string]HandlerFunc),
		resultHandlers: make(map[string]ResultHandlerFunc),
	}
}

// Register attaches a handler to an inbound action.
func (r *Router) Register(action string, handler HandlerFunc) {
	r.handlers[action] = handler
}

// RegisterResult attaches a handler for replies to a server-initiated action.
func (r *Router) RegisterResult(action string, handler ResultHandlerFunc) {
	r.resultHandlers[action] = handler
}

// Route executes the handler for an inbound CALL.
func (r *Router) Route(ctx context.Context, chargePointID string, msg *Message) (interface{}, error) {
	handler, ok := r.handlers[msg.Action]
	if !ok {
		return nil, fmt.Errorf("ocpp: unsupported action %s", msg.Action)
	}
	return handler(ctx, chargePointID, msg.Payload)
}

// RouteResult executes the result handler for an inbound CALLRESULT, if any.
func (r *Router) RouteResult(ctx context.Context, chargePointID string, call PendingCall, payload json.RawMessage) {
	if handler, ok := r.resultHandlers[call.Action]; ok {
		handler(ctx, chargePointID, call, payload)
	}
}

// LogSink receives every handled frame, both directions, for the durable log.
// Implementations must never block or fail the protocol path.
type LogSink interface {
	Record(chargePointID, direction string, raw []byte)
}

// Directions used with LogSink.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Processor ties together parsing, routing, pending-call correlation, and
// response encoding. Every CALL receives exactly one CALLRESULT or CALLERROR
// within the same invocation.
type Processor struct {
	parser  *Parser
	router  *Router
	pending *PendingCalls
	logger  *zap.Logger
	logSink LogSink
}

// NewProcessor builds Processor.
func NewProcessor(parser *Parser, router *Router, pending *PendingCalls, logSink LogSink, logger *zap.Logger) *Processor {
	return &Processor{
		parser:  parser,
		router:  router,
		pending: pending,
		logSink: logSink,
		logger:  logger,
	}
}

// Process handles one raw inbound frame and returns the reply frame bytes, or
// nil when the protocol defines no reply (CALLRESULT/CALLERROR inbound).
func (p *Processor) Process(ctx context.Context, chargePointID string, raw []byte) ([]byte, error) {
	msg, err := p.parser.Parse(raw)
	if err != nil {
		// No reply is defined for an unparsable frame; log and drop.
		p.record(chargePointID, DirectionIn, raw)
		return nil, err
	}

	p.record(chargePointID, DirectionIn, raw)

	switch msg.MessageType {
	case MessageTypeCall:
		return p.processCall(ctx, chargePointID, msg)
	case MessageTypeCallResult:
		p.processCallResult(ctx, chargePointID, msg)
		return nil, nil
	case MessageTypeCallError:
		p.processCallError(chargePointID, msg)
		return nil, nil
	}
	return nil, fmt.Errorf("ocpp: unsupported message type %d", msg.MessageType)
}

func (p *Processor) processCall(ctx context.Context, chargePointID string, msg *Message) ([]byte, error) {
	responsePayload, err := p.router.Route(ctx, chargePointID, msg)
	if err != nil {
		p.logger.Warn("ocpp handler failed",
			zap.String("charge_point_id", chargePointID),
			zap.String("action", msg.Action),
			zap.Error(err))

		code := protocol.ErrorInternalError
		if _, known := p.router.handlers[msg.Action]; !known {
			code = protocol.ErrorNotSupported
		} else if errors.Is(err, ErrInvalidPayload) {
			code = protocol.ErrorFormationViolation
		}
		frame, buildErr := BuildCallError(msg.UniqueID, code, err.Error())
		return p.reply(chargePointID, frame, buildErr)
	}

	if responsePayload == nil {
		responsePayload = struct{}{}
	}
	frame, err := BuildCallResult(msg.UniqueID, responsePayload)
	return p.reply(chargePointID, frame, err)
}

func (p *Processor) processCallResult(ctx context.Context, chargePointID string, msg *Message) {
	call, ok := p.pending.Resolve(msg.UniqueID)
	if !ok {
		p.logger.Warn("call result without pending call",
			zap.String("charge_point_id", chargePointID),
			zap.String("message_id", msg.UniqueID))
		return
	}
	p.logger.Info("call result received",
		zap.String("charge_point_id", chargePointID),
		zap.String("action", call.Action),
		zap.String("message_id", msg.UniqueID))
	p.router.RouteResult(ctx, chargePointID, call, msg.Payload)
}

func (p *Processor) processCallError(chargePointID string, msg *Message) {
	call, ok := p.pending.Resolve(msg.UniqueID)
	if !ok {
		p.logger.Warn("call error without pending call",
			zap.String("charge_point_id", chargePointID),
			zap.String("message_id", msg.UniqueID))
		return
	}
	p.logger.Warn("call rejected by charge point",
		zap.String("charge_point_id", chargePointID),
		zap.String("action", call.Action),
		zap.String("error_code", msg.ErrorCode),
		zap.String("error_description", msg.ErrorDescription))
}

func (p *Processor) reply(chargePointID string, frame []byte, err error) ([]byte, error) {
	if err != nil {
		p.logger.Error("encode ocpp response failed", zap.Error(err))
		return nil, err
	}
	p.record(chargePointID, DirectionOut, frame)
	return frame, nil
}

func (p *Processor) record(chargePointID, direction string, raw []byte) {
	if p.logSink != nil {
		p.logSink.Record(chargePointID, direction, raw)
	}
}
