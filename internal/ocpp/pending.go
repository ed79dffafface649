package ocpp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PendingCall is an outbound CALL awaiting a CALLRESULT or CALLERROR.
type PendingCall struct {
	MessageID     string
	ChargePointID string
	Action        string
	CreatedAt     time.Time
}

// PendingCalls tracks server-initiated CALLs keyed by message id. Entries
// older than the configured timeout are reaped periodically; entries bound to
// a closed connection are failed immediately, never retried.
type PendingCalls struct {
	mu      sync.Mutex
	calls   map[string]PendingCall
	timeout time.Duration
	logger  *zap.Logger
}

// NewPendingCalls builds the table. A non-positive timeout falls back to 30s.
func NewPendingCalls(timeout time.Duration, logger *zap.Logger) *PendingCalls {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PendingCalls{
		calls:   make(map[string]PendingCall),
		timeout: timeout,
		logger:  logger,
	}
}

// NewMessageID generates an identifier unique among pending outbound calls.
func NewMessageID() string {
	return uuid.NewString()
}

// Add registers an outbound call.
func (p *PendingCalls) Add(messageID, chargePointID, action string) PendingCall {
	call := PendingCall{
		MessageID:     messageID,
		ChargePointID: chargePointID,
		Action:        action,
		CreatedAt:     time.Now().UTC(),
	}
	p.mu.Lock()
	p.calls[messageID] = call
	p.mu.Unlock()
	return call
}

// Resolve removes and returns the call matching a reply's message id.
func (p *PendingCalls) Resolve(messageID string) (PendingCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	call, ok := p.calls[messageID]
	if ok {
		delete(p.calls, messageID)
	}
	return call, ok
}

// FailForChargePoint drops every pending call destined for a charge point
// whose connection closed.
func (p *PendingCalls) FailForChargePoint(chargePointID string) {
	p.mu.Lock()
	var failed []PendingCall
	for id, call := range p.calls {
		if call.ChargePointID == chargePointID {
			failed = append(failed, call)
			delete(p.calls, id)
		}
	}
	p.mu.Unlock()

	for _, call := range failed {
		p.logger.Warn("pending call failed, connection closed",
			zap.String("charge_point_id", call.ChargePointID),
			zap.String("action", call.Action),
			zap.String("message_id", call.MessageID))
	}
}

// Len returns the number of in-flight calls.
func (p *PendingCalls) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Reap abandons calls older than the timeout and returns them.
func (p *PendingCalls) Reap(now time.Time) []PendingCall {
	p.mu.Lock()
	var expired []PendingCall
	for id, call := range p.calls {
		if now.Sub(call.CreatedAt) > p.timeout {
			expired = append(expired, call)
			delete(p.calls, id)
		}
	}
	p.mu.Unlock()

	for _, call := range expired {
		p.logger.Warn("pending call timed out",
			zap.String("charge_point_id", call.ChargePointID),
			zap.String("action", call.Action),
			zap.String("message_id", call.MessageID))
	}
	return expired
}

// Run reaps expired calls on a fixed schedule until the context is cancelled.
func (p *PendingCalls) Run(ctx context.Context) {
	interval := p.timeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.Reap(now.UTC())
		}
	}
}
