package logpipe

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ShipperConfig tunes the network shipping behavior.
type ShipperConfig struct {
	Mode          string
	FlushInterval time.Duration
	BatchSize     int
	MaxBacklog    int
}

func (c *ShipperConfig) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeBatch
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxBacklog <= 0 {
		c.MaxBacklog = 5000
	}
}

// Shipper batches every handled frame into local append-only storage and
// ships it to the network sink with backpressure and bounded retry. Flushing
// runs on its own schedule and never blocks message handling.
type Shipper struct {
	cfg     ShipperConfig
	store   *FileStore
	sink    Sink
	logger  *zap.Logger
	flushCh chan struct{}

	mu     sync.Mutex
	queue  []Record            // batch mode
	groups map[string][]string // append mode, lines per charge point
}

// NewShipper builds the shipper. store may be nil when local persistence is
// disabled.
func NewShipper(cfg ShipperConfig, store *FileStore, sink Sink, logger *zap.Logger) *Shipper {
	cfg.applyDefaults()
	return &Shipper{
		cfg:     cfg,
		store:   store,
		sink:    sink,
		logger:  logger,
		flushCh: make(chan struct{}, 1),
		groups:  make(map[string][]string),
	}
}

// Record implements the processor's log sink: append locally, enqueue for
// shipping. Never blocks.
func (s *Shipper) Record(chargePointID, direction string, raw []byte) {
	rec := Record{
		ChargePointID: chargePointID,
		Direction:     direction,
		Raw:           string(raw),
		Timestamp:     time.Now().UTC(),
	}

	if s.store != nil {
		s.store.Append(rec)
	}

	s.mu.Lock()
	var full bool
	if s.cfg.Mode == ModeAppend {
		s.groups[chargePointID] = append(s.groups[chargePointID], rec.Raw)
		full = s.groupedLenLocked() >= s.cfg.BatchSize
	} else {
		s.queue = append(s.queue, rec)
		full = len(s.queue) >= s.cfg.BatchSize
	}
	s.mu.Unlock()

	if full {
		select {
		case s.flushCh <- struct{}{}:
		default:
		}
	}
}

// Run flushes on the size trigger or the interval, whichever comes first.
func (s *Shipper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final best-effort flush on shutdown.
			s.Flush(context.Background())
			return
		case <-s.flushCh:
			s.Flush(ctx)
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

// Flush takes the current queue contents and performs one network call.
// Safe to call with an empty queue (no-op). On failure the records are put
// back onto the live queue, capped at the backlog limit with the oldest
// dropped first.
func (s *Shipper) Flush(ctx context.Context) {
	if s.cfg.Mode == ModeAppend {
		s.flushAppend(ctx)
		return
	}
	s.flushBatch(ctx)
}

func (s *Shipper) flushBatch(ctx context.Context) {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()

	if err := s.sink.ShipLogs(ctx, batch); err != nil {
		s.logger.Warn("log shipping failed, requeueing",
			zap.Int("records", len(batch)), zap.Error(err))

		s.mu.Lock()
		s.queue = append(batch, s.queue...)
		if excess := len(s.queue) - s.cfg.MaxBacklog; excess > 0 {
			s.queue = s.queue[excess:]
			s.logger.Warn("log backlog capped, oldest records dropped", zap.Int("dropped", excess))
		}
		s.mu.Unlock()
	}
}

func (s *Shipper) flushAppend(ctx context.Context) {
	s.mu.Lock()
	if len(s.groups) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.groups
	s.groups = make(map[string][]string)
	s.mu.Unlock()

	if err := s.sink.ShipBatches(ctx, batch); err != nil {
		s.logger.Warn("log batch shipping failed, requeueing",
			zap.Int("charge_points", len(batch)), zap.Error(err))

		// Merge the failed groups back in front of whatever accumulated
		// while the flush was in flight, preserving per-identifier order.
		s.mu.Lock()
		for id, lines := range batch {
			merged := append(lines, s.groups[id]...)
			if excess := len(merged) - s.cfg.MaxBacklog; excess > 0 {
				merged = merged[excess:]
				s.logger.Warn("log backlog capped, oldest lines dropped",
					zap.String("charge_point_id", id), zap.Int("dropped", excess))
			}
			s.groups[id] = merged
		}
		s.mu.Unlock()
	}
}

// QueueLen reports the number of queued records or lines.
func (s *Shipper) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Mode == ModeAppend {
		return s.groupedLenLocked()
	}
	return len(s.queue)
}

func (s *Shipper) groupedLenLocked() int {
	total := 0
	for _, lines := range s.groups {
		total += len(lines)
	}
	return total
}
