package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned when a transaction id is unknown.
var ErrNotFound = errors.New("ledger: transaction not found")

// Transaction is one charge session as seen by the protocol. After
// finalization (StoppedAt set) it is never mutated again.
type Transaction struct {
	ID            int
	ChargePointID string
	ConnectorID   int
	IdTag         string
	StartedAt     time.Time
	MeterStart    int64
	StoppedAt     *time.Time
	MeterStop     *int64
	StopReason    string

	// Running figures fed by MeterValues while the transaction is open.
	LastMeterValue int64
	LastPowerW     float64
	LastSampleAt   time.Time
}

// Open reports whether the transaction has not been finalized yet.
func (t Transaction) Open() bool {
	return t.StoppedAt == nil
}

// EnergyKwh computes consumed energy from the final meter readings, clamped:
// the protocol does not guarantee meterStop >= meterStart.
func (t Transaction) EnergyKwh() float64 {
	if t.MeterStop == nil {
		return 0
	}
	return clampKwh(t.MeterStart, *t.MeterStop)
}

// RunningEnergyKwh computes consumed energy from the last meter sample.
func (t Transaction) RunningEnergyKwh() float64 {
	if t.LastSampleAt.IsZero() {
		return 0
	}
	return clampKwh(t.MeterStart, t.LastMeterValue)
}

func clampKwh(meterStart, meterStop int64) float64 {
	delta := meterStop - meterStart
	if delta < 0 {
		delta = 0
	}
	return float64(delta) / 1000.0
}

// Ledger allocates transaction ids and tracks transactions keyed by id. Ids
// are strictly increasing per process; the watermark is persisted through the
// seed store so a restart never reissues ids.
type Ledger struct {
	mu           sync.RWMutex
	transactions map[int]*Transaction
	nextID       int
	seed         SeedStore
	logger       *zap.Logger
}

// New builds the ledger, seeding the id counter from persisted state.
func New(ctx context.Context, seed SeedStore, logger *zap.Logger) (*Ledger, error) {
	if seed == nil {
		seed = NewMemorySeedStore()
	}
	watermark, err := seed.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &Ledger{
		transactions: make(map[int]*Transaction),
		nextID:       watermark + 1,
		seed:         seed,
		logger:       logger,
	}, nil
}

// AllocateID returns the next transaction id and persists the watermark.
// A seed-store failure is logged, not fatal: ids stay monotonic in-process.
func (l *Ledger) AllocateID(ctx context.Context) int {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.mu.Unlock()

	if err := l.seed.Save(ctx, id); err != nil {
		l.logger.Warn("failed to persist transaction id watermark", zap.Int("transaction_id", id), zap.Error(err))
	}
	return id
}

// Open records a new transaction under an allocated id.
func (l *Ledger) Open(id int, chargePointID string, connectorID int, idTag string, meterStart int64, startedAt time.Time) Transaction {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	tx := &Transaction{
		ID:            id,
		ChargePointID: chargePointID,
		ConnectorID:   connectorID,
		IdTag:         idTag,
		MeterStart:    meterStart,
		StartedAt:     startedAt,
	}

	l.mu.Lock()
	l.transactions[id] = tx
	l.mu.Unlock()
	return *tx
}

// Close finalizes a transaction. Closing an unknown or already finalized id
// returns ErrNotFound; the caller replies with a benign ack regardless.
func (l *Ledger) Close(id int, meterStop int64, stoppedAt time.Time, reason string) (Transaction, error) {
	if stoppedAt.IsZero() {
		stoppedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.transactions[id]
	if !ok || tx.StoppedAt != nil {
		return Transaction{}, ErrNotFound
	}
	tx.MeterStop = &meterStop
	tx.StoppedAt = &stoppedAt
	tx.StopReason = reason
	return *tx, nil
}

// Get returns a copy of the transaction.
func (l *Ledger) Get(id int) (Transaction, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tx, ok := l.transactions[id]
	if !ok {
		return Transaction{}, false
	}
	return *tx, true
}

// FindOpenByConnector returns the open transaction for a charge point and
// connector, used to correlate protocol transactions with externally created
// billing sessions.
func (l *Ledger) FindOpenByConnector(chargePointID string, connectorID int) (Transaction, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, tx := range l.transactions {
		if tx.StoppedAt == nil && tx.ChargePointID == chargePointID && tx.ConnectorID == connectorID {
			return *tx, true
		}
	}
	return Transaction{}, false
}

// RecordMeterSample updates the running figures of an open transaction.
func (l *Ledger) RecordMeterSample(id int, energyRegister int64, powerW float64, at time.Time) (Transaction, bool) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.transactions[id]
	if !ok || tx.StoppedAt != nil {
		return Transaction{}, false
	}
	tx.LastMeterValue = energyRegister
	tx.LastPowerW = powerW
	tx.LastSampleAt = at
	return *tx, true
}

// OpenCount returns the number of open transactions.
func (l *Ledger) OpenCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	count := 0
	for _, tx := range l.transactions {
		if tx.StoppedAt == nil {
			count++
		}
	}
	return count
}
