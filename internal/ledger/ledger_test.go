package ledger

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, seed SeedStore) *Ledger {
	t.Helper()
	l, err := New(context.Background(), seed, zap.NewNop())
	require.NoError(t, err)
	return l
}

func TestAllocateIDIsMonotonic(t *testing.T) {
	l := newTestLedger(t, nil)

	first := l.AllocateID(context.Background())
	second := l.AllocateID(context.Background())
	third := l.AllocateID(context.Background())

	require.Equal(t, first+1, second)
	require.Equal(t, second+1, third)
}

func TestAllocateIDResumesFromSeed(t *testing.T) {
	seed := NewMemorySeedStore()
	l := newTestLedger(t, seed)

	var last int
	for i := 0; i < 5; i++ {
		last = l.AllocateID(context.Background())
	}

	// A fresh ledger over the same seed must not reissue ids.
	restarted := newTestLedger(t, seed)
	require.Equal(t, last+1, restarted.AllocateID(context.Background()))
}

func TestEnergyFromFinalMeterReadings(t *testing.T) {
	l := newTestLedger(t, nil)

	id := l.AllocateID(context.Background())
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l.Open(id, "CP-1", 1, "TAG-1", 1000, started)

	tx, err := l.Close(id, 6000, started.Add(45*time.Minute), "Local")
	require.NoError(t, err)
	require.False(t, tx.Open())
	require.InDelta(t, 5.0, tx.EnergyKwh(), 1e-9)
	require.Equal(t, "Local", tx.StopReason)
}

func TestEnergyClampsMeterRollback(t *testing.T) {
	l := newTestLedger(t, nil)

	id := l.AllocateID(context.Background())
	l.Open(id, "CP-1", 1, "TAG-1", 5000, time.Now().UTC())

	tx, err := l.Close(id, 4000, time.Now().UTC(), "PowerLoss")
	require.NoError(t, err)
	require.Zero(t, tx.EnergyKwh())
}

func TestCloseUnknownOrFinalizedTransaction(t *testing.T) {
	l := newTestLedger(t, nil)

	_, err := l.Close(99, 100, time.Now().UTC(), "Local")
	require.ErrorIs(t, err, ErrNotFound)

	id := l.AllocateID(context.Background())
	l.Open(id, "CP-1", 1, "TAG-1", 0, time.Now().UTC())
	_, err = l.Close(id, 100, time.Now().UTC(), "Local")
	require.NoError(t, err)

	_, err = l.Close(id, 200, time.Now().UTC(), "Local")
	require.ErrorIs(t, err, ErrNotFound, "a finalized transaction is immutable")

	tx, ok := l.Get(id)
	require.True(t, ok)
	require.Equal(t, int64(100), *tx.MeterStop)
}

func TestRecordMeterSample(t *testing.T) {
	l := newTestLedger(t, nil)

	id := l.AllocateID(context.Background())
	l.Open(id, "CP-1", 2, "TAG-1", 1000, time.Now().UTC())

	at := time.Now().UTC()
	tx, ok := l.RecordMeterSample(id, 3500, 7400, at)
	require.True(t, ok)
	require.InDelta(t, 2.5, tx.RunningEnergyKwh(), 1e-9)
	require.InDelta(t, 7400.0, tx.LastPowerW, 1e-9)
	require.Equal(t, at, tx.LastSampleAt)

	_, ok = l.RecordMeterSample(999, 100, 0, at)
	require.False(t, ok)

	_, err := l.Close(id, 4000, time.Now().UTC(), "Remote")
	require.NoError(t, err)
	_, ok = l.RecordMeterSample(id, 5000, 0, at)
	require.False(t, ok, "finalized transactions reject samples")
}

func TestFindOpenByConnector(t *testing.T) {
	l := newTestLedger(t, nil)

	id := l.AllocateID(context.Background())
	l.Open(id, "CP-1", 1, "TAG-1", 0, time.Now().UTC())

	tx, ok := l.FindOpenByConnector("CP-1", 1)
	require.True(t, ok)
	require.Equal(t, id, tx.ID)

	_, ok = l.FindOpenByConnector("CP-1", 2)
	require.False(t, ok)
	_, ok = l.FindOpenByConnector("CP-2", 1)
	require.False(t, ok)

	_, err := l.Close(id, 0, time.Now().UTC(), "Local")
	require.NoError(t, err)
	_, ok = l.FindOpenByConnector("CP-1", 1)
	require.False(t, ok)
	require.Equal(t, 0, l.OpenCount())
}
