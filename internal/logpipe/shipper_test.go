package logpipe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu      sync.Mutex
	fail    bool
	logs    [][]Record
	batches []map[string][]string
}

func (f *fakeSink) ShipLogs(ctx context.Context, records []Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("sink unavailable")
	}
	f.logs = append(f.logs, records)
	return nil
}

func (f *fakeSink) ShipBatches(ctx context.Context, batches map[string][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("sink unavailable")
	}
	f.batches = append(f.batches, batches)
	return nil
}

func (f *fakeSink) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeSink) shippedLogs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, batch := range f.logs {
		total += len(batch)
	}
	return total
}

func TestShipperFlushBatchMode(t *testing.T) {
	sink := &fakeSink{}
	shipper := NewShipper(ShipperConfig{Mode: ModeBatch, BatchSize: 10}, nil, sink, zap.NewNop())

	shipper.Record("CP-1", "in", []byte(`[2,"a","Heartbeat",{}]`))
	shipper.Record("CP-1", "out", []byte(`[3,"a",{}]`))
	require.Equal(t, 2, shipper.QueueLen())

	shipper.Flush(context.Background())
	require.Equal(t, 0, shipper.QueueLen())
	require.Equal(t, 2, sink.shippedLogs())

	// Flushing an empty queue performs no network call.
	shipper.Flush(context.Background())
	require.Len(t, sink.logs, 1)
}

func TestShipperRequeuesOnFailure(t *testing.T) {
	sink := &fakeSink{}
	sink.setFail(true)
	shipper := NewShipper(ShipperConfig{Mode: ModeBatch, BatchSize: 100}, nil, sink, zap.NewNop())

	shipper.Record("CP-1", "in", []byte(`frame-1`))
	shipper.Record("CP-1", "in", []byte(`frame-2`))

	shipper.Flush(context.Background())
	require.Equal(t, 2, shipper.QueueLen(), "failed records go back onto the queue")

	sink.setFail(false)
	shipper.Flush(context.Background())
	require.Equal(t, 0, shipper.QueueLen())
	require.Equal(t, 2, sink.shippedLogs())
}

func TestShipperCapsBacklog(t *testing.T) {
	sink := &fakeSink{}
	sink.setFail(true)
	shipper := NewShipper(ShipperConfig{Mode: ModeBatch, BatchSize: 1000, MaxBacklog: 5}, nil, sink, zap.NewNop())

	for i := 0; i < 20; i++ {
		shipper.Record("CP-1", "in", []byte(`frame`))
	}

	shipper.Flush(context.Background())
	require.Equal(t, 5, shipper.QueueLen(), "backlog is capped with oldest dropped")
}

func TestShipperAppendModeGroupsPerChargePoint(t *testing.T) {
	sink := &fakeSink{}
	shipper := NewShipper(ShipperConfig{Mode: ModeAppend, BatchSize: 100}, nil, sink, zap.NewNop())

	shipper.Record("CP-1", "in", []byte(`a`))
	shipper.Record("CP-1", "out", []byte(`b`))
	shipper.Record("CP-2", "in", []byte(`c`))
	require.Equal(t, 3, shipper.QueueLen())

	shipper.Flush(context.Background())
	require.Equal(t, 0, shipper.QueueLen())

	require.Len(t, sink.batches, 1)
	batch := sink.batches[0]
	require.Equal(t, []string{"a", "b"}, batch["CP-1"])
	require.Equal(t, []string{"c"}, batch["CP-2"])
}

func TestShipperAppendModeRequeuePreservesOrder(t *testing.T) {
	sink := &fakeSink{}
	sink.setFail(true)
	shipper := NewShipper(ShipperConfig{Mode: ModeAppend, BatchSize: 100}, nil, sink, zap.NewNop())

	shipper.Record("CP-1", "in", []byte(`first`))
	shipper.Flush(context.Background())

	shipper.Record("CP-1", "in", []byte(`second`))
	sink.setFail(false)
	shipper.Flush(context.Background())

	require.Len(t, sink.batches, 1)
	require.Equal(t, []string{"first", "second"}, sink.batches[0]["CP-1"])
}

func TestShipperSizeTriggerWakesRun(t *testing.T) {
	sink := &fakeSink{}
	shipper := NewShipper(ShipperConfig{Mode: ModeBatch, BatchSize: 2, FlushInterval: time.Hour}, nil, sink, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		shipper.Run(ctx)
		close(done)
	}()

	shipper.Record("CP-1", "in", []byte(`frame-1`))
	shipper.Record("CP-1", "in", []byte(`frame-2`))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sink.shippedLogs() == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 2, sink.shippedLogs(), "hitting the batch size flushes before the interval")

	cancel()
	<-done
}
