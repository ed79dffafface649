package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubConn struct {
	id string

	mu     sync.Mutex
	closed bool
}

func (s *stubConn) ChargePointID() string { return s.id }
func (s *stubConn) Send(msg []byte)       {}

func (s *stubConn) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *stubConn) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestRegisterSupersedesExistingConnection(t *testing.T) {
	reg := New()

	first := &stubConn{id: "CP-1"}
	require.Nil(t, reg.Register(first))

	second := &stubConn{id: "CP-1"}
	superseded := reg.Register(second)
	require.Equal(t, first, superseded)
	require.True(t, first.isClosed())

	current, ok := reg.Lookup("CP-1")
	require.True(t, ok)
	require.Equal(t, second, current)
}

func TestUnregisterIgnoresStaleConnection(t *testing.T) {
	reg := New()

	old := &stubConn{id: "CP-1"}
	reg.Register(old)
	replacement := &stubConn{id: "CP-1"}
	reg.Register(replacement)

	// The superseded connection's close callback races the new register; it
	// must not evict the replacement.
	require.False(t, reg.Unregister(old))

	current, ok := reg.Lookup("CP-1")
	require.True(t, ok)
	require.Equal(t, replacement, current)

	require.True(t, reg.Unregister(replacement))
	_, ok = reg.Lookup("CP-1")
	require.False(t, ok)
}

func TestUnregisterKeepsSessionAsStale(t *testing.T) {
	reg := New()

	conn := &stubConn{id: "CP-1"}
	reg.Register(conn)
	reg.UpdateBootInfo("CP-1", "VendorX", "ModelY", "SN-1", "1.0.0")
	reg.Unregister(conn)

	snapshot, ok := reg.Snapshot("CP-1")
	require.True(t, ok, "session state survives a disconnect")
	require.False(t, snapshot.Connected)
	require.Equal(t, "VendorX", snapshot.Vendor)
}

func TestUpdateBootInfoReportsFirstSight(t *testing.T) {
	reg := New()

	require.True(t, reg.UpdateBootInfo("CP-1", "VendorX", "ModelY", "SN-1", "1.0.0"))
	require.False(t, reg.UpdateBootInfo("CP-1", "VendorX", "ModelY", "SN-1", "1.0.1"))

	snapshot, ok := reg.Snapshot("CP-1")
	require.True(t, ok)
	require.Equal(t, "1.0.1", snapshot.FirmwareVersion)
}

func TestUpdateConnectorStatusIsIdempotent(t *testing.T) {
	reg := New()
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	reg.UpdateConnectorStatus("CP-1", 1, "Charging", "NoError", ts)
	first, _ := reg.Snapshot("CP-1")

	reg.UpdateConnectorStatus("CP-1", 1, "Charging", "NoError", ts)
	second, _ := reg.Snapshot("CP-1")

	require.Equal(t, first.Connectors, second.Connectors)
	require.Equal(t, "Charging", second.Connectors[1].Status)
	require.Equal(t, ts, second.Connectors[1].Timestamp)
}

func TestSnapshotIsACopy(t *testing.T) {
	reg := New()
	reg.UpdateConnectorStatus("CP-1", 1, "Available", "NoError", time.Now().UTC())

	snapshot, _ := reg.Snapshot("CP-1")
	snapshot.Connectors[1] = ConnectorState{Status: "Faulted"}

	fresh, _ := reg.Snapshot("CP-1")
	require.Equal(t, "Available", fresh.Connectors[1].Status)
}

func TestSnapshotAll(t *testing.T) {
	reg := New()
	reg.Register(&stubConn{id: "CP-1"})
	reg.UpdateBootInfo("CP-1", "VendorX", "ModelY", "", "")
	reg.UpdateBootInfo("CP-2", "VendorZ", "ModelW", "", "")

	all := reg.SnapshotAll()
	require.Len(t, all, 2)

	byID := make(map[string]Snapshot, len(all))
	for _, s := range all {
		byID[s.Identifier] = s
	}
	require.True(t, byID["CP-1"].Connected)
	require.False(t, byID["CP-2"].Connected)
}
