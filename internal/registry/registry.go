package registry

import (
	"sync"
	"time"
)

// Connection is the live socket handle the registry owns for a charge point.
type Connection interface {
	ChargePointID() string
	Send(msg []byte)
	Close() error
}

// ConnectorState holds the last reported status of one connector.
type ConnectorState struct {
	Status    string
	ErrorCode string
	Timestamp time.Time
}

// ConfigurationKey is one key reported by a GetConfiguration reply.
type ConfigurationKey struct {
	Key      string `json:"key"`
	Readonly bool   `json:"readonly"`
	Value    string `json:"value"`
}

type session struct {
	identifier      string
	vendor          string
	model           string
	serialNumber    string
	firmwareVersion string
	connectors      map[int]ConnectorState
	configuration   []ConfigurationKey
	lastHeartbeat   time.Time
	bootedAt        time.Time
	stale           bool
	updatedAt       time.Time
}

// Snapshot is a copy of one charge point session for read-side consumers.
type Snapshot struct {
	Identifier      string                 `json:"identifier"`
	Vendor          string                 `json:"vendor"`
	Model           string                 `json:"model"`
	SerialNumber    string                 `json:"serialNumber"`
	FirmwareVersion string                 `json:"firmwareVersion"`
	Connectors      map[int]ConnectorState `json:"connectors"`
	Configuration   []ConfigurationKey     `json:"configuration,omitempty"`
	LastHeartbeat   time.Time              `json:"lastHeartbeat"`
	BootedAt        time.Time              `json:"bootedAt"`
	Connected       bool                   `json:"connected"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// Registry maps charge point identifiers to their live connection and
// in-memory session state. Sessions are never deleted, only marked stale
// when the connection drops, so a reconnect resumes cheaply.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]Connection
	sessions map[string]*session
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		conns:    make(map[string]Connection),
		sessions: make(map[string]*session),
	}
}

// Register installs the connection for its identifier. An existing live
// connection for the same identifier is superseded: it is closed and returned
// so the caller can log the event. No method here blocks on I/O beyond that
// close call.
func (r *Registry) Register(conn Connection) Connection {
	id := conn.ChargePointID()

	r.mu.Lock()
	old := r.conns[id]
	r.conns[id] = conn
	sess := r.getOrCreateLocked(id)
	sess.stale = false
	sess.updatedAt = time.Now().UTC()
	r.mu.Unlock()

	if old != nil && old != conn {
		_ = old.Close()
		return old
	}
	return nil
}

// Unregister removes the connection only if the registry still points at this
// exact connection, guarding against a stale close racing a newer connect.
func (r *Registry) Unregister(conn Connection) bool {
	id := conn.ChargePointID()

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.conns[id]
	if !ok || current != conn {
		return false
	}
	delete(r.conns, id)
	if sess, ok := r.sessions[id]; ok {
		sess.stale = true
		sess.updatedAt = time.Now().UTC()
	}
	return true
}

// Lookup returns the live connection for an identifier.
func (r *Registry) Lookup(identifier string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[identifier]
	return conn, ok
}

// UpdateBootInfo records vendor/model/serial/firmware from a BootNotification.
// It returns true when this identifier was not known before.
func (r *Registry) UpdateBootInfo(identifier, vendor, model, serial, firmware string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, known := r.sessions[identifier]
	sess := r.getOrCreateLocked(identifier)
	sess.vendor = vendor
	sess.model = model
	sess.serialNumber = serial
	sess.firmwareVersion = firmware
	now := time.Now().UTC()
	sess.bootedAt = now
	sess.updatedAt = now
	return !known
}

// UpdateConnectorStatus mirrors whatever the charge point reported. Replaying
// the same notification leaves the snapshot unchanged apart from updatedAt.
func (r *Registry) UpdateConnectorStatus(identifier string, connectorID int, status, errorCode string, ts time.Time) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess := r.getOrCreateLocked(identifier)
	sess.connectors[connectorID] = ConnectorState{
		Status:    status,
		ErrorCode: errorCode,
		Timestamp: ts,
	}
	sess.updatedAt = time.Now().UTC()
}

// TouchHeartbeat updates the last-seen timestamp.
func (r *Registry) TouchHeartbeat(identifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.getOrCreateLocked(identifier)
	sess.lastHeartbeat = time.Now().UTC()
}

// RecordConfiguration stores the keys from a GetConfiguration reply for
// diagnostics.
func (r *Registry) RecordConfiguration(identifier string, keys []ConfigurationKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.getOrCreateLocked(identifier)
	sess.configuration = keys
	sess.updatedAt = time.Now().UTC()
}

// Snapshot returns a copy of the session state for one identifier.
func (r *Registry) Snapshot(identifier string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[identifier]
	if !ok {
		return Snapshot{}, false
	}
	_, connected := r.conns[identifier]
	return r.snapshotLocked(sess, connected), true
}

// SnapshotAll returns copies of every known session.
func (r *Registry) SnapshotAll() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, 0, len(r.sessions))
	for id, sess := range r.sessions {
		_, connected := r.conns[id]
		out = append(out, r.snapshotLocked(sess, connected))
	}
	return out
}

func (r *Registry) snapshotLocked(sess *session, connected bool) Snapshot {
	connectors := make(map[int]ConnectorState, len(sess.connectors))
	for id, st := range sess.connectors {
		connectors[id] = st
	}
	var configuration []ConfigurationKey
	if len(sess.configuration) > 0 {
		configuration = make([]ConfigurationKey, len(sess.configuration))
		copy(configuration, sess.configuration)
	}
	return Snapshot{
		Identifier:      sess.identifier,
		Vendor:          sess.vendor,
		Model:           sess.model,
		SerialNumber:    sess.serialNumber,
		FirmwareVersion: sess.firmwareVersion,
		Connectors:      connectors,
		Configuration:   configuration,
		LastHeartbeat:   sess.lastHeartbeat,
		BootedAt:        sess.bootedAt,
		Connected:       connected,
		UpdatedAt:       sess.updatedAt,
	}
}

func (r *Registry) getOrCreateLocked(identifier string) *session {
	sess, ok := r.sessions[identifier]
	if !ok {
		sess = &session{
			identifier: identifier,
			connectors: make(map[int]ConnectorState),
		}
		r.sessions[identifier] = sess
	}
	return sess
}
