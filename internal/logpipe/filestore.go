package logpipe

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// FileStore writes one append-only newline-delimited JSON file per charge
// point identifier. It is the durability fallback independent of the network
// sink: I/O errors are logged, never propagated to the protocol loop.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	files  map[string]*os.File
	logger *zap.Logger
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{
		dir:    dir,
		files:  make(map[string]*os.File),
		logger: logger,
	}, nil
}

// Append writes one record to the charge point's log file.
func (s *FileStore) Append(rec Record) {
	line, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warn("failed to encode log record", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileLocked(rec.ChargePointID)
	if err != nil {
		s.logger.Warn("failed to open charge point log file",
			zap.String("charge_point_id", rec.ChargePointID), zap.Error(err))
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		s.logger.Warn("failed to append log record",
			zap.String("charge_point_id", rec.ChargePointID), zap.Error(err))
	}
}

// Close closes all open log files.
func (s *FileStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, f := range s.files {
		if err := f.Close(); err != nil {
			s.logger.Warn("failed to close log file", zap.String("charge_point_id", id), zap.Error(err))
		}
		delete(s.files, id)
	}
}

func (s *FileStore) fileLocked(chargePointID string) (*os.File, error) {
	if f, ok := s.files[chargePointID]; ok {
		return f, nil
	}
	path := filepath.Join(s.dir, sanitizeIdentifier(chargePointID)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	s.files[chargePointID] = f
	return f, nil
}

// sanitizeIdentifier keeps identifiers filesystem-safe.
func sanitizeIdentifier(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
