package logpipe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Sink ships record batches to the billing backend's log endpoint.
type Sink interface {
	ShipLogs(ctx context.Context, records []Record) error
	ShipBatches(ctx context.Context, batches map[string][]string) error
}

// HTTPSink posts batched payloads authenticated by a shared-secret header.
type HTTPSink struct {
	url    string
	secret string
	client *http.Client
	logger *zap.Logger
}

// NewHTTPSink builds the sink. An empty url disables shipping (records still
// reach the local file store).
func NewHTTPSink(url, secret string, logger *zap.Logger) *HTTPSink {
	return &HTTPSink{
		url:    url,
		secret: secret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type logEntry struct {
	ChargePointID string `json:"cpId"`
	Raw           string `json:"raw"`
}

type batchEntry struct {
	ChargePointID string   `json:"cpId"`
	Lines         []string `json:"lines"`
}

// ShipLogs sends the simple-mode payload {"logs":[{cpId,raw}]}.
func (s *HTTPSink) ShipLogs(ctx context.Context, records []Record) error {
	if s.url == "" {
		return nil
	}
	entries := make([]logEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, logEntry{ChargePointID: rec.ChargePointID, Raw: rec.Raw})
	}
	return s.post(ctx, map[string]interface{}{"logs": entries})
}

// ShipBatches sends the append-mode payload {"batches":[{cpId,lines}]}.
func (s *HTTPSink) ShipBatches(ctx context.Context, batches map[string][]string) error {
	if s.url == "" {
		return nil
	}
	entries := make([]batchEntry, 0, len(batches))
	for id, lines := range batches {
		entries = append(entries, batchEntry{ChargePointID: id, Lines: lines})
	}
	return s.post(ctx, map[string]interface{}{"batches": entries})
}

func (s *HTTPSink) post(ctx context.Context, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.secret != "" {
		req.Header.Set("X-Internal-Token", s.secret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("logpipe: sink returned status %d", resp.StatusCode)
	}
	return nil
}
