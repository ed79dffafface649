package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"chargecore/internal/events"
)

// EventsClient pushes operational events to the billing backend over HTTP,
// authenticated by a shared-secret header. Best-effort: non-success responses
// are logged, not returned as failures to the protocol path.
type EventsClient struct {
	baseURL string
	secret  string
	client  *http.Client
	logger  *zap.Logger
}

// NewEventsClient returns the HTTP client wrapper. An empty baseURL disables it.
func NewEventsClient(baseURL, secret string, logger *zap.Logger) *EventsClient {
	return &EventsClient{
		baseURL: baseURL,
		secret:  secret,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Publish sends one event.
func (c *EventsClient) Publish(ctx context.Context, event events.Event) error {
	if c.baseURL == "" {
		c.logger.Debug("events client disabled, skipping event", zap.String("event_type", string(event.Type)))
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/internal/ocpp/events", c.baseURL), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("X-Internal-Token", c.secret)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Warn("events push returned non-success",
			zap.Int("status", resp.StatusCode),
			zap.String("event_type", string(event.Type)))
	}
	return nil
}
