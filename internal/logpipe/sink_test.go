package logpipe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stretchr/testify/require"
)

func TestHTTPSinkShipLogsPayload(t *testing.T) {
	var got struct {
		Logs []struct {
			ChargePointID string `json:"cpId"`
			Raw           string `json:"raw"`
		} `json:"logs"`
	}
	var token string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.Header.Get("X-Internal-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, "secret-1", zap.NewNop())
	err := sink.ShipLogs(context.Background(), []Record{
		{ChargePointID: "CP-1", Direction: "in", Raw: `[2,"a","Heartbeat",{}]`, Timestamp: time.Now().UTC()},
	})
	require.NoError(t, err)
	require.Equal(t, "secret-1", token)
	require.Len(t, got.Logs, 1)
	require.Equal(t, "CP-1", got.Logs[0].ChargePointID)
	require.Equal(t, `[2,"a","Heartbeat",{}]`, got.Logs[0].Raw)
}

func TestHTTPSinkShipBatchesPayload(t *testing.T) {
	var got struct {
		Batches []struct {
			ChargePointID string   `json:"cpId"`
			Lines         []string `json:"lines"`
		} `json:"batches"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, "", zap.NewNop())
	err := sink.ShipBatches(context.Background(), map[string][]string{"CP-1": {"a", "b"}})
	require.NoError(t, err)
	require.Len(t, got.Batches, 1)
	require.Equal(t, "CP-1", got.Batches[0].ChargePointID)
	require.Equal(t, []string{"a", "b"}, got.Batches[0].Lines)
}

func TestHTTPSinkNon2xxIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, "", zap.NewNop())
	err := sink.ShipLogs(context.Background(), []Record{{ChargePointID: "CP-1", Raw: "x"}})
	require.Error(t, err)
}

func TestHTTPSinkDisabledWithoutURL(t *testing.T) {
	sink := NewHTTPSink("", "", zap.NewNop())
	require.NoError(t, sink.ShipLogs(context.Background(), []Record{{ChargePointID: "CP-1", Raw: "x"}}))
	require.NoError(t, sink.ShipBatches(context.Background(), map[string][]string{"CP-1": {"x"}}))
}
