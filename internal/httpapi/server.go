package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chargecore/internal/commands"
	"chargecore/internal/ledger"
	"chargecore/internal/registry"
)

// Server exposes the control-plane HTTP API: remote commands from the billing
// backend plus read-only session snapshots. Internal routes are secured by a
// shared-secret header.
type Server struct {
	secret     string
	registry   *registry.Registry
	ledger     *ledger.Ledger
	dispatcher *commands.Dispatcher
	logger     *zap.Logger
}

// NewServer builds the API server.
func NewServer(secret string, reg *registry.Registry, txLedger *ledger.Ledger, dispatcher *commands.Dispatcher, logger *zap.Logger) *Server {
	return &Server{
		secret:     secret,
		registry:   reg,
		ledger:     txLedger,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Routes assembles the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(s.requireSecret)
		r.Post("/commands/remote-start", s.remoteStart)
		r.Post("/commands/remote-stop", s.remoteStop)
		r.Post("/commands/change-availability", s.changeAvailability)
		r.Post("/commands/change-configuration", s.changeConfiguration)
		r.Get("/charge-points", s.listChargePoints)
		r.Get("/charge-points/{chargePointId}", s.getChargePoint)
	})

	return r
}

func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret == "" {
			next.ServeHTTP(w, r)
			return
		}
		provided := r.Header.Get("X-Internal-Token")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.secret)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type remoteStartRequest struct {
	ChargePointID string `json:"cpId"`
	IdTag         string `json:"idTag"`
	ConnectorID   int    `json:"connectorId"`
}

type remoteStopRequest struct {
	ChargePointID string `json:"cpId"`
	TransactionID int    `json:"transactionId"`
}

func (s *Server) remoteStart(w http.ResponseWriter, r *http.Request) {
	var req remoteStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ChargePointID == "" || req.IdTag == "" {
		http.Error(w, "cpId and idTag are required", http.StatusBadRequest)
		return
	}

	if err := s.dispatcher.RemoteStart(req.ChargePointID, req.IdTag, req.ConnectorID); err != nil {
		s.logger.Warn("remote start rejected",
			zap.String("charge_point_id", req.ChargePointID), zap.Error(err))
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
}

func (s *Server) remoteStop(w http.ResponseWriter, r *http.Request) {
	var req remoteStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ChargePointID == "" || req.TransactionID == 0 {
		http.Error(w, "cpId and transactionId are required", http.StatusBadRequest)
		return
	}

	if err := s.dispatcher.RemoteStop(req.ChargePointID, req.TransactionID); err != nil {
		s.logger.Warn("remote stop rejected",
			zap.String("charge_point_id", req.ChargePointID), zap.Error(err))
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
}

type changeAvailabilityRequest struct {
	ChargePointID string `json:"cpId"`
	ConnectorID   int    `json:"connectorId"`
	Type          string `json:"type"`
}

type changeConfigurationRequest struct {
	ChargePointID string `json:"cpId"`
	Key           string `json:"key"`
	Value         string `json:"value"`
}

func (s *Server) changeAvailability(w http.ResponseWriter, r *http.Request) {
	var req changeAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ChargePointID == "" || (req.Type != "Operative" && req.Type != "Inoperative") {
		http.Error(w, "cpId and type Operative|Inoperative are required", http.StatusBadRequest)
		return
	}

	if err := s.dispatcher.ChangeAvailability(req.ChargePointID, req.ConnectorID, req.Type); err != nil {
		s.logger.Warn("change availability rejected",
			zap.String("charge_point_id", req.ChargePointID), zap.Error(err))
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
}

func (s *Server) changeConfiguration(w http.ResponseWriter, r *http.Request) {
	var req changeConfigurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ChargePointID == "" || req.Key == "" {
		http.Error(w, "cpId and key are required", http.StatusBadRequest)
		return
	}

	if err := s.dispatcher.ChangeConfiguration(req.ChargePointID, req.Key, req.Value); err != nil {
		s.logger.Warn("change configuration rejected",
			zap.String("charge_point_id", req.ChargePointID), zap.Error(err))
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
}

func (s *Server) listChargePoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.SnapshotAll())
}

func (s *Server) getChargePoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")
	snapshot, ok := s.registry.Snapshot(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
