// Package rest serves the gateway's read-only status API: health,
// Prometheus metrics, bridge status and recent transactions.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/bridge"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/journal"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/logger"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/transport/mqtt"
)

// maxTransactionLimit caps how many journal records one request may ask
// for.
const maxTransactionLimit = 1000

// Server is the HTTP status server.
type Server struct {
	bridge    *bridge.Bridge
	transport *mqtt.Client
	store     journal.Store
	log       *logger.Logger

	srv *http.Server
}

// Config holds server settings.
type Config struct {
	Port int
}

// NewServer creates a status server. store may be nil when journaling
// is disabled.
func NewServer(b *bridge.Bridge, transport *mqtt.Client, store journal.Store, log *logger.Logger, config Config) *Server {
	if log == nil {
		log = logger.Discard()
	}

	s := &Server{
		bridge:    b,
		transport: transport,
		store:     store,
		log:       log.Component("api"),
	}

	r := mux.NewRouter()
	s.registerRoutes(r)

	port := config.Port
	if port == 0 {
		port = 8080
	}
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}

	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.log.Info("status API listening", "addr", s.srv.Addr)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("status API failed", "error", err)
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) registerRoutes(r *mux.Router) {
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods("GET")
	v1.HandleFunc("/transactions", s.handleTransactions).Methods("GET")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// status is the /api/v1/status response body.
type status struct {
	EngineState string       `json:"engine_state"`
	Bridge      bridge.Stats `json:"bridge"`
	Transport   mqtt.Info    `json:"transport"`
	Time        time.Time    `json:"time"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, status{
		EngineState: s.bridge.EngineState().String(),
		Bridge:      s.bridge.Stats(),
		Transport:   s.transport.Info(),
		Time:        time.Now(),
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		if n > maxTransactionLimit {
			n = maxTransactionLimit
		}
		limit = n
	}

	records, err := s.store.Recent(limit)
	if err != nil {
		s.log.Error("journal query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "journal query failed"})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
