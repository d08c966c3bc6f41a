package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/bridge"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/journal"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/modbus"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/transport/mqtt"
)

type idleExecutor struct{}

func (idleExecutor) Execute(request []byte, timeout time.Duration) ([]byte, error) {
	return nil, nil
}
func (idleExecutor) State() modbus.State { return modbus.StateIdle }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, []byte) error { return nil }

type fixedStore struct {
	records   []*journal.Record
	lastLimit int
}

func (s *fixedStore) Save(*journal.Record) error { return nil }
func (s *fixedStore) Recent(limit int) ([]*journal.Record, error) {
	s.lastLimit = limit
	if limit < len(s.records) {
		return s.records[:limit], nil
	}
	return s.records, nil
}
func (s *fixedStore) Close() error { return nil }

func testServer(store journal.Store) *Server {
	b := bridge.New(bridge.DefaultConfig(), idleExecutor{}, nopPublisher{}, nil, nil)
	transport := mqtt.NewClient(mqtt.DefaultConfig(), nil)
	return NewServer(b, transport, store, nil, Config{Port: 0})
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, testServer(nil), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestStatus(t *testing.T) {
	rec := get(t, testServer(nil), "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		EngineState string `json:"engine_state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.EngineState != "idle" {
		t.Errorf("engine_state = %q, want idle", body.EngineState)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, testServer(nil), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestTransactionsWithoutJournal(t *testing.T) {
	rec := get(t, testServer(nil), "/api/v1/transactions")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when journal disabled", rec.Code)
	}
}

func TestTransactionsLimit(t *testing.T) {
	store := &fixedStore{records: []*journal.Record{
		{ID: "a", Outcome: "ok"},
		{ID: "b", Outcome: "silence"},
		{ID: "c", Outcome: "ok"},
	}}
	s := testServer(store)

	rec := get(t, s, "/api/v1/transactions?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var records []*journal.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}

	rec = get(t, s, "/api/v1/transactions?limit=zero")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for bad limit", rec.Code)
	}
}

func TestTransactionsLimitCapped(t *testing.T) {
	store := &fixedStore{}
	s := testServer(store)

	rec := get(t, s, "/api/v1/transactions?limit=10000000")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if store.lastLimit != maxTransactionLimit {
		t.Errorf("store queried with limit %d, want %d", store.lastLimit, maxTransactionLimit)
	}
}
