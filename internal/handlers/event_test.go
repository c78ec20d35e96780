package handlers

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Guardefi/landing1.2-sub002/internal/ledger"
	"github.com/Guardefi/landing1.2-sub002/internal/mirror"
	"github.com/Guardefi/landing1.2-sub002/internal/repo"
)

var (
	handlerKeyOnce sync.Once
	handlerKey     *rsa.PrivateKey
	handlerKeyErr  error
)

func handlerSigner(t *testing.T) *ledger.Signer {
	t.Helper()
	handlerKeyOnce.Do(func() {
		handlerKey, handlerKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if handlerKeyErr != nil {
		t.Fatalf("generate test key: %v", handlerKeyErr)
	}
	s, err := ledger.NewSigner(handlerKey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func testPipeline(t *testing.T, store ledger.Store) *ledger.Pipeline {
	t.Helper()
	signer := handlerSigner(t)
	p := ledger.NewPipeline(store, signer,
		ledger.NewMirrorer(store, mirror.Noop{}),
		ledger.NewAnomalyDetector(time.Hour, 1000), 16)
	p.Run()
	t.Cleanup(p.Close)
	return p
}

func TestEventHandler_Submit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	// Signature and event id are generated inside the pipeline, so the
	// insert arguments cannot be pinned here.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT last_block_number, last_block_hash FROM chain_metadata`).
		WillReturnRows(sqlmock.NewRows([]string{"last_block_number", "last_block_hash"}).
			AddRow(0, ledger.GenesisHash))
	mock.ExpectQuery(`INSERT INTO ledger_blocks`).
		WillReturnRows(sqlmock.NewRows([]string{"committed_at"}).AddRow(time.Now()))
	mock.ExpectExec(`UPDATE chain_metadata`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	h := &EventHandler{Pipeline: testPipeline(t, repo.NewBlockRepo(db))}

	body, _ := json.Marshal(map[string]interface{}{
		"event_type": "key_accessed",
		"actor":      "alice",
		"action":     "read",
		"risk_score": 10,
	})
	req := httptest.NewRequest("POST", "/v1/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Submit(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Submit status: got %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	var ack SubmitAck
	if err := json.NewDecoder(rr.Body).Decode(&ack); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ack.BlockNumber != 1 {
		t.Errorf("block number: got %d, want 1", ack.BlockNumber)
	}
	if ack.EventID == "" || ack.ContentHash == "" || ack.BlockHash == "" {
		t.Errorf("incomplete ack: %+v", ack)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestEventHandler_Submit_BadJSON(t *testing.T) {
	h := &EventHandler{}

	req := httptest.NewRequest("POST", "/v1/events", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Submit(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Submit status: got %d, want 400", rr.Code)
	}
}

func TestEventHandler_Submit_MissingFields(t *testing.T) {
	h := &EventHandler{}

	body, _ := json.Marshal(map[string]interface{}{"event_type": "login"})
	req := httptest.NewRequest("POST", "/v1/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Submit(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Submit status: got %d, want 400", rr.Code)
	}
	var out struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Fields["action"] == "" {
		t.Errorf("expected action field error, got %v", out.Fields)
	}
}

func TestEventHandler_Submit_BadRiskScore(t *testing.T) {
	h := &EventHandler{}

	body, _ := json.Marshal(map[string]interface{}{
		"event_type": "login",
		"actor":      "alice",
		"action":     "authenticate",
		"risk_score": 500,
	})
	req := httptest.NewRequest("POST", "/v1/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Submit(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Submit status: got %d, want 400", rr.Code)
	}
}

func TestEventHandler_Submit_ShuttingDown(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := repo.NewBlockRepo(db)
	p := ledger.NewPipeline(store, handlerSigner(t),
		ledger.NewMirrorer(store, mirror.Noop{}),
		ledger.NewAnomalyDetector(time.Hour, 1000), 16)
	p.Run()
	p.Close()
	h := &EventHandler{Pipeline: p}

	body, _ := json.Marshal(map[string]interface{}{
		"event_type": "login",
		"actor":      "alice",
		"action":     "authenticate",
	})
	req := httptest.NewRequest("POST", "/v1/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Submit(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Submit status: got %d, want 503", rr.Code)
	}
}
