package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Guardefi/landing1.2-sub002/internal/ledger"
	"github.com/Guardefi/landing1.2-sub002/internal/middleware"
	"github.com/Guardefi/landing1.2-sub002/internal/models"
)

// EventHandler accepts audit event submissions and feeds the ledger pipeline.
type EventHandler struct {
	Pipeline *ledger.Pipeline
}

// SubmitAck is the definitive commit acknowledgment returned to callers.
type SubmitAck struct {
	EventID     string `json:"event_id"`
	BlockNumber int64  `json:"block_number"`
	ContentHash string `json:"content_hash"`
	BlockHash   string `json:"block_hash"`
}

// Submit records one audit event. The response is either a commit ack with
// the allocated block position or a definitive rejection; queue-full is
// retryable (429), a commit failure after retries is 503.
func (h *EventHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var event models.AuditEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		JSONError(w, "invalid json", http.StatusBadRequest)
		return
	}

	// The authenticated identity is the default actor/org when the payload
	// does not name one.
	if event.Actor == "" {
		event.Actor = middleware.Actor(r.Context())
	}
	if event.OrgID == "" {
		event.OrgID = middleware.Org(r.Context())
	}
	if event.SourceAddr == "" {
		event.SourceAddr = r.RemoteAddr
	}
	if event.ClientAgent == "" {
		event.ClientAgent = r.UserAgent()
	}

	if fields := event.Validate(); fields != nil {
		JSONValidationError(w, "invalid audit event", fields, http.StatusBadRequest)
		return
	}

	block, err := h.Pipeline.Submit(r.Context(), event)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrInvalidEvent):
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, ledger.ErrQueueFull):
		w.Header().Set("Retry-After", "1")
		JSONError(w, "ingestion queue full, retry later", http.StatusTooManyRequests)
		return
	case errors.Is(err, ledger.ErrClosed):
		JSONError(w, "service shutting down", http.StatusServiceUnavailable)
		return
	case errors.Is(err, ledger.ErrNotCommitted):
		JSONError(w, "event not committed, retry later", http.StatusServiceUnavailable)
		return
	default:
		slog.Error("submit event", "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, SubmitAck{
		EventID:     block.Event.EventID,
		BlockNumber: block.BlockNumber,
		ContentHash: block.ContentHash,
		BlockHash:   block.BlockHash,
	})
}
