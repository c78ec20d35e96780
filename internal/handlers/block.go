package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Guardefi/landing1.2-sub002/internal/ledger"
	"github.com/Guardefi/landing1.2-sub002/internal/models"
	"github.com/Guardefi/landing1.2-sub002/internal/repo"
)

// BlockHandler serves read-only ledger queries.
type BlockHandler struct {
	Repo *repo.BlockRepo
}

// ListBlocks returns committed blocks. Query: actor, org, event_type,
// resource_type, from, to (RFC 3339), sort=asc|desc (default desc),
// limit (default 50, max 200), offset. Ascending order is block-number
// order with no gaps hidden by pagination.
func (h *BlockHandler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.BlockFilter{
		Actor:        q.Get("actor"),
		OrgID:        q.Get("org"),
		EventType:    q.Get("event_type"),
		ResourceType: q.Get("resource_type"),
		Ascending:    q.Get("sort") == "asc",
		Limit:        50,
	}
	if l := q.Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 && val <= 200 {
			filter.Limit = val
		}
	}
	if o := q.Get("offset"); o != "" {
		if val, err := strconv.Atoi(o); err == nil && val >= 0 {
			filter.Offset = val
		}
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			JSONError(w, "invalid 'from' timestamp", http.StatusBadRequest)
			return
		}
		filter.From = &t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			JSONError(w, "invalid 'to' timestamp", http.StatusBadRequest)
			return
		}
		filter.To = &t
	}

	blocks, total, err := h.Repo.List(r.Context(), filter)
	if err != nil {
		slog.Error("list blocks", "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}
	if blocks == nil {
		blocks = []models.Block{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":  blocks,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetBlock returns one block by number.
func (h *BlockHandler) GetBlock(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.ParseInt(chi.URLParam(r, "number"), 10, 64)
	if err != nil || number < 1 {
		JSONError(w, "invalid block number", http.StatusBadRequest)
		return
	}
	block, err := h.Repo.Get(r.Context(), number)
	if errors.Is(err, ledger.ErrBlockNotFound) {
		JSONError(w, "block not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("get block", "block_number", number, "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, block)
}

// GetEvent returns the block committed for an event id.
func (h *BlockHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	block, err := h.Repo.GetByEventID(r.Context(), eventID)
	if errors.Is(err, ledger.ErrBlockNotFound) {
		JSONError(w, "event not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("get event", "event_id", eventID, "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, block)
}

// GetChain returns the chain-tip metadata.
func (h *BlockHandler) GetChain(w http.ResponseWriter, r *http.Request) {
	meta, err := h.Repo.Metadata(r.Context())
	if err != nil {
		slog.Error("chain metadata", "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}
