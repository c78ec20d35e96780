package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Guardefi/landing1.2-sub002/internal/ledger"
)

// VerifyHandler runs chain verification on demand.
type VerifyHandler struct {
	Verifier *ledger.ChainVerifier
}

// Verify replays a block range and returns the itemized report. Body:
// {"start_block": N, "end_block": M}; both omitted verifies the full chain.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var input struct {
		StartBlock int64 `json:"start_block"`
		EndBlock   int64 `json:"end_block"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			JSONError(w, "invalid json", http.StatusBadRequest)
			return
		}
	}

	if input.StartBlock == 0 && input.EndBlock == 0 {
		report, err := h.Verifier.VerifyChain(r.Context())
		if err != nil {
			slog.Error("verify chain", "error", err)
			JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	if input.StartBlock < 1 || input.EndBlock < input.StartBlock {
		JSONError(w, "invalid block range", http.StatusBadRequest)
		return
	}
	report, err := h.Verifier.VerifyRange(r.Context(), input.StartBlock, input.EndBlock)
	if err != nil {
		slog.Error("verify range", "start", input.StartBlock, "end", input.EndBlock, "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
