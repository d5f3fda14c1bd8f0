package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/livecast/backend/apperr"
	"github.com/onnwee/livecast/backend/telemetry"
)

func (h *Handlers) HandleMintStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.loadStream(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.mint.StatusOf(st))
}

// HandlePrepareMint pins token metadata for the caller's ended stream.
func (h *Handlers) HandlePrepareMint(w http.ResponseWriter, r *http.Request) {
	st, err := h.loadStream(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.playback == nil {
		writeError(w, r, apperr.Unavailable("video platform"))
		return
	}
	out, err := h.mint.Prepare(r.Context(), st, caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("mint prepared", slog.String("stream_id", st.ID), slog.String("token_uri", out.TokenURI))
	writeJSON(w, http.StatusOK, out)
}

type mintConfirmation struct {
	TxHash          string `json:"txHash"`
	ContractAddress string `json:"contractAddress"`
	TokenID         string `json:"tokenId"`
}

// HandleConfirmMint records the on-chain mint submitted by the creator's wallet.
func (h *Handlers) HandleConfirmMint(w http.ResponseWriter, r *http.Request) {
	st, err := h.loadStream(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in mintConfirmation
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if in.TxHash == "" || in.ContractAddress == "" || in.TokenID == "" {
		writeError(w, r, apperr.Validation("txHash, contractAddress and tokenId are required"))
		return
	}
	out, err := h.mint.Confirm(r.Context(), st, caller(r),
		strings.TrimSpace(in.TxHash), strings.TrimSpace(in.ContractAddress), strings.TrimSpace(in.TokenID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("mint confirmed", slog.String("stream_id", st.ID), slog.String("tx", out.TxHash))
	writeJSON(w, http.StatusOK, out)
}
