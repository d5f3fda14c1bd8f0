package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/livecast/backend/apperr"
	"github.com/onnwee/livecast/backend/db"
	"github.com/onnwee/livecast/backend/store"
	"github.com/onnwee/livecast/backend/streamsync"
	"github.com/onnwee/livecast/backend/telemetry"
)

type vendorStatus struct {
	Enabled        bool   `json:"enabled"`
	Breaker        string `json:"breaker,omitempty"`
	InFlight       int    `json:"inFlight"`
	MaxConcurrency int    `json:"maxConcurrency"`
}

type adminStatus struct {
	Livepeer     vendorStatus    `json:"livepeer"`
	Cache        string          `json:"cache"`
	LiveStreams  int             `json:"liveStreams"`
	LastSync     *time.Time      `json:"lastSync,omitempty"`
	SyncInterval string          `json:"syncInterval"`
	Features     map[string]bool `json:"features"`
}

// HandleAdminStatus reports integration health and reconciler progress.
func (h *Handlers) HandleAdminStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := adminStatus{
		SyncInterval: h.cfg.SyncInterval.String(),
		Features: map[string]bool{
			"auth":     h.verifier != nil,
			"livepeer": h.livepeer != nil,
			"pinning":  h.cfg.PinningEnabled(),
			"uploads":  h.uploads != nil,
			"ens":      h.ens != nil,
			"webhooks": h.cfg.LivepeerWebhookSecret != "" && h.sync != nil,
		},
	}
	if h.livepeer != nil {
		out.Livepeer = vendorStatus{
			Enabled:        true,
			Breaker:        h.livepeer.BreakerState(),
			InFlight:       h.livepeer.InFlight(),
			MaxConcurrency: h.livepeer.MaxConcurrency(),
		}
	}
	if h.cache != nil {
		out.Cache = h.cache.Backend()
	}
	live := true
	streams, err := h.store.ListStreams(ctx, store.StreamFilter{Live: &live, Page: store.Page{Limit: 100}})
	if err != nil {
		writeError(w, r, err)
		return
	}
	out.LiveStreams = len(streams)

	last, err := db.GetKVTime(ctx, h.db.DB, streamsync.LastRunKey)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("failed to read last sync time", slog.Any("err", err))
	} else if !last.IsZero() {
		out.LastSync = &last
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleAdminResync reconciles one stream with the video platform immediately.
func (h *Handlers) HandleAdminResync(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		writeError(w, r, apperr.Unavailable("video platform"))
		return
	}
	id := chi.URLParam(r, "id")
	st, err := h.sync.Resync(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = apperr.NotFound("stream")
		}
		writeError(w, r, err)
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("stream resynced", slog.String("stream_id", id), slog.Bool("live", st.IsLive))
	writeJSON(w, http.StatusOK, st)
}
