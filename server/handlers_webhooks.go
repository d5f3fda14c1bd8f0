package server

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/onnwee/livecast/backend/apperr"
	"github.com/onnwee/livecast/backend/livepeer"
	"github.com/onnwee/livecast/backend/telemetry"
)

const maxWebhookBody = 1 << 20

// HandleLivepeerWebhook verifies and applies a video platform event.
func (h *Handlers) HandleLivepeerWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	secret := h.cfg.LivepeerWebhookSecret
	if secret == "" || h.sync == nil {
		writeError(w, r, apperr.Unavailable("webhooks"))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, r, apperr.Validation("unreadable body"))
		return
	}
	if err := livepeer.VerifyWebhook(secret, r.Header.Get(livepeer.SignatureHeader), body, h.now()); err != nil {
		telemetry.IncWebhook("unknown", "rejected")
		telemetry.LoggerWithCorr(ctx).Warn("webhook signature rejected", slog.Any("err", err), slog.String("remote_addr", r.RemoteAddr))
		writeError(w, r, apperr.Unauthorized("invalid signature"))
		return
	}
	ev, err := livepeer.ParseWebhook(body)
	if err != nil {
		writeError(w, r, apperr.Validation("invalid event: %v", err))
		return
	}
	applied, err := h.sync.HandleEvent(ctx, ev)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		writeError(w, r, err)
		return
	}
	telemetry.LoggerWithCorr(ctx).Info("webhook handled", slog.String("event", ev.Event), slog.String("vendor_stream_id", ev.StreamID()), slog.Bool("applied", applied))
	writeJSON(w, http.StatusOK, map[string]any{"event": ev.Event, "applied": applied})
}
