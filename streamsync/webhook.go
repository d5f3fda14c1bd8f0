package streamsync

import (
	"context"
	"errors"
	"log/slog"

	"github.com/onnwee/livecast/backend/livepeer"
	"github.com/onnwee/livecast/backend/store"
	"github.com/onnwee/livecast/backend/telemetry"
)

// HandleEvent applies a verified platform webhook. Events for unknown streams and event types
// we do not track are acknowledged without changes; applied reports whether anything was written.
func (s *Syncer) HandleEvent(ctx context.Context, ev *livepeer.WebhookEvent) (applied bool, err error) {
	defer func() {
		outcome := "ignored"
		switch {
		case err != nil:
			outcome = "error"
		case applied:
			outcome = "applied"
		}
		telemetry.IncWebhook(ev.Event, outcome)
	}()

	vendorID := ev.StreamID()
	if vendorID == "" {
		return false, nil
	}
	st, err := s.store.GetStreamByVendorID(ctx, vendorID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "stream_sync"),
		slog.String("stream_id", st.ID), slog.String("event", ev.Event))

	now := s.now()
	switch ev.Event {
	case livepeer.EventStreamStarted:
		if err := s.store.SetLive(ctx, st.ID, now); err != nil {
			return false, err
		}
		s.resolver.InvalidateViews(ctx, st.ID)
	case livepeer.EventStreamIdle:
		if err := s.store.SetEnded(ctx, st.ID, now); err != nil {
			return false, err
		}
		s.resolver.InvalidateViews(ctx, st.ID)
	case livepeer.EventAssetReady:
		a := ev.Payload.Asset
		if a == nil || !a.Ready() {
			return false, nil
		}
		if err := s.store.SetAsset(ctx, st.ID, a.ID, a.PlaybackID); err != nil {
			return false, err
		}
	case livepeer.EventRecordingReady:
		// the session names the asset but not its playback id; let the resolver find it
		if err := s.syncStream(ctx, st); err != nil {
			return false, err
		}
	default:
		return false, nil
	}
	log.Info("webhook applied")
	return true, nil
}
