package playback

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/livecast/backend/cache"
	"github.com/onnwee/livecast/backend/store"
	"github.com/onnwee/livecast/backend/telemetry"
)

// Recording describes the on-demand copy of an ended stream.
type Recording struct {
	AssetID    string `json:"assetId,omitempty"`
	PlaybackID string `json:"playbackId"`
	Status     string `json:"status"`
	HLSURL     string `json:"hlsUrl"`
	MP4URL     string `json:"mp4Url,omitempty"`
}

// Recording status values.
const (
	RecordingReady      = "ready"
	RecordingProcessing = "processing"
)

// Recording resolves the recording of an ended stream. A stream still live yields ErrNoRecording.
func (r *Resolver) Recording(ctx context.Context, st *store.Stream) (*Recording, error) {
	res, err := r.Resolve(ctx, st)
	if errors.Is(err, ErrNoPlayback) {
		return nil, ErrNoRecording
	}
	if err != nil {
		return nil, err
	}
	if res.Kind != KindRecording {
		return nil, ErrNoRecording
	}
	res.Apply(st)

	rec := &Recording{
		AssetID:    res.AssetID,
		PlaybackID: res.PlaybackID,
		Status:     RecordingReady,
		HLSURL:     res.HLSURL,
	}
	// the live playback id keeps serving while the asset is still transcoding
	if res.Source == SourceStreamFallback {
		rec.Status = RecordingProcessing
	}
	info, err := r.vendor.GetPlaybackInfo(ctx, res.PlaybackID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("recording playback info failed", slog.String("component", "playback"),
			slog.String("stream_id", st.ID), slog.Any("err", err))
		return rec, nil
	}
	if u := info.HLSURL(); u != "" {
		rec.HLSURL = u
	}
	rec.MP4URL = info.MP4URL()
	return rec, nil
}

// Views is the view counter pair shown on a stream page.
type Views struct {
	TotalViews  int64 `json:"totalViews"`
	ViewerCount int   `json:"viewerCount"`
}

func viewsKey(id string) string { return "views:" + id }

// Views returns total views across the live and recorded playback ids and, while live, the
// concurrent viewer count. Platform failures fall back to the last stored values.
func (r *Resolver) Views(ctx context.Context, st *store.Stream) (*Views, error) {
	var out Views
	if r.cache != nil {
		if ok, err := cache.GetJSON(ctx, r.cache, viewsKey(st.ID), &out); err == nil && ok {
			return &out, nil
		}
	}

	out = Views{TotalViews: st.ViewCount, ViewerCount: st.ViewerCount}
	var streamViews, assetViews int64
	var viewers int
	var fetched bool

	g, gctx := errgroup.WithContext(ctx)
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "playback"), slog.String("stream_id", st.ID))
	if st.PlaybackID != "" {
		g.Go(func() error {
			n, err := r.vendor.TotalViews(gctx, st.PlaybackID)
			if err != nil {
				return err
			}
			streamViews = n
			return nil
		})
	}
	if st.AssetPlaybackID != "" && st.AssetPlaybackID != st.PlaybackID {
		g.Go(func() error {
			n, err := r.vendor.TotalViews(gctx, st.AssetPlaybackID)
			if err != nil {
				return err
			}
			assetViews = n
			return nil
		})
	}
	if st.IsLive && st.PlaybackID != "" {
		viewers = st.ViewerCount
		// best effort; a failed viewer count keeps the stored one and does not void the totals
		g.Go(func() error {
			n, err := r.vendor.ConcurrentViewers(gctx, st.PlaybackID)
			if err != nil {
				if gctx.Err() == nil {
					log.Warn("concurrent viewers unavailable", slog.Any("err", err))
				}
				return nil
			}
			viewers = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("view counts unavailable; serving stored values", slog.Any("err", err))
	} else if st.PlaybackID != "" || st.AssetPlaybackID != "" {
		fetched = true
		out = Views{TotalViews: streamViews + assetViews, ViewerCount: viewers}
	}

	if fetched && (out.TotalViews != st.ViewCount || out.ViewerCount != st.ViewerCount) {
		if err := r.store.SetCounts(ctx, st.ID, out.TotalViews, out.ViewerCount); err != nil {
			log.Warn("write back view counts", slog.Any("err", err))
		}
		st.ViewCount, st.ViewerCount = out.TotalViews, out.ViewerCount
	}
	if r.cache != nil && fetched {
		if err := cache.SetJSON(ctx, r.cache, viewsKey(st.ID), out, r.ttl); err != nil {
			log.Debug("cache view counts", slog.Any("err", err))
		}
	}
	return &out, nil
}

// InvalidateViews drops cached counts so the next Views call refetches.
func (r *Resolver) InvalidateViews(ctx context.Context, streamID string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, viewsKey(streamID))
}

// Thumbnail returns a working preview image for st, preferring the stored URL while it still
// serves an image, then the platform's advertised thumbnail, then the generated keyframe URL.
func (r *Resolver) Thumbnail(ctx context.Context, st *store.Stream) (string, error) {
	if st.ThumbnailURL != "" && r.vendor.VerifyThumbnail(ctx, st.ThumbnailURL) {
		return st.ThumbnailURL, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	pid := st.AssetPlaybackID
	if pid == "" {
		pid = st.PlaybackID
	}
	if pid == "" {
		return "", ErrNoThumbnail
	}

	var url string
	info, err := r.vendor.GetPlaybackInfo(ctx, pid)
	switch {
	case ctx.Err() != nil:
		return "", ctx.Err()
	case err == nil:
		url = info.ThumbnailURL()
	}
	if url == "" {
		if gen := r.vendor.GenerateThumbnailURL(pid); gen != "" && r.vendor.VerifyThumbnail(ctx, gen) {
			url = gen
		}
	}
	if url == "" {
		return "", ErrNoThumbnail
	}
	if url != st.ThumbnailURL {
		if err := r.store.SetThumbnail(ctx, st.ID, url); err != nil {
			slog.Warn("write back thumbnail", slog.String("component", "playback"),
				slog.String("stream_id", st.ID), slog.Any("err", err))
		}
		st.ThumbnailURL = url
	}
	return url, nil
}
