// Package playback decides what a viewer should watch for a stream: the live broadcast while the
// platform reports it active, otherwise the best recording it can find. Discovered identifiers
// are written back to the stream row so later reads skip the platform.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/onnwee/livecast/backend/cache"
	"github.com/onnwee/livecast/backend/livepeer"
	"github.com/onnwee/livecast/backend/store"
	"github.com/onnwee/livecast/backend/telemetry"
)

var (
	// ErrNoPlayback means the stream has never gone live and has nothing to play.
	ErrNoPlayback = errors.New("stream has no playback available")
	// ErrNoRecording means the stream has not ended or its recording cannot be located.
	ErrNoRecording = errors.New("stream has no recording")
	// ErrNoThumbnail means no usable preview image could be found for the stream.
	ErrNoThumbnail = errors.New("stream has no thumbnail")
)

// Kind of playback.
const (
	KindLive      = "live"
	KindRecording = "recording"
)

// Source records which step produced the playback id.
const (
	SourceStream         = "stream"
	SourceCache          = "cache"
	SourceAsset          = "asset"
	SourceSession        = "session"
	SourceAssets         = "assets"
	SourceStreamFallback = "stream-fallback"
)

// Vendor is the subset of the platform client the resolver needs.
type Vendor interface {
	GetStream(ctx context.Context, id string) (*livepeer.Stream, error)
	ListSessions(ctx context.Context, streamID string) ([]livepeer.Session, error)
	GetAsset(ctx context.Context, id string) (*livepeer.Asset, error)
	ListAssets(ctx context.Context, streamID string) ([]livepeer.Asset, error)
	GetPlaybackInfo(ctx context.Context, playbackID string) (*livepeer.PlaybackInfo, error)
	TotalViews(ctx context.Context, playbackID string) (int64, error)
	ConcurrentViewers(ctx context.Context, playbackID string) (int, error)
	VerifyThumbnail(ctx context.Context, url string) bool
	GenerateThumbnailURL(playbackID string) string
	HLSURL(playbackID string) string
}

// Store receives write-backs.
type Store interface {
	SetLive(ctx context.Context, id string, at time.Time) error
	SetEnded(ctx context.Context, id string, at time.Time) error
	SetAsset(ctx context.Context, id, assetID, assetPlaybackID string) error
	SetThumbnail(ctx context.Context, id, url string) error
	SetCounts(ctx context.Context, id string, views int64, viewers int) error
}

// Result of Resolve.
type Result struct {
	PlaybackID   string `json:"playbackId"`
	Kind         string `json:"kind"`
	Source       string `json:"source"`
	HLSURL       string `json:"hlsUrl"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	AssetID      string `json:"assetId,omitempty"`

	// lifecycle changes observed while resolving
	WentLive  *time.Time `json:"-"`
	WentEnded *time.Time `json:"-"`
}

// Apply copies what Resolve learned onto st so the caller can return the fresh row.
func (r *Result) Apply(st *store.Stream) {
	if r.WentLive != nil {
		st.IsLive = true
		st.EndedAt = nil
		if st.StartedAt == nil {
			st.StartedAt = r.WentLive
		}
	}
	if r.WentEnded != nil {
		st.IsLive = false
		st.ViewerCount = 0
		if st.EndedAt == nil {
			st.EndedAt = r.WentEnded
		}
		if st.StartedAt == nil {
			st.StartedAt = r.WentEnded
		}
	}
	if r.Kind == KindRecording && r.AssetID != "" {
		st.AssetID = r.AssetID
		st.AssetPlaybackID = r.PlaybackID
	}
}

// Resolver runs the resolution workflow. Concurrent calls for the same stream share one run.
type Resolver struct {
	vendor Vendor
	store  Store
	cache  cache.Cache
	ttl    time.Duration
	now    func() time.Time
	group  singleflight.Group
}

// New builds a Resolver. c may be nil to disable view caching.
func New(v Vendor, s Store, c cache.Cache, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Resolver{vendor: v, store: s, cache: c, ttl: ttl, now: time.Now}
}

// Resolve finds the playback id for st.
func (r *Resolver) Resolve(ctx context.Context, st *store.Stream) (*Result, error) {
	v, err, _ := r.group.Do("resolve:"+st.ID, func() (any, error) {
		return r.resolve(ctx, st)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*Result)
	return &res, nil
}

func (r *Resolver) resolve(ctx context.Context, st *store.Stream) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerName, "playback.resolve",
		attribute.String("stream_id", st.ID))
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "playback"), slog.String("stream_id", st.ID))

	vendorID := st.VendorID()
	if vendorID == "" {
		// provisioned without the platform; only a stored recording can play
		if st.AssetPlaybackID != "" {
			return r.finish(st, &Result{PlaybackID: st.AssetPlaybackID, Kind: KindRecording, Source: SourceCache, AssetID: st.AssetID}), nil
		}
		return nil, ErrNoPlayback
	}

	res := &Result{}
	if !st.Ended() {
		vs, err := r.vendor.GetStream(ctx, vendorID)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			// an unanswered lookup says nothing about the lifecycle; keep the stored state
			log.Warn("stream lookup failed", slog.Any("err", err))
			if st.IsLive && st.PlaybackID != "" {
				return r.finish(st, &Result{PlaybackID: st.PlaybackID, Kind: KindLive, Source: SourceCache}), nil
			}
			if !st.Started() {
				return nil, ErrNoPlayback
			}
			return r.recording(ctx, st, vendorID, nil, log)
		case vs.IsActive:
			pid := vs.PlaybackID
			if pid == "" {
				pid = st.PlaybackID
			}
			res = &Result{PlaybackID: pid, Kind: KindLive, Source: SourceStream}
			if !st.IsLive || !st.Started() {
				at := r.now()
				res.WentLive = &at
				if err := r.store.SetLive(ctx, st.ID, at); err != nil {
					log.Warn("write back live state", slog.Any("err", err))
				}
			}
			return r.finish(st, res), nil
		}
		if !st.Started() && !st.IsLive {
			return nil, ErrNoPlayback
		}
		// started earlier and no longer active
		at := r.now()
		res.WentEnded = &at
		if err := r.store.SetEnded(ctx, st.ID, at); err != nil {
			log.Warn("write back ended state", slog.Any("err", err))
		}
	}

	return r.recording(ctx, st, vendorID, res.WentEnded, log)
}

func (r *Resolver) recording(ctx context.Context, st *store.Stream, vendorID string, wentEnded *time.Time, log *slog.Logger) (*Result, error) {
	found, err := r.findRecording(ctx, st, vendorID, log)
	if err != nil {
		return nil, err
	}
	found.WentEnded = wentEnded
	return r.finish(st, found), nil
}

func (r *Resolver) findRecording(ctx context.Context, st *store.Stream, vendorID string, log *slog.Logger) (*Result, error) {
	recording := func(source, assetID, pid string) *Result {
		return &Result{PlaybackID: pid, Kind: KindRecording, Source: source, AssetID: assetID}
	}

	if st.AssetPlaybackID != "" {
		return recording(SourceCache, st.AssetID, st.AssetPlaybackID), nil
	}

	if st.AssetID != "" {
		a, err := r.vendor.GetAsset(ctx, st.AssetID)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			log.Warn("cached asset lookup failed", slog.String("asset_id", st.AssetID), slog.Any("err", err))
		} else if a.Ready() {
			return r.remember(ctx, st, recording(SourceAsset, a.ID, a.PlaybackID), log), nil
		}
	}

	sessions, err := r.vendor.ListSessions(ctx, vendorID)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		log.Warn("session lookup failed", slog.Any("err", err))
	}
	for _, s := range sessions {
		if !s.RecordingReady() {
			continue
		}
		a, err := r.vendor.GetAsset(ctx, s.AssetRef())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			log.Warn("session asset lookup failed", slog.String("session_id", s.ID), slog.Any("err", err))
		} else if a.Ready() {
			return r.remember(ctx, st, recording(SourceSession, a.ID, a.PlaybackID), log), nil
		}
		break
	}

	assets, err := r.vendor.ListAssets(ctx, vendorID)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		log.Warn("asset listing failed", slog.Any("err", err))
	}
	for _, a := range assets {
		if a.Ready() {
			return r.remember(ctx, st, recording(SourceAssets, a.ID, a.PlaybackID), log), nil
		}
	}

	if st.PlaybackID != "" {
		return recording(SourceStreamFallback, "", st.PlaybackID), nil
	}
	return nil, ErrNoPlayback
}

// remember writes a discovered asset back to the stream row.
func (r *Resolver) remember(ctx context.Context, st *store.Stream, res *Result, log *slog.Logger) *Result {
	if res.AssetID == st.AssetID && res.PlaybackID == st.AssetPlaybackID {
		return res
	}
	if err := r.store.SetAsset(ctx, st.ID, res.AssetID, res.PlaybackID); err != nil {
		log.Warn("write back asset", slog.String("asset_id", res.AssetID), slog.Any("err", err))
	}
	return res
}

func (r *Resolver) finish(st *store.Stream, res *Result) *Result {
	res.HLSURL = r.vendor.HLSURL(res.PlaybackID)
	res.ThumbnailURL = st.ThumbnailURL
	if res.ThumbnailURL == "" {
		res.ThumbnailURL = r.vendor.GenerateThumbnailURL(res.PlaybackID)
	}
	telemetry.IncPlayback(res.Source)
	return res
}
