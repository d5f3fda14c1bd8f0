// Package streamsync keeps stream rows in step with the video platform. A jittered background
// loop re-resolves streams that are live or recently ended, and platform webhooks apply the same
// writes as soon as an event arrives.
package streamsync

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/livecast/backend/db"
	"github.com/onnwee/livecast/backend/playback"
	"github.com/onnwee/livecast/backend/store"
	"github.com/onnwee/livecast/backend/telemetry"
)

// LastRunKey is the kv row holding the last completed cycle time.
const LastRunKey = "job_stream_sync_last"

// Store is the persistence the reconciler needs.
type Store interface {
	ListActiveStreams(ctx context.Context, since time.Time, limit int) ([]store.Stream, error)
	GetStream(ctx context.Context, id string) (*store.Stream, error)
	GetStreamByVendorID(ctx context.Context, vendorID string) (*store.Stream, error)
	SetLive(ctx context.Context, id string, at time.Time) error
	SetEnded(ctx context.Context, id string, at time.Time) error
	SetAsset(ctx context.Context, id, assetID, assetPlaybackID string) error
}

// Resolver is implemented by *playback.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, st *store.Stream) (*playback.Result, error)
	Views(ctx context.Context, st *store.Stream) (*playback.Views, error)
	InvalidateViews(ctx context.Context, streamID string)
}

// Stats summarizes one cycle.
type Stats struct {
	Checked int `json:"checked"`
	Live    int `json:"live"`
	Ended   int `json:"ended"`
	Errors  int `json:"errors"`
}

// Syncer runs reconciliation cycles.
type Syncer struct {
	store    Store
	resolver Resolver
	// kv is optional; when set the last run time is recorded under LastRunKey.
	kv *sql.DB

	Interval    time.Duration
	Lookback    time.Duration
	BatchSize   int
	Parallelism int

	now     func() time.Time
	lastRun atomic.Pointer[time.Time]
}

func New(s Store, r Resolver, kv *sql.DB, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Syncer{
		store:       s,
		resolver:    r,
		kv:          kv,
		Interval:    interval,
		Lookback:    24 * time.Hour,
		BatchSize:   200,
		Parallelism: 4,
		now:         time.Now,
	}
}

// LastRun returns the finish time of the last cycle run by this process.
func (s *Syncer) LastRun() time.Time {
	if t := s.lastRun.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// Run blocks, running a cycle every Interval with jitter until ctx ends.
func (s *Syncer) Run(ctx context.Context) {
	interval := s.Interval
	// spread instances that started together
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initial := time.Duration(rand.Int63n(int64(interval/2) + 1))
	slog.Info("stream sync job starting", slog.Duration("interval", interval), slog.String("component", "stream_sync"))
	select {
	case <-ctx.Done():
		return
	case <-time.After(initial):
	}
	for {
		if _, err := s.SyncOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("stream sync cycle", slog.Any("err", err), slog.String("component", "stream_sync"))
		}

		jitterRange := int64(interval / 5)
		//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
		next := interval + time.Duration(rand.Int63n(jitterRange*2+1)-jitterRange)
		select {
		case <-ctx.Done():
			slog.Info("stream sync job stopped", slog.String("component", "stream_sync"))
			return
		case <-time.After(next):
		}
	}
}

// SyncOnce reconciles every candidate stream once.
func (s *Syncer) SyncOnce(ctx context.Context) (Stats, error) {
	telemetry.Init()
	var stats Stats
	var err error
	telemetry.TimeFunc(telemetry.SyncDuration, func() {
		stats, err = s.syncOnce(ctx)
	})
	telemetry.SyncCycles.Inc()
	return stats, err
}

func (s *Syncer) syncOnce(ctx context.Context) (Stats, error) {
	streams, err := s.store.ListActiveStreams(ctx, s.now().Add(-s.Lookback), s.BatchSize)
	if err != nil {
		return Stats{}, err
	}

	var checked, live, ended, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Parallelism)
	for i := range streams {
		st := &streams[i]
		g.Go(func() error {
			checked.Add(1)
			wasLive := st.IsLive
			if err := s.syncStream(gctx, st); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				slog.Debug("stream sync failed", slog.String("stream_id", st.ID), slog.Any("err", err), slog.String("component", "stream_sync"))
				return nil
			}
			switch {
			case st.IsLive:
				live.Add(1)
			case wasLive:
				ended.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	stats := Stats{Checked: int(checked.Load()), Live: int(live.Load()), Ended: int(ended.Load()), Errors: int(failed.Load())}
	telemetry.SetLiveStreams(stats.Live)
	at := s.now()
	s.lastRun.Store(&at)
	if s.kv != nil {
		if err := db.SetKVTime(ctx, s.kv, LastRunKey, at); err != nil {
			slog.Warn("record stream sync time", slog.Any("err", err), slog.String("component", "stream_sync"))
		}
	}
	if stats.Checked > 0 {
		slog.Info("stream sync cycle complete",
			slog.Int("checked", stats.Checked), slog.Int("live", stats.Live),
			slog.Int("ended", stats.Ended), slog.Int("errors", stats.Errors),
			slog.String("component", "stream_sync"))
	}
	return stats, nil
}

// syncStream resolves playback and refreshes counts for one stream, updating st in place.
func (s *Syncer) syncStream(ctx context.Context, st *store.Stream) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	res, err := s.resolver.Resolve(ctx, st)
	if errors.Is(err, playback.ErrNoPlayback) {
		return nil
	}
	if err != nil {
		return err
	}
	res.Apply(st)
	s.resolver.InvalidateViews(ctx, st.ID)
	if _, err := s.resolver.Views(ctx, st); err != nil {
		return err
	}
	return nil
}

// Resync re-resolves a single stream on demand (admin endpoint).
func (s *Syncer) Resync(ctx context.Context, id string) (*store.Stream, error) {
	st, err := s.store.GetStream(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.syncStream(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}
