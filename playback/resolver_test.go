package playback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/livecast/backend/cache"
	"github.com/onnwee/livecast/backend/livepeer"
	"github.com/onnwee/livecast/backend/store"
)

type fakeVendor struct {
	stream      *livepeer.Stream
	streamErr   error
	sessions    []livepeer.Session
	sessionsErr error
	assets      map[string]*livepeer.Asset
	assetList   []livepeer.Asset
	listErr     error
	info        map[string]*livepeer.PlaybackInfo
	totals      map[string]int64
	totalsErr   error
	viewers     int
	viewersErr  error
	images      map[string]bool

	getStreamCalls atomic.Int32
	block          chan struct{}
}

func (f *fakeVendor) GetStream(ctx context.Context, id string) (*livepeer.Stream, error) {
	f.getStreamCalls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return f.stream, f.streamErr
}

func (f *fakeVendor) ListSessions(ctx context.Context, id string) ([]livepeer.Session, error) {
	return f.sessions, f.sessionsErr
}

func (f *fakeVendor) GetAsset(ctx context.Context, id string) (*livepeer.Asset, error) {
	if a, ok := f.assets[id]; ok {
		return a, nil
	}
	return nil, &livepeer.APIError{Status: 404, Endpoint: "get_asset"}
}

func (f *fakeVendor) ListAssets(ctx context.Context, id string) ([]livepeer.Asset, error) {
	return f.assetList, f.listErr
}

func (f *fakeVendor) GetPlaybackInfo(ctx context.Context, pid string) (*livepeer.PlaybackInfo, error) {
	if i, ok := f.info[pid]; ok {
		return i, nil
	}
	return nil, &livepeer.APIError{Status: 404, Endpoint: "playback_info"}
}

func (f *fakeVendor) TotalViews(ctx context.Context, pid string) (int64, error) {
	return f.totals[pid], f.totalsErr
}

func (f *fakeVendor) ConcurrentViewers(ctx context.Context, pid string) (int, error) {
	return f.viewers, f.viewersErr
}

func (f *fakeVendor) VerifyThumbnail(ctx context.Context, url string) bool { return f.images[url] }

func (f *fakeVendor) GenerateThumbnailURL(pid string) string {
	return "https://cdn/" + pid + "/thumb.png"
}

func (f *fakeVendor) HLSURL(pid string) string { return "https://cdn/" + pid + "/index.m3u8" }

type fakeStore struct {
	mu     sync.Mutex
	live   []string
	ended  []string
	assets [][2]string
	thumbs []string
	counts []Views
}

func (s *fakeStore) SetLive(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = append(s.live, id)
	return nil
}

func (s *fakeStore) SetEnded(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, id)
	return nil
}

func (s *fakeStore) SetAsset(ctx context.Context, id, assetID, pid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets = append(s.assets, [2]string{assetID, pid})
	return nil
}

func (s *fakeStore) SetThumbnail(ctx context.Context, id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thumbs = append(s.thumbs, url)
	return nil
}

func (s *fakeStore) SetCounts(ctx context.Context, id string, views int64, viewers int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = append(s.counts, Views{TotalViews: views, ViewerCount: viewers})
	return nil
}

func ptr[T any](v T) *T { return &v }

func ready(id, pid string) *livepeer.Asset {
	return &livepeer.Asset{ID: id, PlaybackID: pid, Status: livepeer.AssetStatus{Phase: "ready"}}
}

func baseStream() *store.Stream {
	return &store.Stream{ID: "s1", VendorStreamID: ptr("lp1"), PlaybackID: "live-pb"}
}

func started(st *store.Stream) *store.Stream {
	st.StartedAt = ptr(time.Now().Add(-time.Hour))
	return st
}

func ended(st *store.Stream) *store.Stream {
	started(st)
	st.EndedAt = ptr(time.Now().Add(-time.Minute))
	return st
}

func TestResolveLive(t *testing.T) {
	v := &fakeVendor{stream: &livepeer.Stream{ID: "lp1", PlaybackID: "live-pb", IsActive: true}}
	s := &fakeStore{}
	r := New(v, s, nil, 0)

	st := baseStream()
	res, err := r.Resolve(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, KindLive, res.Kind)
	assert.Equal(t, SourceStream, res.Source)
	assert.Equal(t, "live-pb", res.PlaybackID)
	assert.Equal(t, "https://cdn/live-pb/index.m3u8", res.HLSURL)
	assert.Equal(t, []string{"s1"}, s.live)

	res.Apply(st)
	assert.True(t, st.IsLive)
	assert.NotNil(t, st.StartedAt)
}

func TestResolveLiveAlreadyKnownSkipsWrite(t *testing.T) {
	v := &fakeVendor{stream: &livepeer.Stream{ID: "lp1", PlaybackID: "live-pb", IsActive: true}}
	s := &fakeStore{}
	st := started(baseStream())
	st.IsLive = true
	_, err := New(v, s, nil, 0).Resolve(context.Background(), st)
	require.NoError(t, err)
	assert.Empty(t, s.live)
}

func TestResolveNeverStarted(t *testing.T) {
	v := &fakeVendor{stream: &livepeer.Stream{ID: "lp1", IsActive: false}}
	_, err := New(v, &fakeStore{}, nil, 0).Resolve(context.Background(), baseStream())
	assert.ErrorIs(t, err, ErrNoPlayback)
}

func TestResolveNoVendorStream(t *testing.T) {
	r := New(&fakeVendor{}, &fakeStore{}, nil, 0)
	_, err := r.Resolve(context.Background(), &store.Stream{ID: "s1"})
	assert.ErrorIs(t, err, ErrNoPlayback)

	res, err := r.Resolve(context.Background(), &store.Stream{ID: "s2", AssetPlaybackID: "apb"})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
}

func TestResolveEndsStartedInactiveStream(t *testing.T) {
	v := &fakeVendor{stream: &livepeer.Stream{ID: "lp1", IsActive: false}}
	s := &fakeStore{}
	st := started(baseStream())
	st.IsLive = true
	st.AssetPlaybackID = "apb"

	res, err := New(v, s, nil, 0).Resolve(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, []string{"s1"}, s.ended)
	require.NotNil(t, res.WentEnded)

	res.Apply(st)
	assert.False(t, st.IsLive)
	assert.NotNil(t, st.EndedAt)
}

func TestResolveRecordingFallbacks(t *testing.T) {
	tests := []struct {
		name       string
		vendor     *fakeVendor
		stream     func() *store.Stream
		wantSource string
		wantPID    string
		wantWrite  bool
	}{
		{
			name:       "cached asset playback id",
			vendor:     &fakeVendor{},
			stream:     func() *store.Stream { st := ended(baseStream()); st.AssetPlaybackID = "apb"; return st },
			wantSource: SourceCache, wantPID: "apb",
		},
		{
			name:       "cached asset id",
			vendor:     &fakeVendor{assets: map[string]*livepeer.Asset{"a1": ready("a1", "apb1")}},
			stream:     func() *store.Stream { st := ended(baseStream()); st.AssetID = "a1"; return st },
			wantSource: SourceAsset, wantPID: "apb1", wantWrite: true,
		},
		{
			name: "cached asset still processing falls to sessions",
			vendor: &fakeVendor{
				assets: map[string]*livepeer.Asset{
					"a1": {ID: "a1", Status: livepeer.AssetStatus{Phase: "processing"}},
					"a2": ready("a2", "apb2"),
				},
				sessions: []livepeer.Session{{ID: "sess2", AssetID: "a2", RecordingStatus: "ready"}},
			},
			stream:     func() *store.Stream { st := ended(baseStream()); st.AssetID = "a1"; return st },
			wantSource: SourceSession, wantPID: "apb2", wantWrite: true,
		},
		{
			name: "session without asset id uses session id",
			vendor: &fakeVendor{
				assets: map[string]*livepeer.Asset{"sess9": ready("sess9", "apb9")},
				sessions: []livepeer.Session{
					{ID: "sess10", RecordingStatus: "waiting"},
					{ID: "sess9", RecordingStatus: "ready"},
				},
			},
			stream:     func() *store.Stream { return ended(baseStream()) },
			wantSource: SourceSession, wantPID: "apb9", wantWrite: true,
		},
		{
			name: "sessions fail, assets list",
			vendor: &fakeVendor{
				sessionsErr: errors.New("boom"),
				assetList: []livepeer.Asset{
					{ID: "a5", Status: livepeer.AssetStatus{Phase: "failed"}},
					*ready("a4", "apb4"),
				},
			},
			stream:     func() *store.Stream { return ended(baseStream()) },
			wantSource: SourceAssets, wantPID: "apb4", wantWrite: true,
		},
		{
			name:       "nothing ready falls back to stream id",
			vendor:     &fakeVendor{listErr: errors.New("down")},
			stream:     func() *store.Stream { return ended(baseStream()) },
			wantSource: SourceStreamFallback, wantPID: "live-pb",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeStore{}
			res, err := New(tt.vendor, s, nil, 0).Resolve(context.Background(), tt.stream())
			require.NoError(t, err)
			assert.Equal(t, KindRecording, res.Kind)
			assert.Equal(t, tt.wantSource, res.Source)
			assert.Equal(t, tt.wantPID, res.PlaybackID)
			if tt.wantWrite {
				require.Len(t, s.assets, 1)
				assert.Equal(t, tt.wantPID, s.assets[0][1])
			} else {
				assert.Empty(t, s.assets)
			}
			assert.Zero(t, tt.vendor.getStreamCalls.Load(), "ended streams skip the live check")
		})
	}
}

func TestResolveEndedWithoutAnyPlaybackID(t *testing.T) {
	st := ended(&store.Stream{ID: "s1", VendorStreamID: ptr("lp1")})
	_, err := New(&fakeVendor{}, &fakeStore{}, nil, 0).Resolve(context.Background(), st)
	assert.ErrorIs(t, err, ErrNoPlayback)
}

func TestResolveCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := &fakeVendor{streamErr: context.Canceled}
	_, err := New(v, &fakeStore{}, nil, 0).Resolve(ctx, started(baseStream()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveVendorErrorFallsThrough(t *testing.T) {
	v := &fakeVendor{streamErr: &livepeer.APIError{Status: 503}, assetList: []livepeer.Asset{*ready("a1", "apb")}}
	s := &fakeStore{}
	res, err := New(v, s, nil, 0).Resolve(context.Background(), started(baseStream()))
	require.NoError(t, err)
	assert.Equal(t, SourceAssets, res.Source)
	assert.Empty(t, s.ended)
	assert.Nil(t, res.WentEnded)
}

func TestResolveVendorErrorKeepsLifecycle(t *testing.T) {
	for _, streamErr := range []error{&livepeer.APIError{Status: 503}, gobreaker.ErrOpenState, context.DeadlineExceeded} {
		t.Run(streamErr.Error(), func(t *testing.T) {
			v := &fakeVendor{streamErr: streamErr}
			s := &fakeStore{}
			st := started(baseStream())
			st.IsLive = true

			res, err := New(v, s, nil, 0).Resolve(context.Background(), st)
			require.NoError(t, err)
			assert.Equal(t, KindLive, res.Kind)
			assert.Equal(t, SourceCache, res.Source)
			assert.Equal(t, "live-pb", res.PlaybackID)
			assert.Empty(t, s.ended)
			assert.Empty(t, s.live)

			res.Apply(st)
			assert.True(t, st.IsLive)
			assert.Nil(t, st.EndedAt)
		})
	}

	t.Run("never started", func(t *testing.T) {
		s := &fakeStore{}
		_, err := New(&fakeVendor{streamErr: &livepeer.APIError{Status: 502}}, s, nil, 0).Resolve(context.Background(), baseStream())
		assert.ErrorIs(t, err, ErrNoPlayback)
		assert.Empty(t, s.ended)
	})
}

func TestResolveCoalescesConcurrentCalls(t *testing.T) {
	v := &fakeVendor{stream: &livepeer.Stream{ID: "lp1", PlaybackID: "live-pb", IsActive: true}, block: make(chan struct{})}
	r := New(v, &fakeStore{}, nil, 0)

	var wg sync.WaitGroup
	results := make(chan *Result, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Resolve(context.Background(), baseStream())
			if err == nil {
				results <- res
			}
		}()
	}
	// wait for the leader to reach the vendor, then give followers time to join
	require.Eventually(t, func() bool { return v.getStreamCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(v.block)
	wg.Wait()
	close(results)

	assert.Equal(t, int32(1), v.getStreamCalls.Load())
	n := 0
	for res := range results {
		assert.Equal(t, "live-pb", res.PlaybackID)
		n++
	}
	assert.Equal(t, 5, n)
}

func TestRecording(t *testing.T) {
	v := &fakeVendor{
		assets: map[string]*livepeer.Asset{"a1": ready("a1", "apb")},
		info: map[string]*livepeer.PlaybackInfo{"apb": {Meta: livepeer.PlaybackMeta{Source: []livepeer.PlaybackSource{
			{HRN: "HLS (TS)", Type: "html5/application/vnd.apple.mpegurl", URL: "https://vod/apb.m3u8"},
			{HRN: "MP4", Type: "html5/video/mp4", URL: "https://vod/apb.mp4"},
		}}}},
	}
	st := ended(baseStream())
	st.AssetID = "a1"
	rec, err := New(v, &fakeStore{}, nil, 0).Recording(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, RecordingReady, rec.Status)
	assert.Equal(t, "apb", rec.PlaybackID)
	assert.Equal(t, "https://vod/apb.m3u8", rec.HLSURL)
	assert.Equal(t, "https://vod/apb.mp4", rec.MP4URL)
	assert.Equal(t, "apb", st.AssetPlaybackID)
}

func TestRecordingProcessingAndLive(t *testing.T) {
	rec, err := New(&fakeVendor{}, &fakeStore{}, nil, 0).Recording(context.Background(), ended(baseStream()))
	require.NoError(t, err)
	assert.Equal(t, RecordingProcessing, rec.Status)
	assert.Equal(t, "https://cdn/live-pb/index.m3u8", rec.HLSURL)

	live := &fakeVendor{stream: &livepeer.Stream{ID: "lp1", PlaybackID: "live-pb", IsActive: true}}
	_, err = New(live, &fakeStore{}, nil, 0).Recording(context.Background(), started(baseStream()))
	assert.ErrorIs(t, err, ErrNoRecording)

	idle := &fakeVendor{stream: &livepeer.Stream{ID: "lp1"}}
	_, err = New(idle, &fakeStore{}, nil, 0).Recording(context.Background(), baseStream())
	assert.ErrorIs(t, err, ErrNoRecording)
}

func TestViewsSumsAndWritesBack(t *testing.T) {
	v := &fakeVendor{totals: map[string]int64{"live-pb": 10, "apb": 5}, viewers: 3}
	s := &fakeStore{}
	c := cache.NewMemory()
	r := New(v, s, c, time.Minute)

	st := started(baseStream())
	st.IsLive = true
	st.AssetPlaybackID = "apb"
	got, err := r.Views(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got.TotalViews)
	assert.Equal(t, 3, got.ViewerCount)
	require.Len(t, s.counts, 1)
	assert.Equal(t, int64(15), st.ViewCount)

	// served from cache
	v.totals["live-pb"] = 100
	got, err = r.Views(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got.TotalViews)

	r.InvalidateViews(context.Background(), st.ID)
	got, err = r.Views(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, int64(105), got.TotalViews)
}

func TestViewsNotLiveHasNoViewers(t *testing.T) {
	v := &fakeVendor{totals: map[string]int64{"live-pb": 7}, viewers: 9}
	got, err := New(v, &fakeStore{}, nil, 0).Views(context.Background(), ended(baseStream()))
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.TotalViews)
	assert.Zero(t, got.ViewerCount)
}

func TestViewsSameIDCountedOnce(t *testing.T) {
	v := &fakeVendor{totals: map[string]int64{"pb": 4}}
	st := ended(&store.Stream{ID: "s1", VendorStreamID: ptr("lp1"), PlaybackID: "pb", AssetPlaybackID: "pb"})
	got, err := New(v, &fakeStore{}, nil, 0).Views(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.TotalViews)
}

func TestViewsViewerFailureKeepsTotals(t *testing.T) {
	v := &fakeVendor{totals: map[string]int64{"live-pb": 11}, viewersErr: errors.New("down")}
	s := &fakeStore{}
	st := started(baseStream())
	st.IsLive = true
	st.ViewerCount = 3
	got, err := New(v, s, nil, 0).Views(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.TotalViews)
	assert.Equal(t, 3, got.ViewerCount)
	require.Len(t, s.counts, 1)
	assert.Equal(t, int64(11), s.counts[0].TotalViews)
}

func TestViewsFallBackToStored(t *testing.T) {
	v := &fakeVendor{totalsErr: errors.New("down")}
	s := &fakeStore{}
	st := ended(baseStream())
	st.ViewCount = 42
	got, err := New(v, s, nil, 0).Views(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.TotalViews)
	assert.Empty(t, s.counts)
}

func TestThumbnail(t *testing.T) {
	t.Run("stored still valid", func(t *testing.T) {
		v := &fakeVendor{images: map[string]bool{"https://img/custom.png": true}}
		s := &fakeStore{}
		st := baseStream()
		st.ThumbnailURL = "https://img/custom.png"
		got, err := New(v, s, nil, 0).Thumbnail(context.Background(), st)
		require.NoError(t, err)
		assert.Equal(t, "https://img/custom.png", got)
		assert.Empty(t, s.thumbs)
	})
	t.Run("playback info thumbnail", func(t *testing.T) {
		v := &fakeVendor{info: map[string]*livepeer.PlaybackInfo{"live-pb": {Meta: livepeer.PlaybackMeta{Source: []livepeer.PlaybackSource{
			{Type: "image/png", URL: "https://cdn/live-pb/kf.png"},
		}}}}}
		s := &fakeStore{}
		st := baseStream()
		st.ThumbnailURL = "https://img/broken.png"
		got, err := New(v, s, nil, 0).Thumbnail(context.Background(), st)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn/live-pb/kf.png", got)
		assert.Equal(t, []string{"https://cdn/live-pb/kf.png"}, s.thumbs)
	})
	t.Run("generated keyframe verified", func(t *testing.T) {
		v := &fakeVendor{images: map[string]bool{"https://cdn/apb/thumb.png": true}}
		st := baseStream()
		st.AssetPlaybackID = "apb"
		got, err := New(v, &fakeStore{}, nil, 0).Thumbnail(context.Background(), st)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn/apb/thumb.png", got)
	})
	t.Run("nothing verifies", func(t *testing.T) {
		_, err := New(&fakeVendor{}, &fakeStore{}, nil, 0).Thumbnail(context.Background(), baseStream())
		assert.ErrorIs(t, err, ErrNoThumbnail)
	})
}
