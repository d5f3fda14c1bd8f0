package livepeer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// CreateStream provisions an ingest stream. With record set, each session is recorded to an asset.
func (c *Client) CreateStream(ctx context.Context, name string, record bool) (*Stream, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("livepeer: stream name empty")
	}
	var st Stream
	err := c.do(ctx, http.MethodPost, "/stream", "create_stream", map[string]any{"name": name, "record": record}, &st)
	if err != nil {
		return nil, err
	}
	if st.ID == "" || st.PlaybackID == "" {
		return nil, fmt.Errorf("livepeer: create stream returned incomplete stream %+v", st)
	}
	return &st, nil
}

func (c *Client) GetStream(ctx context.Context, id string) (*Stream, error) {
	if id == "" {
		return nil, fmt.Errorf("livepeer: stream id empty")
	}
	var st Stream
	if err := c.do(ctx, http.MethodGet, "/stream/"+pathEscape(id), "get_stream", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// DeleteStream removes the ingest stream. A stream that is already gone is not an error.
func (c *Client) DeleteStream(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	err := c.do(ctx, http.MethodDelete, "/stream/"+pathEscape(id), "delete_stream", nil, nil)
	if err != nil && IsNotFound(err) {
		return nil
	}
	return err
}

// ListSessions returns the recorded sessions of a stream, newest first.
func (c *Client) ListSessions(ctx context.Context, streamID string) ([]Session, error) {
	if streamID == "" {
		return nil, fmt.Errorf("livepeer: stream id empty")
	}
	var out []Session
	if err := c.do(ctx, http.MethodGet, "/stream/"+pathEscape(streamID)+"/sessions?record=1", "list_sessions", nil, &out); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func (c *Client) GetAsset(ctx context.Context, id string) (*Asset, error) {
	if id == "" {
		return nil, fmt.Errorf("livepeer: asset id empty")
	}
	var a Asset
	if err := c.do(ctx, http.MethodGet, "/asset/"+pathEscape(id), "get_asset", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAssets returns assets recorded from streamID, newest first.
func (c *Client) ListAssets(ctx context.Context, streamID string) ([]Asset, error) {
	if streamID == "" {
		return nil, fmt.Errorf("livepeer: stream id empty")
	}
	q := url.Values{"sourceStreamId": {streamID}}
	var out []Asset
	if err := c.do(ctx, http.MethodGet, "/asset?"+q.Encode(), "list_assets", nil, &out); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func (c *Client) GetPlaybackInfo(ctx context.Context, playbackID string) (*PlaybackInfo, error) {
	if playbackID == "" {
		return nil, fmt.Errorf("livepeer: playback id empty")
	}
	var info PlaybackInfo
	if err := c.do(ctx, http.MethodGet, "/playback/"+pathEscape(playbackID), "playback_info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

type viewTotal struct {
	PlaybackID string  `json:"playbackId"`
	ViewCount  int64   `json:"viewCount"`
	Playtime   float64 `json:"playtimeMins"`
}

// TotalViews returns the all-time view count of a playback id.
func (c *Client) TotalViews(ctx context.Context, playbackID string) (int64, error) {
	if playbackID == "" {
		return 0, nil
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/data/views/query/total/"+pathEscape(playbackID), "total_views", nil, &raw); err != nil {
		return 0, err
	}
	// the endpoint has answered with both an object and a one-element array
	var one viewTotal
	if err := json.Unmarshal(raw, &one); err == nil {
		return one.ViewCount, nil
	}
	var many []viewTotal
	if err := json.Unmarshal(raw, &many); err != nil {
		return 0, fmt.Errorf("decode total_views response: %w", err)
	}
	var sum int64
	for _, v := range many {
		sum += v.ViewCount
	}
	return sum, nil
}

// ConcurrentViewers returns the number of viewers watching playbackID right now.
func (c *Client) ConcurrentViewers(ctx context.Context, playbackID string) (int, error) {
	if playbackID == "" {
		return 0, nil
	}
	q := url.Values{"playbackId": {playbackID}}
	var rows []struct {
		ViewCount int `json:"viewCount"`
	}
	if err := c.do(ctx, http.MethodGet, "/data/views/now?"+q.Encode(), "concurrent_viewers", nil, &rows); err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rows {
		n += r.ViewCount
	}
	return n, nil
}

// HLSURL builds the CDN manifest URL for a playback id without an API call.
func (c *Client) HLSURL(playbackID string) string {
	if playbackID == "" || c.cdnURL == "" {
		return ""
	}
	return c.cdnURL + "/hls/" + pathEscape(playbackID) + "/index.m3u8"
}

// GenerateThumbnailURL builds the CDN keyframe image URL for a playback id.
func (c *Client) GenerateThumbnailURL(playbackID string) string {
	if playbackID == "" || c.cdnURL == "" {
		return ""
	}
	return c.cdnURL + "/hls/" + pathEscape(playbackID) + "/thumbnails/keyframes_0.png"
}

// VerifyThumbnail reports whether url answers a HEAD request with 2xx and an image content type.
func (c *Client) VerifyThumbnail(ctx context.Context, rawURL string) bool {
	if rawURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.probe.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300 &&
		strings.HasPrefix(resp.Header.Get("Content-Type"), "image/")
}

// IsNotFound reports whether err is a 404 from the platform.
func IsNotFound(err error) bool { return err != nil && errors.Is(err, ErrNotFound) }
