package livepeer

import (
	"strings"
	"time"
)

// Stream is the platform's ingest object.
type Stream struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	StreamKey  string `json:"streamKey"`
	PlaybackID string `json:"playbackId"`
	IsActive   bool   `json:"isActive"`
	Record     bool   `json:"record"`
	LastSeen   int64  `json:"lastSeen"`
	CreatedAt  int64  `json:"createdAt"`
}

// Session is one broadcast of a stream. A recorded session produces an asset.
type Session struct {
	ID              string `json:"id"`
	ParentID        string `json:"parentId"`
	AssetID         string `json:"assetId"`
	PlaybackID      string `json:"playbackId"`
	RecordingStatus string `json:"recordingStatus"`
	RecordingURL    string `json:"recordingUrl"`
	MP4URL          string `json:"mp4Url"`
	CreatedAt       int64  `json:"createdAt"`
}

// RecordingReady reports whether the session's recording finished processing.
func (s Session) RecordingReady() bool { return strings.EqualFold(s.RecordingStatus, "ready") }

// AssetRef is the asset id for this session's recording; older sessions only carry their own id.
func (s Session) AssetRef() string {
	if s.AssetID != "" {
		return s.AssetID
	}
	return s.ID
}

// Asset is a video-on-demand object, typically a stream recording.
type Asset struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	PlaybackID     string      `json:"playbackId"`
	PlaybackURL    string      `json:"playbackUrl"`
	DownloadURL    string      `json:"downloadUrl"`
	SourceStreamID string      `json:"sourceStreamId"`
	Source         AssetSource `json:"source"`
	Status         AssetStatus `json:"status"`
	CreatedAt      int64       `json:"createdAt"`
}

type AssetSource struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type AssetStatus struct {
	Phase        string  `json:"phase"`
	Progress     float64 `json:"progress"`
	ErrorMessage string  `json:"errorMessage"`
	UpdatedAt    int64   `json:"updatedAt"`
}

// Ready reports whether the asset can be played.
func (a Asset) Ready() bool { return strings.EqualFold(a.Status.Phase, "ready") && a.PlaybackID != "" }

// PlaybackInfo describes the playable sources for a playback id.
type PlaybackInfo struct {
	Type string       `json:"type"`
	Meta PlaybackMeta `json:"meta"`
}

type PlaybackMeta struct {
	Live   int              `json:"live"`
	Source []PlaybackSource `json:"source"`
}

type PlaybackSource struct {
	HRN  string `json:"hrn"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

func (p *PlaybackInfo) find(match func(PlaybackSource) bool) string {
	if p == nil {
		return ""
	}
	for _, s := range p.Meta.Source {
		if match(s) {
			return s.URL
		}
	}
	return ""
}

// HLSURL returns the HLS manifest source, if any.
func (p *PlaybackInfo) HLSURL() string {
	return p.find(func(s PlaybackSource) bool {
		return strings.Contains(s.Type, "mpegurl") || strings.HasPrefix(s.HRN, "HLS")
	})
}

// MP4URL returns the first MP4 rendition, if any.
func (p *PlaybackInfo) MP4URL() string {
	return p.find(func(s PlaybackSource) bool {
		return strings.Contains(s.Type, "video/mp4") || s.HRN == "MP4"
	})
}

// ThumbnailURL returns the still-image source, if any.
func (p *PlaybackInfo) ThumbnailURL() string {
	return p.find(func(s PlaybackSource) bool {
		return strings.HasPrefix(s.Type, "image/")
	})
}

// IsLive reports whether the playback id is currently a live broadcast.
func (p *PlaybackInfo) IsLive() bool { return p != nil && p.Meta.Live == 1 }

// Millis converts a platform timestamp (ms since epoch) to time.Time.
func Millis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
