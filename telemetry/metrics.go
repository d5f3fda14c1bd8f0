// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Vendor APIs (video platform, pinning, storage, name resolution)
	VendorCalls    *prometheus.CounterVec
	VendorDuration *prometheus.HistogramVec

	// Playback resolution outcome by source (stream, cache, asset, session, assets, stream-fallback, none)
	PlaybackResolutions *prometheus.CounterVec

	CacheOps *prometheus.CounterVec

	// Social
	ChatMessages prometheus.Counter
	LikeActions  *prometheus.CounterVec
	Uploads      *prometheus.CounterVec
	MintActions  *prometheus.CounterVec
	Webhooks     *prometheus.CounterVec

	// Reconciler
	SyncCycles   prometheus.Counter
	SyncDuration prometheus.Observer
	LiveStreams  prometheus.Gauge

	CircuitOpenGauge prometheus.Gauge // 1=open,0=closed
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livecast_http_requests_total", Help: "HTTP requests by method, route and status"}, []string{"method", "route", "status"})
		HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "livecast_http_request_duration_seconds", Help: "HTTP request duration seconds", Buckets: prometheus.DefBuckets}, []string{"method", "route"})
		VendorCalls = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livecast_vendor_calls_total", Help: "Outbound vendor API calls by service, endpoint and outcome"}, []string{"service", "endpoint", "outcome"})
		VendorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "livecast_vendor_call_duration_seconds", Help: "Outbound vendor API call duration seconds", Buckets: prometheus.DefBuckets}, []string{"service", "endpoint"})
		PlaybackResolutions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livecast_playback_resolutions_total", Help: "Playback resolutions by winning source"}, []string{"source"})
		CacheOps = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livecast_cache_ops_total", Help: "Cache lookups by backend and result"}, []string{"backend", "result"})
		ChatMessages = promauto.NewCounter(prometheus.CounterOpts{Name: "livecast_chat_messages_total", Help: "Chat messages posted"})
		LikeActions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livecast_like_actions_total", Help: "Like and unlike actions that changed state"}, []string{"action"})
		Uploads = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livecast_uploads_total", Help: "Uploads by kind and outcome"}, []string{"kind", "outcome"})
		MintActions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livecast_mint_actions_total", Help: "Mint prepare/confirm actions by outcome"}, []string{"stage", "outcome"})
		Webhooks = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livecast_webhooks_total", Help: "Video platform webhooks by event and outcome"}, []string{"event", "outcome"})
		SyncCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "livecast_sync_cycles_total", Help: "Stream reconciler cycles"})
		SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "livecast_sync_duration_seconds", Help: "Stream reconciler cycle duration seconds", Buckets: prometheus.DefBuckets})
		LiveStreams = promauto.NewGauge(prometheus.GaugeOpts{Name: "livecast_live_streams", Help: "Streams marked live at the last reconciler cycle"})
		CircuitOpenGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livecast_vendor_circuit_open", Help: "Video platform circuit breaker open=1 closed=0"})
	})
}

// ObserveVendorCall records one outbound call.
func ObserveVendorCall(service, endpoint, outcome string, d time.Duration) {
	Init()
	VendorCalls.WithLabelValues(service, endpoint, outcome).Inc()
	VendorDuration.WithLabelValues(service, endpoint).Observe(d.Seconds())
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, status int, d time.Duration) {
	Init()
	HTTPRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// IncPlayback records which source a playback resolution settled on.
func IncPlayback(source string) { Init(); PlaybackResolutions.WithLabelValues(source).Inc() }

// IncCache records a cache lookup result (hit, miss, error).
func IncCache(backend, result string) { Init(); CacheOps.WithLabelValues(backend, result).Inc() }

func IncChat() { Init(); ChatMessages.Inc() }

func IncLike(action string) { Init(); LikeActions.WithLabelValues(action).Inc() }

func IncUpload(kind, outcome string) { Init(); Uploads.WithLabelValues(kind, outcome).Inc() }

func IncMint(stage, outcome string) { Init(); MintActions.WithLabelValues(stage, outcome).Inc() }

func IncWebhook(event, outcome string) { Init(); Webhooks.WithLabelValues(event, outcome).Inc() }

// SetLiveStreams records the live stream count seen by the reconciler.
func SetLiveStreams(n int) { Init(); LiveStreams.Set(float64(n)) }

// UpdateCircuitGauge sets gauge to 1 if open else 0.
func UpdateCircuitGauge(open bool) {
	Init()
	if open {
		CircuitOpenGauge.Set(1)
	} else {
		CircuitOpenGauge.Set(0)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
