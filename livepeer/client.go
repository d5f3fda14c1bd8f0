// Package livepeer is a client for the Livepeer Studio REST API: stream provisioning, session
// and asset lookup, playback sources, view counts, thumbnails and webhook verification.
//
// Every call runs behind a concurrency limit and a circuit breaker so a struggling platform
// degrades stream pages to cached values instead of piling up requests.
package livepeer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/onnwee/livecast/backend/telemetry"
)

const service = "livepeer"

// Options configures New.
type Options struct {
	APIKey         string
	APIURL         string // e.g. https://livepeer.studio/api
	CDNURL         string // e.g. https://livepeercdn.studio
	MaxConcurrency int
	Timeout        time.Duration
	// HTTPClient is used as the base transport; the bearer token is layered on top.
	HTTPClient *http.Client
}

// Client talks to the platform API.
type Client struct {
	apiURL  string
	cdnURL  string
	hc      *http.Client
	probe   *http.Client
	breaker *gobreaker.CircuitBreaker
	slots   slots
}

// New builds a Client authenticated with a static API key.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("livepeer: api key required")
	}
	if opts.APIURL == "" {
		return nil, fmt.Errorf("livepeer: api url required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: opts.Timeout}
	}

	// oauth2.NewClient layers the Authorization header over base's transport.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.APIKey, TokenType: "Bearer"}))
	hc.Timeout = opts.Timeout

	c := &Client{
		apiURL: strings.TrimRight(opts.APIURL, "/"),
		cdnURL: strings.TrimRight(opts.CDNURL, "/"),
		hc:     hc,
		probe:  &http.Client{Timeout: 5 * time.Second, Transport: base.Transport},
		slots:  newSlots(opts.MaxConcurrency),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// client errors (404 for a deleted asset, 422 for bad input) say nothing about platform health
		IsSuccessful: func(err error) bool {
			return err == nil || IsFatalError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("component", service),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			telemetry.UpdateCircuitGauge(to == gobreaker.StateOpen)
		},
	})
	return c, nil
}

// BreakerState exposes the circuit state for admin status.
func (c *Client) BreakerState() string { return c.breaker.State().String() }

// do performs one JSON request. endpoint labels metrics and spans; out may be nil.
func (c *Client) do(ctx context.Context, method, path, endpoint string, in, out any) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerName, "livepeer."+endpoint,
		attribute.String("http.method", method))
	defer span.End()

	if err := c.slots.acquire(ctx); err != nil {
		return err
	}
	defer c.slots.release()

	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, endpoint, in, out)
	})
	telemetry.ObserveVendorCall(service, endpoint, outcome(err), time.Since(start))
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", endpoint, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Status: resp.StatusCode, Endpoint: endpoint, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func pathEscape(id string) string { return url.PathEscape(id) }
