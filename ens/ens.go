// Package ens resolves wallet addresses to their primary ENS name through an HTTP resolver API.
package ens

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/onnwee/livecast/backend/cache"
	"github.com/onnwee/livecast/backend/telemetry"
	"github.com/onnwee/livecast/backend/wallet"
)

// RefreshAfter is how long a stored name is trusted before it is looked up again.
const RefreshAfter = 24 * time.Hour

// Name is a resolver answer. Name is empty when the address has no primary name.
type Name struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar,omitempty"`
}

// Resolver looks up names, caching answers (including empty ones) for ttl.
type Resolver struct {
	BaseURL    string
	HTTPClient *http.Client

	cache   cache.Cache
	ttl     time.Duration
	limiter *rate.Limiter
}

// New builds a Resolver for baseURL; requests are paced to 5/s with a small burst.
func New(baseURL string, c cache.Cache, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Resolver{
		BaseURL: strings.TrimRight(baseURL, "/"),
		cache:   c,
		ttl:     ttl,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

func (r *Resolver) http() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 5 * time.Second}
}

// Lookup returns the primary ENS name for address, or "" when none is set.
func (r *Resolver) Lookup(ctx context.Context, address string) (string, error) {
	n, err := r.Resolve(ctx, address)
	if err != nil {
		return "", err
	}
	return n.Name, nil
}

// Resolve returns the full resolver answer for address.
func (r *Resolver) Resolve(ctx context.Context, address string) (*Name, error) {
	addr, err := wallet.Normalize(address)
	if err != nil {
		return nil, err
	}
	key := "ens:" + addr
	var out Name
	if r.cache != nil {
		if ok, err := cache.GetJSON(ctx, r.cache, key, &out); err == nil && ok {
			return &out, nil
		}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	out, err = r.fetch(ctx, addr)
	telemetry.ObserveVendorCall("ens", "resolve", outcomeLabel(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := cache.SetJSON(ctx, r.cache, key, out, r.ttl); err != nil {
			slog.Debug("cache ens name", slog.String("component", "ens"), slog.Any("err", err))
		}
	}
	return &out, nil
}

func (r *Resolver) fetch(ctx context.Context, addr string) (Name, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/"+addr, nil)
	if err != nil {
		return Name{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.http().Do(req)
	if err != nil {
		return Name{}, fmt.Errorf("ens lookup: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Name{Address: addr}, nil
	case resp.StatusCode != http.StatusOK:
		return Name{}, fmt.Errorf("ens lookup: status %d", resp.StatusCode)
	}
	var body Name
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Name{}, fmt.Errorf("decode ens response: %w", err)
	}
	body.Address = addr
	body.Name = strings.TrimSpace(body.Name)
	return body, nil
}

// Stale reports whether a name checked at checkedAt should be looked up again.
func Stale(checkedAt *time.Time, now time.Time) bool {
	return checkedAt == nil || now.Sub(*checkedAt) >= RefreshAfter
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
