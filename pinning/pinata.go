// Package pinning stores JSON documents on IPFS through Pinata.
package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/livecast/backend/telemetry"
)

// Client pins content with a Pinata JWT.
type Client struct {
	apiURL     string
	gatewayURL string
	hc         *http.Client
}

// New builds a Client. base may be nil.
func New(jwt, apiURL, gatewayURL string, base *http.Client) (*Client, error) {
	if jwt == "" {
		return nil, fmt.Errorf("pinata: jwt required")
	}
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: jwt, TokenType: "Bearer"}))
	hc.Timeout = base.Timeout
	return &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		hc:         hc,
	}, nil
}

type pinRequest struct {
	Content  any `json:"pinataContent"`
	Metadata struct {
		Name string `json:"name"`
	} `json:"pinataMetadata"`
	Options struct {
		CIDVersion int `json:"cidVersion"`
	} `json:"pinataOptions"`
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// PinJSON pins v under name and returns its CID.
func (c *Client) PinJSON(ctx context.Context, name string, v any) (string, error) {
	var in pinRequest
	in.Content = v
	in.Metadata.Name = name
	in.Options.CIDVersion = 1
	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encode pin request: %w", err)
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerName, "pinata.pin_json")
	defer span.End()
	start := time.Now()
	cid, err := c.post(ctx, raw)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		telemetry.RecordError(span, err)
	}
	telemetry.ObserveVendorCall("pinata", "pin_json", outcome, time.Since(start))
	return cid, err
}

func (c *Client) post(ctx context.Context, raw []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/pinning/pinJSONToIPFS", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("pinata request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("pinata: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode pinata response: %w", err)
	}
	if out.IpfsHash == "" {
		return "", fmt.Errorf("pinata: response missing IpfsHash")
	}
	return out.IpfsHash, nil
}

// GatewayURL is an HTTP URL for cid through the configured gateway.
func (c *Client) GatewayURL(cid string) string {
	return c.gatewayURL + "/" + cid
}

// URI is the ipfs:// form used in token metadata.
func URI(cid string) string { return "ipfs://" + cid }
