package pinning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pinning/pinJSONToIPFS", r.URL.Path)
		assert.Equal(t, "Bearer pinata-jwt", r.Header.Get("Authorization"))
		var body struct {
			Content  map[string]any `json:"pinataContent"`
			Metadata struct {
				Name string `json:"name"`
			} `json:"pinataMetadata"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "stream-1.json", body.Metadata.Name)
		assert.Equal(t, "Show", body.Content["name"])
		_, _ = w.Write([]byte(`{"IpfsHash":"bafycid","PinSize":120,"Timestamp":"2026-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c, err := New("pinata-jwt", srv.URL, "https://gw.example/ipfs/", srv.Client())
	require.NoError(t, err)
	cid, err := c.PinJSON(context.Background(), "stream-1.json", map[string]any{"name": "Show"})
	require.NoError(t, err)
	assert.Equal(t, "bafycid", cid)
	assert.Equal(t, "https://gw.example/ipfs/bafycid", c.GatewayURL(cid))
	assert.Equal(t, "ipfs://bafycid", URI(cid))
}

func TestPinJSONFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid jwt", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := New("bad", srv.URL, "https://gw", srv.Client())
	require.NoError(t, err)
	_, err = c.PinJSON(context.Background(), "x", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNewRequiresJWT(t *testing.T) {
	_, err := New("", "https://api", "https://gw", nil)
	assert.Error(t, err)
}
