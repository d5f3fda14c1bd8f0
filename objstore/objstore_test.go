package objstore

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestDetectImage(t *testing.T) {
	tests := []struct {
		name   string
		head   []byte
		wantCT string
		ok     bool
	}{
		{"png", pngHeader, "image/png", true},
		{"jpeg", []byte("\xff\xd8\xff\xe0\x00\x10JFIF"), "image/jpeg", true},
		{"gif", []byte("GIF89a......"), "image/gif", true},
		{"html", []byte("<html><body>hi</body></html>"), "text/html; charset=utf-8", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, _, ok := DetectImage(tt.head)
			assert.Equal(t, tt.wantCT, ct)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestObjectKey(t *testing.T) {
	re := regexp.MustCompile(`^avatar/[0-9a-v]{20}\.png$`)
	assert.Regexp(t, re, ObjectKey(KindAvatar, "Me.PNG", ""))
	assert.Regexp(t, `^banner/[0-9a-v]{20}\.webp$`, ObjectKey(KindBanner, "x.jpg", ".webp"))
	assert.NotEqual(t, ObjectKey(KindAvatar, "a.png", ""), ObjectKey(KindAvatar, "a.png", ""))
}

func TestValidKind(t *testing.T) {
	assert.True(t, ValidKind("avatar"))
	assert.True(t, ValidKind("thumbnail"))
	assert.False(t, ValidKind("video"))
}

func TestMemory(t *testing.T) {
	m := NewMemory("http://localhost/uploads/")
	u, err := m.Put(context.Background(), "avatar/x.png", "image/png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/uploads/avatar/x.png", u)
	data, ct, ok := m.Get("avatar/x.png")
	require.True(t, ok)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, pngHeader, data)
}

func TestGCSPut(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/b/media/o"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"avatar/abc.png","bucket":"media"}`))
	}))
	defer srv.Close()

	g, err := NewGCSWithOptions(context.Background(), "media",
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication())
	require.NoError(t, err)

	u, err := g.Put(context.Background(), "avatar/abc.png", "image/png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/media/avatar/abc.png", u)
	assert.Contains(t, gotBody, "avatar/abc.png")
	assert.Contains(t, gotBody, "IHDR")
}

func TestGCSPutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"denied"}}`))
	}))
	defer srv.Close()

	g, err := NewGCSWithOptions(context.Background(), "media",
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication())
	require.NoError(t, err)
	_, err = g.Put(context.Background(), "k", "image/png", bytes.NewReader(pngHeader))
	assert.Error(t, err)
}

func TestNewGCSRequiresBucket(t *testing.T) {
	_, err := NewGCS(context.Background(), "", "")
	assert.Error(t, err)
}
