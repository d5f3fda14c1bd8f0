// Package objstore writes user uploads (avatars, banners, stream thumbnails) to object storage.
package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/rs/xid"
)

// Store puts an object and returns its public URL.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

// Upload kinds accepted by the API.
const (
	KindAvatar    = "avatar"
	KindBanner    = "banner"
	KindThumbnail = "thumbnail"
)

// ValidKind reports whether kind is an accepted upload kind.
func ValidKind(kind string) bool {
	switch kind {
	case KindAvatar, KindBanner, KindThumbnail:
		return true
	}
	return false
}

var imageExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DetectImage sniffs head and returns the content type and extension when it is an accepted image.
func DetectImage(head []byte) (contentType, ext string, ok bool) {
	ct := http.DetectContentType(head)
	ext, ok = imageExt[ct]
	return ct, ext, ok
}

// ObjectKey builds "<kind>/<xid><ext>". ext falls back to the filename's extension.
func ObjectKey(kind, filename, ext string) string {
	if ext == "" {
		ext = strings.ToLower(path.Ext(filename))
	}
	return kind + "/" + xid.New().String() + ext
}

// Memory keeps objects in process; used when no bucket is configured in development and in tests.
type Memory struct {
	BaseURL string

	mu      sync.Mutex
	objects map[string]memObject
}

type memObject struct {
	contentType string
	data        []byte
}

func NewMemory(baseURL string) *Memory {
	return &Memory{BaseURL: strings.TrimRight(baseURL, "/"), objects: map[string]memObject{}}
}

func (m *Memory) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{contentType: contentType, data: buf.Bytes()}
	return m.BaseURL + "/" + key, nil
}

// Get returns a stored object.
func (m *Memory) Get(key string) (data []byte, contentType string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	return o.data, o.contentType, ok
}
