package objstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/onnwee/livecast/backend/telemetry"
)

// GCS stores objects in a Google Cloud Storage bucket through the JSON API.
type GCS struct {
	bucket    string
	publicURL string
	svc       *storage.Service
}

// NewGCS authenticates with the service account in credentialsFile, or application default
// credentials when it is empty.
func NewGCS(ctx context.Context, bucket, credentialsFile string, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs: bucket required")
	}
	var creds *google.Credentials
	var err error
	if credentialsFile != "" {
		raw, rerr := os.ReadFile(credentialsFile)
		if rerr != nil {
			return nil, fmt.Errorf("read gcs credentials: %w", rerr)
		}
		creds, err = google.CredentialsFromJSON(ctx, raw, storage.DevstorageReadWriteScope)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, storage.DevstorageReadWriteScope)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs credentials: %w", err)
	}
	return NewGCSWithOptions(ctx, bucket, append([]option.ClientOption{option.WithTokenSource(creds.TokenSource)}, opts...)...)
}

// NewGCSWithOptions builds the client from explicit options.
func NewGCSWithOptions(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCS, error) {
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs service: %w", err)
	}
	return &GCS{bucket: bucket, publicURL: "https://storage.googleapis.com/" + bucket, svc: svc}, nil
}

// Put uploads r as key and returns its public URL.
func (g *GCS) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerName, "gcs.put")
	defer span.End()

	obj := &storage.Object{
		Name:         key,
		ContentType:  contentType,
		CacheControl: "public, max-age=86400",
	}
	start := time.Now()
	_, err := g.svc.Objects.Insert(g.bucket, obj).
		Media(r, googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	outcome := "ok"
	if err != nil {
		outcome = "error"
		telemetry.RecordError(span, err)
	}
	telemetry.ObserveVendorCall("gcs", "insert", outcome, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("gcs insert %s: %w", key, err)
	}
	return g.URL(key), nil
}

// URL is the public URL for key.
func (g *GCS) URL(key string) string {
	return g.publicURL + "/" + (&url.URL{Path: key}).EscapedPath()
}
