// Package upload transfers media from a source URL into the media bucket so
// TikTok can pull it from a stable, public location.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrSource marks failures fetching the source media, as opposed to failures
// writing the bucket. Callers map the two to different responses.
var ErrSource = errors.New("fetching source media")

// ObjectWriter streams an object into the media bucket.
// S3Store and MemoryStore in the blobstore package both satisfy it.
type ObjectWriter interface {
	PutStream(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// Result describes a completed upload.
type Result struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithHTTPClient overrides the HTTP client used to download sources.
func WithHTTPClient(hc *http.Client) Option {
	return func(u *Uploader) {
		u.httpClient = hc
	}
}

// Uploader copies remote media into the bucket under a generated name.
type Uploader struct {
	writer        ObjectWriter
	publicBaseURL string
	httpClient    *http.Client
	newID         func() string
}

// New creates an Uploader writing through w. publicBaseURL is the prefix of
// the returned public URLs, without a trailing slash.
func New(w ObjectWriter, publicBaseURL string, opts ...Option) *Uploader {
	u := &Uploader{
		writer:        w,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		httpClient:    &http.Client{Timeout: 5 * time.Minute},
		newID:         func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// FromURL downloads sourceURL and streams it into the bucket as
// <uuid>.<ext>, returning the public URL. The body is never buffered whole.
func (u *Uploader) FromURL(ctx context.Context, sourceURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSource, sourceURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: unexpected status %d", ErrSource, sourceURL, resp.StatusCode)
	}

	filename := u.newID() + "." + extensionOf(sourceURL)

	// ContentLength is -1 for chunked responses; PutStream handles both
	if err := u.writer.PutStream(ctx, filename, resp.Body, resp.ContentLength, "video/mp4"); err != nil {
		return nil, fmt.Errorf("uploading %s: %w", filename, err)
	}

	return &Result{
		URL:      u.publicBaseURL + "/" + filename,
		Filename: filename,
	}, nil
}

// extensionOf extracts the file extension from the URL path, defaulting to mp4.
func extensionOf(sourceURL string) string {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return "mp4"
	}
	path := parsed.Path
	if i := strings.LastIndex(path, "."); i >= 0 && i < len(path)-1 {
		return path[i+1:]
	}
	return "mp4"
}
