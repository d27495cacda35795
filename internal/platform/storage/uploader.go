package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	gcs "cloud.google.com/go/storage"
)

const defaultCacheControl = "public, max-age=86400"

var (
	// ErrObjectTooLarge is returned when an upload exceeds the configured limit.
	ErrObjectTooLarge = errors.New("storage: object exceeds maximum size")
	// ErrContentTypeDenied is returned for uploads that are not images.
	ErrContentTypeDenied = errors.New("storage: content type not allowed")
)

type objectWriter interface {
	io.Writer
	Close() error
}

// Uploader writes publicly readable objects to a single bucket and returns their public URLs.
type Uploader struct {
	bucket    string
	baseURL   string
	maxBytes  int64
	newWriter func(ctx context.Context, bucket, object, contentType string) objectWriter
}

// UploaderOption customises uploader behaviour.
type UploaderOption func(*Uploader)

// WithPublicBaseURL serves objects from a CDN or custom domain instead of storage.googleapis.com.
func WithPublicBaseURL(base string) UploaderOption {
	return func(u *Uploader) {
		if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
			u.baseURL = trimmed
		}
	}
}

// WithMaxBytes limits the size of a single object. Zero disables the limit.
func WithMaxBytes(limit int64) UploaderOption {
	return func(u *Uploader) {
		if limit >= 0 {
			u.maxBytes = limit
		}
	}
}

// NewUploader constructs an Uploader backed by the provided Cloud Storage client.
func NewUploader(client *gcs.Client, bucket string, opts ...UploaderOption) (*Uploader, error) {
	if client == nil {
		return nil, errors.New("storage uploader: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage uploader: bucket is required")
	}
	u := newUploader(bucket, func(ctx context.Context, bucket, object, contentType string) objectWriter {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = contentType
		w.CacheControl = defaultCacheControl
		return w
	}, opts...)
	return u, nil
}

func newUploader(bucket string, writer func(context.Context, string, string, string) objectWriter, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		bucket:    bucket,
		baseURL:   "https://storage.googleapis.com/" + bucket,
		newWriter: writer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	return u
}

// Upload streams body to objectPath and returns the public URL of the object. The write is aborted
// when body turns out larger than the configured limit.
func (u *Uploader) Upload(ctx context.Context, objectPath, contentType string, body io.Reader) (string, error) {
	if u == nil || u.newWriter == nil {
		return "", errors.New("storage uploader: not initialised")
	}
	object := strings.TrimSpace(objectPath)
	if object == "" {
		return "", errInvalidObject
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: %q", ErrContentTypeDenied, contentType)
	}
	if body == nil {
		return "", errors.New("storage uploader: body is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := u.newWriter(ctx, u.bucket, object, contentType)
	reader := body
	if u.maxBytes > 0 {
		reader = io.LimitReader(body, u.maxBytes+1)
	}
	written, err := io.Copy(w, reader)
	if err == nil && u.maxBytes > 0 && written > u.maxBytes {
		err = fmt.Errorf("%w: limit %d bytes", ErrObjectTooLarge, u.maxBytes)
	}
	if err != nil {
		// Cancelling before Close discards the partial object.
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("storage uploader: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage uploader: finalise %s: %w", object, err)
	}
	return u.PublicURL(object), nil
}

// PublicURL returns the URL an object is served from.
func (u *Uploader) PublicURL(objectPath string) string {
	segments := strings.Split(strings.Trim(objectPath, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return u.baseURL + "/" + strings.Join(segments, "/")
}

var errInvalidObject = errors.New("storage: object name is required")
