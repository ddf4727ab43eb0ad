package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/minio/minio-go/v7"
	"google.golang.org/api/option"
)

// Fetch defaults.
const (
	DefaultFetchTimeout = 60 * time.Second
	DefaultMaxBytes     = 50 << 20
)

// virtualHostSuffixes identify hosts that carry the bucket as the first
// label instead of the first path segment.
var virtualHostSuffixes = []string{
	".s3.amazonaws.com",
	".storage.googleapis.com",
}

// ObjectRef locates a stored object.
type ObjectRef struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseObjectURL splits a storage URL into bucket and key. gs:// URLs carry
// the bucket as host. http(s) URLs are virtual-host style when the host
// ends in a known storage suffix or has a "<bucket>.s3." prefix, and
// path-style otherwise.
func ParseObjectURL(raw string) (ObjectRef, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("%w: %q: %w", ErrInvalidURL, raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	path := strings.TrimPrefix(u.Path, "/")
	host := strings.ToLower(u.Hostname())

	switch scheme {
	case "gs":
		if host == "" || path == "" {
			return ObjectRef{}, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
		}
		return ObjectRef{Scheme: scheme, Bucket: u.Host, Key: path}, nil
	case "http", "https":
	default:
		return ObjectRef{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	for _, suffix := range virtualHostSuffixes {
		if bucket, ok := strings.CutSuffix(host, suffix); ok && bucket != "" && path != "" {
			return ObjectRef{Scheme: scheme, Bucket: bucket, Key: path}, nil
		}
	}
	if bucket, _, ok := strings.Cut(host, ".s3."); ok && bucket != "" && path != "" {
		return ObjectRef{Scheme: scheme, Bucket: bucket, Key: path}, nil
	}

	bucket, key, ok := strings.Cut(path, "/")
	if !ok || bucket == "" || key == "" {
		return ObjectRef{}, fmt.Errorf("%w: %q has no bucket/key path", ErrInvalidURL, raw)
	}
	return ObjectRef{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

// Fetcher reads whole objects from Google Cloud Storage, S3-compatible
// stores or over HTTP.
type Fetcher struct {
	httpClient      *http.Client
	storageEndpoint string
	credentialsFile string
	s3              S3Config
	timeout         time.Duration
	maxBytes        int64

	mu  sync.Mutex
	gcs *storage.Client
	s3c *minio.Client
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the client used for http(s) URLs.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.httpClient = c
		}
	}
}

// WithStorageClient sets the Cloud Storage client used for gs:// URLs.
func WithStorageClient(c *storage.Client) FetcherOption {
	return func(f *Fetcher) { f.gcs = c }
}

// WithStorageEndpoint points gs:// reads at an emulator or alternative
// endpoint. Requests are then unauthenticated.
func WithStorageEndpoint(endpoint string) FetcherOption {
	return func(f *Fetcher) { f.storageEndpoint = strings.TrimRight(endpoint, "/") }
}

// WithCredentialsFile sets the service account file for gs:// reads.
func WithCredentialsFile(path string) FetcherOption {
	return func(f *Fetcher) { f.credentialsFile = path }
}

// WithFetchTimeout bounds each fetch.
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxBytes caps the object size.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// NewFetcher creates a Fetcher. The Cloud Storage and S3 clients are
// created on first use.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{},
		timeout:    DefaultFetchTimeout,
		maxBytes:   DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch reads the whole object at rawURL. gs:// URLs are read through
// Cloud Storage. http(s) URLs are read through the S3 API when WithS3 is
// configured and the host is an S3 endpoint, and with a plain GET otherwise.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidURL, redact(rawURL), err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	switch strings.ToLower(u.Scheme) {
	case "gs":
		ref, err := ParseObjectURL(rawURL)
		if err != nil {
			return nil, err
		}
		return f.fetchGCS(ctx, ref)
	case "http", "https":
		if !f.s3Target(u) {
			return f.fetchHTTP(ctx, rawURL)
		}
		ref, err := ParseObjectURL(rawURL)
		if err != nil {
			return nil, err
		}
		return f.fetchS3(ctx, ref)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
}

// Close releases the storage clients.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s3c = nil
	if f.gcs == nil {
		return nil
	}
	err := f.gcs.Close()
	f.gcs = nil
	return err
}

func (f *Fetcher) fetchGCS(ctx context.Context, ref ObjectRef) ([]byte, error) {
	client, err := f.storageClient(ctx)
	if err != nil {
		return nil, err
	}

	r, err := client.Bucket(ref.Bucket).Object(ref.Key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("%w: gs://%s/%s", ErrObjectNotFound, ref.Bucket, ref.Key)
		}
		return nil, fmt.Errorf("%w: open gs://%s/%s: %w", ErrStorageUnavailable, ref.Bucket, ref.Key, err)
	}
	defer func() { _ = r.Close() }()

	if r.Attrs.Size > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrObjectTooLarge, r.Attrs.Size, f.maxBytes)
	}
	return f.readAll(r)
}

func (f *Fetcher) storageClient(ctx context.Context) (*storage.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gcs != nil {
		return f.gcs, nil
	}

	var opts []option.ClientOption
	if f.storageEndpoint != "" {
		opts = append(opts, option.WithEndpoint(f.storageEndpoint+"/storage/v1/"), option.WithoutAuthentication())
	} else if f.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(f.credentialsFile))
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadOnly))

	// The client outlives this fetch, so it is not bound to ctx's deadline.
	client, err := storage.NewClient(context.WithoutCancel(ctx), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create storage client: %w", ErrStorageUnavailable, err)
	}
	f.gcs = client
	return client, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrStorageUnavailable, redact(rawURL), err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, redact(rawURL))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: get %s: status %d", ErrStorageUnavailable, redact(rawURL), resp.StatusCode)
	}

	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrObjectTooLarge, resp.ContentLength, f.maxBytes)
	}
	return f.readAll(resp.Body)
}

func (f *Fetcher) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read object: %w", ErrStorageUnavailable, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrObjectTooLarge, f.maxBytes)
	}
	return data, nil
}

// redact drops the query string, which holds presigned credentials.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
