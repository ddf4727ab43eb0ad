package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config locates an S3-compatible API and the keys used to read
// private buckets through it. An empty Endpoint means AWS.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

func (c S3Config) enabled() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// WithS3 reads http(s) object URLs that point at S3 or at the configured
// endpoint through the signed S3 API.
func WithS3(cfg S3Config) FetcherOption {
	return func(f *Fetcher) { f.s3 = cfg }
}

// s3Target reports whether u should be read through the S3 API rather
// than a plain GET. Presigned URLs already carry their credentials.
func (f *Fetcher) s3Target(u *url.URL) bool {
	if !f.s3.enabled() {
		return false
	}
	q := u.Query()
	if q.Has("X-Amz-Signature") || q.Has("X-Amz-Credential") {
		return false
	}

	host := strings.ToLower(u.Host)
	if f.s3.Endpoint != "" {
		if ep, err := url.Parse(f.s3.Endpoint); err == nil && strings.EqualFold(ep.Host, host) {
			return true
		}
	}
	return awsS3Host(u.Hostname())
}

func awsS3Host(host string) bool {
	host = strings.ToLower(host)
	if !strings.HasSuffix(host, ".amazonaws.com") {
		return false
	}
	return strings.HasPrefix(host, "s3.") || strings.HasPrefix(host, "s3-") ||
		strings.Contains(host, ".s3.") || strings.Contains(host, ".s3-")
}

func (f *Fetcher) fetchS3(ctx context.Context, ref ObjectRef) ([]byte, error) {
	client, err := f.s3Client()
	if err != nil {
		return nil, err
	}

	obj, err := client.GetObject(ctx, ref.Bucket, ref.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s3Error(ref, err)
	}
	defer func() { _ = obj.Close() }()

	info, err := obj.Stat()
	if err != nil {
		return nil, s3Error(ref, err)
	}
	if info.Size > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrObjectTooLarge, info.Size, f.maxBytes)
	}
	return f.readAll(obj)
}

func (f *Fetcher) s3Client() (*minio.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.s3c != nil {
		return f.s3c, nil
	}

	host, secure, lookup := "s3.amazonaws.com", true, minio.BucketLookupAuto
	if f.s3.Endpoint != "" {
		ep, err := url.Parse(f.s3.Endpoint)
		if err != nil || ep.Host == "" {
			return nil, fmt.Errorf("%w: s3 endpoint %q", ErrStorageUnavailable, f.s3.Endpoint)
		}
		host, secure, lookup = ep.Host, ep.Scheme == "https", minio.BucketLookupPath
	}

	client, err := minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4(f.s3.AccessKeyID, f.s3.SecretAccessKey, ""),
		Secure:       secure,
		Region:       f.s3.Region,
		BucketLookup: lookup,
		Transport:    f.httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create s3 client: %w", ErrStorageUnavailable, err)
	}
	f.s3c = client
	return client, nil
}

func s3Error(ref ObjectRef, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, ref.Bucket, ref.Key)
	}
	return fmt.Errorf("%w: get s3://%s/%s: %w", ErrStorageUnavailable, ref.Bucket, ref.Key, err)
}
