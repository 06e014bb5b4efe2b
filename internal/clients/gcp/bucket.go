// Package gcp wraps the Cloud Storage access used by file ingest: loads
// arrive as CSV objects and are pulled by reference, never uploaded through
// the API.
package gcp

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

// ObjectRef names one source object. An empty Bucket means the configured
// default source bucket.
type ObjectRef struct {
	Bucket string
	Object string
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("gs://%s/%s", r.Bucket, r.Object)
}

type BucketService interface {
	Download(ctx context.Context, ref ObjectRef) (io.ReadCloser, error)
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	sourceBucket  string
}

// NewBucketService connects to Cloud Storage with read scope.
// SOURCE_GCS_BUCKET_NAME is the default bucket for references that do not
// name one.
func NewBucketService(log *logger.Logger) (BucketService, error) {
	sourceBucket := strings.TrimSpace(os.Getenv("SOURCE_GCS_BUCKET_NAME"))
	if sourceBucket == "" {
		return nil, fmt.Errorf("missing env var SOURCE_GCS_BUCKET_NAME")
	}

	ctx := context.Background()
	opts := ClientOptionsFromEnv()
	opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
	stClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &bucketService{
		log:           log.With("service", "BucketService"),
		storageClient: stClient,
		sourceBucket:  sourceBucket,
	}, nil
}

func (bs *bucketService) resolve(ref ObjectRef) (ObjectRef, error) {
	ref.Bucket = strings.TrimSpace(ref.Bucket)
	ref.Object = strings.Trim(strings.TrimSpace(ref.Object), "/")
	if ref.Bucket == "" {
		ref.Bucket = bs.sourceBucket
	}
	if ref.Object == "" {
		return ref, fmt.Errorf("object key required")
	}
	return ref, nil
}

// readCloserWithCancel ties the reader's context to its Close. Cancelling
// before the caller reads would hand back an empty stream.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (bs *bucketService) Download(ctx context.Context, ref ObjectRef) (io.ReadCloser, error) {
	ref, err := bs.resolve(ref)
	if err != nil {
		return nil, err
	}
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)

	r, err := bs.storageClient.Bucket(ref.Bucket).Object(ref.Object).NewReader(ctx2)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open GCS reader for %s: %w", ref, err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (bs *bucketService) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		bucket = bs.sourceBucket
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	it := bs.storageClient.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

// ParseSourceURL turns the URL forms the ingest API accepts into an
// ObjectRef: gs://bucket/object and
// https://storage.googleapis.com/bucket/object.
func ParseSourceURL(raw string) (ObjectRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ObjectRef{}, fmt.Errorf("source url required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("invalid source url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "gs":
		obj := strings.Trim(u.Path, "/")
		if u.Host == "" || obj == "" {
			return ObjectRef{}, fmt.Errorf("invalid gs url %q", raw)
		}
		return ObjectRef{Bucket: u.Host, Object: obj}, nil
	case "https", "http":
		if u.Host != "storage.googleapis.com" {
			return ObjectRef{}, fmt.Errorf("unsupported source host %q", u.Host)
		}
		// u.Path arrives percent-decoded.
		parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return ObjectRef{}, fmt.Errorf("invalid storage url %q", raw)
		}
		return ObjectRef{Bucket: parts[0], Object: parts[1]}, nil
	default:
		return ObjectRef{}, fmt.Errorf("unsupported source url scheme %q", u.Scheme)
	}
}
