// Package s3 provides an ArtifactStore backed by S3 or any S3-compatible
// object storage (MinIO, Spaces, R2) through minio-go.
//
// Objects are laid out as <prefix><sessionID>/<artifactID> in one bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/hupe1980/codeagent/artifact"
)

// ObjectClient is the object storage surface used by Store. NewStore wires it
// to minio-go; tests substitute a fake.
type ObjectClient interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	// Get returns artifact.ErrNotFound for missing keys.
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// Exists reports whether the key is present.
	Exists(ctx context.Context, bucket, key string) (bool, error)
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Remove(ctx context.Context, bucket, key string) error
}

// Options configures a Store.
type Options struct {
	// Endpoint host[:port] (default env S3_ENDPOINT or "s3.amazonaws.com").
	Endpoint string
	// AccessKey / SecretKey default to AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY.
	AccessKey    string
	SecretKey    string
	SessionToken string
	// Region defaults to AWS_REGION. Setting it avoids a bucket location lookup.
	Region string
	// Insecure disables TLS (local MinIO).
	Insecure bool
	// Prefix is prepended to every key, e.g. "codeagent/".
	Prefix string
	// ContentType for stored objects (default "application/octet-stream",
	// "text/markdown" for .md ids).
	ContentType string
}

// Store implements core.ArtifactStore on an object storage bucket.
type Store struct {
	client ObjectClient
	bucket string
	opts   Options
}

// NewStore creates a minio-go backed store for bucket.
func NewStore(bucket string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		Endpoint:     os.Getenv("S3_ENDPOINT"),
		AccessKey:    os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey:    os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken: os.Getenv("AWS_SESSION_TOKEN"),
		Region:       os.Getenv("AWS_REGION"),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Endpoint == "" {
		opts.Endpoint = "s3.amazonaws.com"
	}

	client, err := newMinioClient(opts)
	if err != nil {
		return nil, err
	}

	return NewStoreFromClient(client, bucket, func(o *Options) { *o = opts }), nil
}

// NewStoreFromClient wraps an existing ObjectClient.
func NewStoreFromClient(client ObjectClient, bucket string, optFns ...func(o *Options)) *Store {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{client: client, bucket: bucket, opts: opts}
}

// ParseURL splits "s3://bucket/some/key" into bucket and key.
func ParseURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 url: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 url %q: expected s3://bucket/key", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("invalid s3 url %q: missing object key", raw)
	}
	return u.Host, key, nil
}

func (s *Store) sessionPrefix(sessionID string) string {
	return s.opts.Prefix + sessionID + "/"
}

func (s *Store) key(sessionID, artifactID string) (string, error) {
	if err := artifact.ValidateID(sessionID); err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	if err := artifact.ValidateID(artifactID); err != nil {
		return "", err
	}
	return s.sessionPrefix(sessionID) + artifactID, nil
}

func (s *Store) contentType(id string) string {
	if s.opts.ContentType != "" {
		return s.opts.ContentType
	}
	switch path.Ext(id) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// PutObject writes data to an absolute key in the bucket, outside any
// session scope. Used for explicit output locations.
func (s *Store) PutObject(ctx context.Context, key string, data []byte) error {
	if err := s.client.Put(ctx, s.bucket, key, data, s.contentType(key)); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Save implements core.ArtifactStore.
func (s *Store) Save(ctx context.Context, sessionID, artifactID string, data []byte) error {
	key, err := s.key(sessionID, artifactID)
	if err != nil {
		return err
	}
	return s.PutObject(ctx, key, data)
}

// Get implements core.ArtifactStore.
func (s *Store) Get(ctx context.Context, sessionID, artifactID string) ([]byte, error) {
	key, err := s.key(sessionID, artifactID)
	if err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.bucket, key)
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, artifact.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

// List implements core.ArtifactStore.
func (s *Store) List(ctx context.Context, sessionID string) ([]string, error) {
	if err := artifact.ValidateID(sessionID); err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}

	prefix := s.sessionPrefix(sessionID)
	keys, err := s.client.List(ctx, s.bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, prefix, err)
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id := strings.TrimPrefix(k, prefix); id != "" && id != k {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Delete implements core.ArtifactStore. S3 deletes are idempotent, so the key
// is checked first to report ErrNotFound.
func (s *Store) Delete(ctx context.Context, sessionID, artifactID string) error {
	key, err := s.key(sessionID, artifactID)
	if err != nil {
		return err
	}

	ok, err := s.client.Exists(ctx, s.bucket, key)
	if err != nil {
		return fmt.Errorf("stat s3://%s/%s: %w", s.bucket, key, err)
	}
	if !ok {
		return artifact.ErrNotFound
	}

	if err := s.client.Remove(ctx, s.bucket, key); err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
