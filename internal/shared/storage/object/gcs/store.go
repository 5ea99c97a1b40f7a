package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"voterlist-backend/internal/shared/storage/object"
	"voterlist-backend/internal/shared/util"
)

// Store implements ObjectStore on a Google Cloud Storage bucket.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed object store using application default credentials.
func New(ctx context.Context, bucket, prefix string) (*Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
	}, nil
}

// Save streams the reader into a new object. The write is conditioned on the
// object not existing, so a random-key collision fails instead of overwriting.
func (s *Store) Save(ctx context.Context, owner string, fileName string, r io.Reader) (string, int64, string, error) {
	storageKey, err := util.ObjectKey(owner, fileName)
	if err != nil {
		return "", 0, "", err
	}
	if err := ctx.Err(); err != nil {
		return "", 0, "", err
	}
	objectName := s.objectName(storageKey)

	body, mimeType, err := object.Sniff(r)
	if err != nil {
		return "", 0, "", err
	}

	w := s.client.Bucket(s.bucket).Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = mimeType
	size, err := io.Copy(w, body)
	if err != nil {
		_ = w.Close()
		return "", 0, "", fmt.Errorf("gcs write gs://%s/%s: %w", s.bucket, objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", 0, "", fmt.Errorf("gcs finalize gs://%s/%s: %w", s.bucket, objectName, err)
	}
	return storageKey, size, mimeType, nil
}

// Open returns a reader for the stored object.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	objectName := s.objectName(storageKey)
	rc, err := s.client.Bucket(s.bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, object.ErrNotFound
		}
		return nil, fmt.Errorf("gcs reader gs://%s/%s: %w", s.bucket, objectName, err)
	}
	return rc, nil
}

// Delete removes the object.
func (s *Store) Delete(ctx context.Context, storageKey string) error {
	objectName := s.objectName(storageKey)
	err := s.client.Bucket(s.bucket).Object(objectName).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete gs://%s/%s: %w", s.bucket, objectName, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) objectName(storageKey string) string {
	key := strings.TrimLeft(storageKey, "/")
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

var _ object.ObjectStore = (*Store)(nil)
