package etl

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore keeps artifacts as objects in one Cloud Storage bucket.
type GCSStore struct {
	Client *storage.Client
	Bucket string
}

func NewGCSStore(ctx context.Context, bucket, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating storage client: %w", err)
	}
	return &GCSStore{Client: client, Bucket: bucket}, nil
}

// Put uploads data in a single request; the object only becomes visible once
// the writer is closed successfully.
func (s *GCSStore) Put(ctx context.Context, path, contentType string, data []byte) error {
	w := s.Client.Bucket(s.Bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	w.ChunkSize = 0
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("upload gs://%s/%s: %w", s.Bucket, path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload gs://%s/%s: %w", s.Bucket, path, err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, path string) ([]byte, error) {
	r, err := s.Client.Bucket(s.Bucket).Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", s.Bucket, path, ErrNotFound)
		}
		return nil, fmt.Errorf("download gs://%s/%s: %w", s.Bucket, path, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *GCSStore) Close() error {
	return s.Client.Close()
}
