package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore keeps attachments in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(ctx context.Context, bucket, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("blob credentials file %s: %w", credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Upload(ctx context.Context, storedName string, r io.Reader, contentType string, metadata map[string]string) (string, error) {
	obj := s.client.Bucket(s.bucket).Object(storedName)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", storedName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer for %s: %w", storedName, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, storedName), nil
}

func (s *GCSStore) SignedURL(ctx context.Context, storedName string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(storedName, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().UTC().Add(ttl),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("sign url for %s: %w", storedName, err)
	}
	return url, nil
}

func (s *GCSStore) Exists(ctx context.Context, storedName string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(storedName).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *GCSStore) Delete(ctx context.Context, storedName string) (bool, error) {
	err := s.client.Bucket(s.bucket).Object(storedName).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *GCSStore) Kind() string { return "gcs" }

func (s *GCSStore) Close() error { return s.client.Close() }
