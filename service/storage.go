package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ObjectStore is the remote object storage used as export destination.
type ObjectStore interface {
	// CreateBucket creates the bucket. It returns ErrBucketExists if it is already there.
	CreateBucket(ctx context.Context, bucket string) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	// PutObject opens an object for write. The object is committed, replacing any previous
	// content, when the writer is closed.
	PutObject(ctx context.Context, bucket, object string) io.WriteCloser
	ObjectURL(bucket, object string) string
}

type GCSStore struct {
	client    *storage.Client
	projectID string
	location  string
}

var _ ObjectStore = (*GCSStore)(nil)

func NewGCSStore(ctx context.Context, projectID, location string, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}
	return &GCSStore{
		client:    client,
		projectID: projectID,
		location:  location,
	}, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) CreateBucket(ctx context.Context, bucket string) error {
	attrs := &storage.BucketAttrs{Location: s.location}
	if err := s.client.Bucket(bucket).Create(ctx, s.projectID, attrs); err != nil {
		if isConflict(err) {
			return ErrBucketExists
		}
		return goerr.Wrap(err, "failed to create bucket",
			goerr.V("bucket", bucket),
			goerr.V("project_id", s.projectID),
		)
	}
	return nil
}

func (s *GCSStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := s.client.Bucket(bucket).Attrs(ctx)
	if errors.Is(err, storage.ErrBucketNotExist) {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "failed to get bucket attributes", goerr.V("bucket", bucket))
	}
	return true, nil
}

func (s *GCSStore) PutObject(ctx context.Context, bucket, object string) io.WriteCloser {
	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "text/csv; charset=utf-8"
	return w
}

func (s *GCSStore) ObjectURL(bucket, object string) string {
	return objectURL(bucket, object)
}

func objectURL(bucket, object string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, object)
}

// isConflict covers both the JSON API (HTTP 409) and the gRPC transport.
func isConflict(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusConflict
	}
	if st, ok := status.FromError(err); ok {
		return st.Code() == codes.AlreadyExists
	}
	return false
}
