package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
)

// BucketName returns the destination bucket of a project.
func BucketName(projectID string) string {
	return projectID + "-source"
}

// Provisioner makes sure the destination bucket exists before any export runs.
type Provisioner struct {
	store ObjectStore
}

func NewProvisioner(store ObjectStore) *Provisioner {
	return &Provisioner{store: store}
}

// Ensure creates the bucket or accepts an existing one. Any other creation failure, or a
// bucket still missing afterwards, is tagged TagProvisionFailure.
func (p *Provisioner) Ensure(ctx context.Context, bucket string) error {
	err := p.store.CreateBucket(ctx, bucket)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "Bucket created", "bucket", bucket)
	case errors.Is(err, ErrBucketExists):
		slog.InfoContext(ctx, "Bucket already exists", "bucket", bucket)
	default:
		return goerr.Wrap(err, "failed to provision bucket",
			goerr.V("bucket", bucket),
			goerr.T(TagProvisionFailure))
	}

	exists, err := p.store.BucketExists(ctx, bucket)
	if err != nil {
		return goerr.Wrap(err, "failed to confirm bucket",
			goerr.V("bucket", bucket),
			goerr.T(TagProvisionFailure))
	}
	if !exists {
		return goerr.New("bucket does not exist after provisioning",
			goerr.V("bucket", bucket),
			goerr.T(TagProvisionFailure))
	}
	return nil
}
