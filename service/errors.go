package service

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

// ErrBucketExists is returned by ObjectStore.CreateBucket when the bucket is already there.
var ErrBucketExists = errors.New("bucket already exists")

var (
	TagProvisionFailure    = goerr.NewTag("provision_failure")
	TagExportTargetFailure = goerr.NewTag("export_target_failure")
	TagInvalidJob          = goerr.NewTag("invalid_job")
)
