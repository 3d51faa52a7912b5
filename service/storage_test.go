package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsConflict(t *testing.T) {
	gt.True(t, isConflict(&googleapi.Error{Code: http.StatusConflict}))
	gt.True(t, isConflict(fmt.Errorf("create: %w", &googleapi.Error{Code: http.StatusConflict})))
	gt.True(t, isConflict(status.Error(codes.AlreadyExists, "exists")))
	gt.False(t, isConflict(&googleapi.Error{Code: http.StatusForbidden}))
	gt.False(t, isConflict(status.Error(codes.PermissionDenied, "denied")))
	gt.False(t, isConflict(errors.New("boom")))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	gt.NoError(t, store.CreateBucket(ctx, "acme-source"))
	gt.True(t, errors.Is(store.CreateBucket(ctx, "acme-source"), ErrBucketExists))

	exists, err := store.BucketExists(ctx, "acme-source")
	gt.NoError(t, err)
	gt.True(t, exists)

	exists, err = store.BucketExists(ctx, "other")
	gt.NoError(t, err)
	gt.False(t, exists)

	put := func(ctx context.Context, object, data string) error {
		w := store.PutObject(ctx, "acme-source", object)
		if _, err := io.WriteString(w, data); err != nil {
			return err
		}
		return w.Close()
	}

	t.Run("overwrite", func(t *testing.T) {
		gt.NoError(t, put(ctx, "a.csv", "first"))
		gt.NoError(t, put(ctx, "a.csv", "second"))

		data, err := store.GetObject("acme-source", "a.csv")
		gt.NoError(t, err)
		gt.V(t, string(data)).Equal("second")
		gt.V(t, store.Objects("acme-source")).Equal([]string{"a.csv"})
	})

	t.Run("nothing is visible before close", func(t *testing.T) {
		w := store.PutObject(ctx, "acme-source", "pending.csv")
		_, err := io.WriteString(w, "data")
		gt.NoError(t, err)

		_, err = store.GetObject("acme-source", "pending.csv")
		gt.Error(t, err)

		gt.NoError(t, w.Close())
		gt.NoError(t, w.Close())
		_, err = w.Write([]byte("more"))
		gt.Error(t, err)
	})

	t.Run("cancelled writer is discarded", func(t *testing.T) {
		wctx, cancel := context.WithCancel(ctx)
		w := store.PutObject(wctx, "acme-source", "aborted.csv")
		_, err := io.WriteString(w, "partial")
		gt.NoError(t, err)
		cancel()

		gt.Error(t, w.Close())
		_, err = store.GetObject("acme-source", "aborted.csv")
		gt.Error(t, err)
	})

	t.Run("missing bucket", func(t *testing.T) {
		w := store.PutObject(ctx, "other", "a.csv")
		gt.Error(t, w.Close())
	})

	gt.V(t, store.ObjectURL("acme-source", "a.csv")).Equal("https://storage.googleapis.com/acme-source/a.csv")
}

func TestGCSStore(t *testing.T) {
	projectID := os.Getenv("TEST_STORAGE_PROJECT")
	if projectID == "" {
		t.Skip("TEST_STORAGE_PROJECT is not set")
	}

	ctx := context.Background()
	store, err := NewGCSStore(ctx, projectID, "US")
	gt.NoError(t, err).Required()
	defer func() {
		_ = store.Close()
	}()

	bucket := BucketName(projectID)
	p := NewProvisioner(store)
	gt.NoError(t, p.Ensure(ctx, bucket))
	gt.NoError(t, p.Ensure(ctx, bucket))

	object := "test-" + time.Now().Format("20060102150405") + ".csv"
	w := store.PutObject(ctx, bucket, object)
	_, err = io.Copy(w, strings.NewReader("a,b\n1,2\n"))
	gt.NoError(t, err)
	gt.NoError(t, w.Close())
}
