package service

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

// MemoryStore keeps buckets and objects in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

var _ ObjectStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]map[string][]byte),
	}
}

func (m *MemoryStore) CreateBucket(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buckets[bucket]; ok {
		return ErrBucketExists
	}
	m.buckets[bucket] = make(map[string][]byte)
	return nil
}

func (m *MemoryStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.buckets[bucket]
	return ok, nil
}

func (m *MemoryStore) PutObject(ctx context.Context, bucket, object string) io.WriteCloser {
	return &memoryWriter{
		ctx:    ctx,
		store:  m,
		bucket: bucket,
		object: object,
	}
}

func (m *MemoryStore) ObjectURL(bucket, object string) string {
	return objectURL(bucket, object)
}

// Buckets returns the bucket names in lexical order.
func (m *MemoryStore) Buckets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Objects returns the object names of a bucket in lexical order.
func (m *MemoryStore) Objects(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.buckets[bucket]))
	for name := range m.buckets[bucket] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *MemoryStore) GetObject(bucket, object string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.buckets[bucket][object]
	if !ok {
		return nil, goerr.New("object not found", goerr.V("bucket", bucket), goerr.V("object", object))
	}
	return data, nil
}

type memoryWriter struct {
	ctx    context.Context
	store  *MemoryStore
	bucket string
	object string
	buffer bytes.Buffer
	closed bool
	mu     sync.Mutex
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, goerr.New("writer is closed")
	}
	return w.buffer.Write(p)
}

func (w *memoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.ctx.Err(); err != nil {
		return goerr.Wrap(err, "write aborted", goerr.V("object", w.object))
	}

	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	objects, ok := w.store.buckets[w.bucket]
	if !ok {
		return goerr.New("bucket not found", goerr.V("bucket", w.bucket))
	}
	objects[w.object] = bytes.Clone(w.buffer.Bytes())
	return nil
}
