package attachments

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

var errWriterDone = errors.New("attachments: writer already closed")

// MemoryStore keeps blobs in process memory. It is meant for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) OpenWriter(ctx context.Context, ref ports.AttachmentRef) (ports.AttachmentWriter, error) {
	path, err := ObjectPath(ref)
	if err != nil {
		return nil, err
	}
	if err := ctxDone(ctx); err != nil {
		return nil, err
	}
	return &memoryWriter{store: m, path: path}, nil
}

func (m *MemoryStore) Delete(_ context.Context, ref ports.AttachmentRef) error {
	path, err := ObjectPath(ref)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, path)
	return nil
}

func (m *MemoryStore) DeleteAllForUser(_ context.Context, userKey string) (int, error) {
	prefix, err := UserPrefix(userKey)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for path := range m.blobs {
		if strings.HasPrefix(path, prefix) {
			delete(m.blobs, path)
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the blob at path.
func (m *MemoryStore) Get(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

type memoryWriter struct {
	store *MemoryStore
	path  string
	buf   bytes.Buffer
	done  bool
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, errWriterDone
	}
	return w.buf.Write(p)
}

func (w *memoryWriter) Close() error {
	if w.done {
		return errWriterDone
	}
	w.done = true
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.blobs[w.path] = append([]byte(nil), w.buf.Bytes()...)
	return nil
}

func (w *memoryWriter) Abort() error {
	w.done = true
	w.buf.Reset()
	return nil
}
