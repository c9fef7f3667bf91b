// Package storage keeps uploaded grade sheets and archived SIS payloads in an
// object store.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ieap-grade-sync/pkg/errors"
)

type Storage interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key, contentType string, data io.ReadSeeker) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ImportKey names an uploaded grade sheet: imports/<course>/<uuid>-<file>.
func ImportKey(courseID int64, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return fmt.Sprintf("imports/%d/%s-%s", courseID, uuid.NewString(), base)
}

// ArchiveKey names an archived push payload, partitioned by day.
func ArchiveKey(prefix, syncType string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%s.json", strings.TrimRight(prefix, "/"), syncType, at.UTC().Format("2006/01/02"), uuid.NewString())
}

// MemoryStorage is a process-local Storage for tests and dry runs.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

func (m *MemoryStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, errors.ErrFileNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryStorage) Upload(_ context.Context, key, _ string, data io.ReadSeeker) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = buf
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStorage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryStorage) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
