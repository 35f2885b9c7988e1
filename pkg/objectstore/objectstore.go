// Package objectstore is the narrow boundary between this control plane
// and whatever blob store holds node log bundles and protocol images: an
// interface plus a logging stub, never a real client SDK.
package objectstore

import (
	"context"
	"fmt"
	"log/slog"
)

// Store puts and fetches opaque blobs by key. A real implementation would
// wrap an S3-compatible SDK; this module wires only the interface and an
// in-memory best-effort stub.
type Store interface {
	PutObject(ctx context.Context, key string, data []byte) (location string, err error)
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// MemoryStore is the best-effort stand-in used when no real object store is
// configured: it keeps blobs in process memory and is lost on restart.
type MemoryStore struct {
	logger  *slog.Logger
	objects map[string][]byte
}

// NewMemoryStore builds the best-effort stub.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{logger: logger, objects: make(map[string][]byte)}
}

func (s *MemoryStore) PutObject(ctx context.Context, key string, data []byte) (string, error) {
	s.objects[key] = data
	location := fmt.Sprintf("memory://%s", key)
	s.logger.Info("objectstore: stub put", "key", key, "bytes", len(data))
	return location, nil
}

func (s *MemoryStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("objectstore: no such key %q", key)
	}
	return data, nil
}
