package state

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store intended for tests and examples. It keys
// records by Ref.Identifier().
type MemoryStore[T any] struct {
	mu      sync.RWMutex
	records map[string]memoryRecord[T]
	now     func() time.Time
}

type memoryRecord[T any] struct {
	value T
	meta  Meta
}

func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{records: map[string]memoryRecord[T]{}, now: time.Now}
}

func (s *MemoryStore[T]) Load(_ context.Context, ref Ref) (T, Meta, bool, error) {
	var zero T
	key, err := ref.Identifier()
	if err != nil {
		return zero, Meta{}, false, err
	}

	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return zero, Meta{}, false, nil
	}
	return record.value, cloneMeta(record.meta), true, nil
}

func (s *MemoryStore[T]) Save(_ context.Context, ref Ref, value T, expected Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.records[key]
	if exists && current.meta.ETag != expected.ETag {
		return Meta{}, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, expected.ETag, current.meta.ETag)
	}
	if !exists && expected.ETag != "" {
		return Meta{}, fmt.Errorf("%w: expected %q, record is missing", ErrETagMismatch, expected.ETag)
	}

	meta := mergeMeta(current.meta, expected)
	meta.ETag = NewETag()
	meta.UpdatedAt = s.now().UTC()
	s.records[key] = memoryRecord[T]{value: value, meta: cloneMeta(meta)}
	return cloneMeta(meta), nil
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra != nil {
		out.Extra = maps.Clone(meta.Extra)
	}
	return out
}
