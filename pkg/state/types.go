package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrETagMismatch = errors.New("state: etag mismatch")

// ErrUnchanged may be returned by a Mutator to skip the save.
var ErrUnchanged = errors.New("state: unchanged")

// DefaultAttempts is the number of tries Update makes when attempts <= 0.
const DefaultAttempts = 3

// Ref identifies one stored value.
type Ref struct {
	Namespace string
	Key       string
}

// Meta is storage-owned metadata used for concurrency control and audit.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads and saves one value per Ref.
type Store[T any] interface {
	Load(ctx context.Context, ref Ref) (value T, meta Meta, ok bool, err error)
	// Save writes value when the stored ETag equals expected.ETag. An empty
	// expected ETag requires that no value exists.
	Save(ctx context.Context, ref Ref, value T, expected Meta) (Meta, error)
}

// Mutator edits a loaded value in place.
type Mutator[T any] func(*T) error

// Validator is implemented by values that check themselves before a save.
type Validator interface {
	Validate() error
}

// Identifier returns the canonical storage key "namespace/key".
func (r Ref) Identifier() (string, error) {
	ns := strings.TrimSpace(r.Namespace)
	key := strings.TrimSpace(r.Key)
	if ns == "" {
		return "", fmt.Errorf("state: namespace is required")
	}
	if key == "" {
		return "", fmt.Errorf("state: key is required")
	}
	if strings.Contains(ns, "/") {
		return "", fmt.Errorf("state: namespace %q must not contain '/'", ns)
	}
	return ns + "/" + key, nil
}

// NewETag returns a fresh opaque ETag.
func NewETag() string {
	return uuid.NewString()
}

// Update loads the value at ref, applies fn and saves the result, retrying
// from the load when another writer won the race. fn sees the zero value
// when nothing is stored yet.
func Update[T any](ctx context.Context, store Store[T], ref Ref, fn Mutator[T], attempts int) (T, Meta, error) {
	var zero T
	if store == nil {
		return zero, Meta{}, fmt.Errorf("state: store is required")
	}
	if fn == nil {
		return zero, Meta{}, fmt.Errorf("state: mutator is required")
	}
	if _, err := ref.Identifier(); err != nil {
		return zero, Meta{}, err
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, Meta{}, err
		}
		value, loaded, ok, err := store.Load(ctx, ref)
		if err != nil {
			return zero, Meta{}, fmt.Errorf("state: load %q/%q: %w", ref.Namespace, ref.Key, err)
		}
		if !ok {
			value, loaded = zero, Meta{}
		}

		if err := fn(&value); err != nil {
			if errors.Is(err, ErrUnchanged) {
				return value, loaded, nil
			}
			return zero, loaded, err
		}
		if v, ok := any(value).(Validator); ok {
			if err := v.Validate(); err != nil {
				return zero, loaded, err
			}
		}

		saved, err := store.Save(ctx, ref, value, loaded)
		if err == nil {
			return value, saved, nil
		}
		if !errors.Is(err, ErrETagMismatch) {
			return zero, loaded, fmt.Errorf("state: save %q/%q: %w", ref.Namespace, ref.Key, err)
		}
		lastErr = err
	}
	return zero, Meta{}, fmt.Errorf("state: update %q/%q gave up after %d attempts: %w", ref.Namespace, ref.Key, attempts, lastErr)
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}
