// Package statetest holds the behaviour every state.Store must show.
package statetest

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/goliatone/go-autosplit/pkg/state"
)

// Record is the value type the contract stores.
type Record struct {
	Name     string         `json:"name"`
	Attempts int            `json:"attempts"`
	Segments []int          `json:"segments,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// RunStoreContract checks load, compare-and-save and Update against stores
// built by newStore. Each subtest gets a fresh store.
func RunStoreContract(t *testing.T, newStore func(t *testing.T) state.Store[Record]) {
	t.Helper()
	ctx := context.Background()
	ref := state.Ref{Namespace: "comparisons", Key: "any%"}

	t.Run("load missing", func(t *testing.T) {
		store := newStore(t)
		_, _, ok, err := store.Load(ctx, ref)
		if err != nil || ok {
			t.Fatalf("expected missing record, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("create then load", func(t *testing.T) {
		store := newStore(t)
		want := Record{Name: "Any%", Attempts: 1, Segments: []int{2, 0, 1}}
		meta, err := store.Save(ctx, ref, want, state.Meta{SnapshotID: "run-1"})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		if meta.ETag == "" || meta.UpdatedAt.IsZero() {
			t.Fatalf("expected etag and timestamp, got %+v", meta)
		}
		got, loaded, ok, err := store.Load(ctx, ref)
		if err != nil || !ok {
			t.Fatalf("load: ok=%v err=%v", ok, err)
		}
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("value mismatch:\nwant: %#v\n got: %#v", want, got)
		}
		if loaded.ETag != meta.ETag || loaded.SnapshotID != "run-1" {
			t.Fatalf("meta mismatch: saved %+v loaded %+v", meta, loaded)
		}
	})

	t.Run("create requires empty etag", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Save(ctx, ref, Record{Name: "x"}, state.Meta{ETag: "made-up"})
		if !errors.Is(err, state.ErrETagMismatch) {
			t.Fatalf("expected etag mismatch, got %v", err)
		}
	})

	t.Run("stale etag is rejected", func(t *testing.T) {
		store := newStore(t)
		first, err := store.Save(ctx, ref, Record{Name: "a"}, state.Meta{})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		second, err := store.Save(ctx, ref, Record{Name: "b"}, first)
		if err != nil {
			t.Fatalf("save with current etag: %v", err)
		}
		if second.ETag == first.ETag {
			t.Fatalf("expected a new etag")
		}
		if _, err := store.Save(ctx, ref, Record{Name: "c"}, first); !errors.Is(err, state.ErrETagMismatch) {
			t.Fatalf("expected etag mismatch, got %v", err)
		}
		if _, err := store.Save(ctx, ref, Record{Name: "c"}, state.Meta{}); !errors.Is(err, state.ErrETagMismatch) {
			t.Fatalf("expected existing record to reject create, got %v", err)
		}
		got, _, _, _ := store.Load(ctx, ref)
		if got.Name != "b" {
			t.Fatalf("rejected saves must not write, got %q", got.Name)
		}
	})

	t.Run("update increments", func(t *testing.T) {
		store := newStore(t)
		for i := 0; i < 3; i++ {
			if _, _, err := state.Update(ctx, store, ref, func(r *Record) error {
				r.Attempts++
				return nil
			}, 0); err != nil {
				t.Fatalf("update: %v", err)
			}
		}
		got, _, _, _ := store.Load(ctx, ref)
		if got.Attempts != 3 {
			t.Fatalf("expected 3 attempts, got %d", got.Attempts)
		}
	})

	t.Run("invalid ref", func(t *testing.T) {
		store := newStore(t)
		if _, _, _, err := store.Load(ctx, state.Ref{Key: "x"}); err == nil {
			t.Fatalf("expected error for missing namespace")
		}
	})
}
