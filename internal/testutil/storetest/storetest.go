// Package storetest provides a Fixture and helpers for tests that exercise
// the catalog through its public API.
package storetest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/mediavault/mediavault/internal/store"
	"github.com/mediavault/mediavault/internal/testutil"
)

// Fixture holds common test state for store-level tests.
type Fixture struct {
	T       *testing.T
	Store   *store.Store
	counter atomic.Int64
}

// New creates a Fixture with a fresh test database.
func New(t *testing.T) *Fixture {
	t.Helper()
	return &Fixture{T: t, Store: testutil.NewTestStore(t)}
}

// NextKey returns a unique content key.
func (f *Fixture) NextKey() string {
	return fmt.Sprintf("key-%04d", f.counter.Add(1))
}

// Add inserts entry and fails the test on error.
func (f *Fixture) Add(entry *store.MediaEntry) *store.MediaEntry {
	f.T.Helper()
	testutil.MustNoErr(f.T, f.Store.InsertMedia(context.Background(), entry), "InsertMedia "+entry.ContentKey)
	return entry
}

// AddNamed inserts a video entry with a fresh key and the given display name.
func (f *Fixture) AddNamed(name string) *store.MediaEntry {
	f.T.Helper()
	return f.Add(testutil.NewMedia(f.NextKey()).WithName(name).Build())
}

// AddN inserts count video entries named "<prefix> <i>" in order and
// returns their keys in insertion order.
func (f *Fixture) AddN(prefix string, count int) []string {
	f.T.Helper()
	keys := make([]string, 0, count)
	for i := 0; i < count; i++ {
		e := f.AddNamed(fmt.Sprintf("%s %d", prefix, i))
		keys = append(keys, e.ContentKey)
	}
	return keys
}

// Keys returns the content keys of entries in order.
func Keys(entries []store.MediaEntry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.ContentKey
	}
	return keys
}
