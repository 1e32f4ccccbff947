// Package testutil provides test helpers for mediavault tests.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, etc.)
//   - store_helpers.go: database test setup (NewTestStore)
//   - fs_helpers.go: filesystem helpers (WriteFile, WriteJSONL)
//   - builders.go: catalog entry builders
//
// Store-level fixtures live in the storetest subpackage.
package testutil
