//go:build sqlite_fts5 || fts5

package store

// builtWithFTS5 reports whether the sqlite3 driver was compiled with FTS5.
const builtWithFTS5 = true
