package testutil

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteFile writes content to name inside dir and returns the full path.
// The name must stay inside dir.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	if filepath.IsAbs(name) || strings.HasPrefix(filepath.Clean(name), "..") {
		t.Fatalf("WriteFile: %q escapes %s", name, dir)
	}

	path := filepath.Join(dir, filepath.Clean(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

// WriteJSONL writes one JSON document per line to name inside dir.
func WriteJSONL[T any](t *testing.T, dir, name string, records []T) string {
	t.Helper()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode record %d: %v", i, err)
		}
	}
	return WriteFile(t, dir, name, buf.Bytes())
}
