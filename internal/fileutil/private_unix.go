//go:build !windows

// Package fileutil keeps the mediavault home private to the current user.
// On Unix, permission bits do the work. On Windows, new directories and
// files additionally get a DACL granting access only to the current user.
package fileutil

import "os"

// MkdirPrivate creates dir and any missing parents with mode 0700.
func MkdirPrivate(dir string) error {
	return os.MkdirAll(dir, 0o700)
}

// RestrictFile limits an existing file to mode 0600.
func RestrictFile(path string) error {
	return os.Chmod(path, 0o600)
}
