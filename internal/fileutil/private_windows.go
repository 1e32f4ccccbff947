//go:build windows

package fileutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// restrictToCurrentUser replaces the DACL of path with one granting
// GENERIC_ALL to the current user only. Directories pass the entry on to
// their children.
func restrictToCurrentUser(path string) error {
	user, err := windows.GetCurrentProcessToken().GetTokenUser()
	if err != nil {
		return fmt.Errorf("fileutil: current user SID for %s: %w", path, err)
	}

	var inherit uint32 = windows.NO_INHERITANCE
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		inherit = windows.CONTAINER_INHERIT_ACE | windows.OBJECT_INHERIT_ACE
	}

	acl, err := windows.ACLFromEntries([]windows.EXPLICIT_ACCESS{{
		AccessPermissions: windows.GENERIC_ALL,
		AccessMode:        windows.SET_ACCESS,
		Inheritance:       inherit,
		Trustee: windows.TRUSTEE{
			TrusteeForm:  windows.TRUSTEE_IS_SID,
			TrusteeType:  windows.TRUSTEE_IS_USER,
			TrusteeValue: windows.TrusteeValueFromSID(user.User.Sid),
		},
	}}, nil)
	if err != nil {
		return fmt.Errorf("fileutil: build ACL for %s: %w", path, err)
	}

	err = windows.SetNamedSecurityInfo(path, windows.SE_FILE_OBJECT,
		windows.SECURITY_INFORMATION(windows.DACL_SECURITY_INFORMATION|windows.PROTECTED_DACL_SECURITY_INFORMATION),
		nil, nil, acl, nil)
	if err != nil {
		return fmt.Errorf("fileutil: set DACL on %s: %w", path, err)
	}
	return nil
}

// MkdirPrivate creates dir and any missing parents with mode 0700. Every
// directory it creates is restricted to the current user; DACL failures
// are logged, not returned.
func MkdirPrivate(dir string) error {
	var created []string
	for p := filepath.Clean(dir); p != "." && p != filepath.Dir(p); p = filepath.Dir(p) {
		if _, err := os.Stat(p); err == nil {
			break
		}
		created = append(created, p)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	for _, p := range created {
		if err := restrictToCurrentUser(p); err != nil {
			slog.Warn("fileutil: best-effort DACL failed", "path", p, "err", err)
		}
	}
	return nil
}

// RestrictFile limits an existing file to the current user.
func RestrictFile(path string) error {
	if err := os.Chmod(path, 0o600); err != nil {
		return err
	}
	if err := restrictToCurrentUser(path); err != nil {
		slog.Warn("fileutil: best-effort DACL failed", "path", path, "err", err)
	}
	return nil
}
