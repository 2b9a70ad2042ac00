//go:build unix

package resolver

import "golang.org/x/sys/unix"

// pathExists reports whether path exists, following symlinks.
func pathExists(path string) bool {
	return unix.Access(path, unix.F_OK) == nil
}
