//go:build !unix

package catalog

import (
	"errors"
)

// StatfsFreeSpace is not supported on this platform.
func StatfsFreeSpace(dir string) (uint64, error) {
	return 0, errors.New("free space probe not supported on this platform")
}
