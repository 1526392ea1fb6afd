//go:build !windows

package space

import "golang.org/x/sys/unix"

// Available returns the bytes available to unprivileged users on the volume holding path.
func Available(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil // #nosec G115 - block size is positive
}
