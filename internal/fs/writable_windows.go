//go:build windows

package fs

import "os"

// IsWritable reports whether the current user may create entries in dir.
func IsWritable(dir string) bool {
	f, err := os.CreateTemp(dir, ".stillsuit-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
