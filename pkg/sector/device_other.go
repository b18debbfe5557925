//go:build !linux

package sector

import "os"

// deviceInfo only recognizes block devices on Linux; elsewhere every path is an image file.
func deviceInfo(f *os.File) (bool, int, error) {
	return false, 0, nil
}
