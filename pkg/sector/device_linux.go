//go:build linux

package sector

import (
	"os"

	"golang.org/x/sys/unix"
)

// deviceInfo reports whether f is a block device and, if so, its logical sector size.
func deviceInfo(f *os.File) (bool, int, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return false, 0, err
	}
	if st.Mode&unix.S_IFMT != unix.S_IFBLK {
		return false, 0, nil
	}
	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
	if err != nil {
		return true, 0, nil
	}
	return true, size, nil
}
