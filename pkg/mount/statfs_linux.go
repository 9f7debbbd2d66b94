//go:build linux

package mount

import "golang.org/x/sys/unix"

// fsMagic returns the filesystem magic number of the filesystem holding path
func fsMagic(path string) (uint32, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return uint32(st.Type), nil
}
