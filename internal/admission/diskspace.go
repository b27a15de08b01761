package admission

import "golang.org/x/sys/unix"

// FreeBytes reports the free space available to an unprivileged user on
// the filesystem containing path, per spec.md §4.7's disk-space precheck.
func FreeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
