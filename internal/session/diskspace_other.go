//go:build !linux && !darwin && !freebsd && !windows

package session

func freeSpace(string) (uint64, error) {
	return 0, ErrDiskSpaceUnknown
}
