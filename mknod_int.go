//go:build !freebsd && !windows
// +build !freebsd,!windows

package ravana

import "syscall"

func mkNod(path string, mode uint32, rdev uint64) error {
	return syscall.Mknod(path, mode, int(rdev))
}
