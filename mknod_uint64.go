//go:build freebsd
// +build freebsd

package ravana

import "syscall"

func mkNod(path string, mode uint32, rdev uint64) error {
	return syscall.Mknod(path, mode, rdev)
}
