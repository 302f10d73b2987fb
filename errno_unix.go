//go:build !windows && !plan9
// +build !windows,!plan9

package ravana

import (
	"syscall"

	unix "golang.org/x/sys/unix"
)

func errnoName(code int32) string {
	if code == 0 {
		return "OK"
	}
	if code < 0 {
		code = -code
	}
	if name := unix.ErrnoName(syscall.Errno(code)); name != "" {
		return name
	}
	return syscall.Errno(code).Error()
}
