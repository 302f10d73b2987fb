//go:build windows || plan9
// +build windows plan9

package ravana

import "syscall"

func errnoName(code int32) string {
	if code == 0 {
		return "OK"
	}
	if code < 0 {
		code = -code
	}
	return syscall.Errno(code).Error()
}
