package ravana

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrInvalidArgument is returned for argument records that cannot be
	// encoded, such as names longer than NameMax.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTruncated is returned when fewer bytes are available than a length
	// prefix or a field requires.
	ErrTruncated = errors.New("truncated message")

	// ErrMalformed is returned when bytes are present but do not decode as
	// the expected field.
	ErrMalformed = errors.New("malformed message")

	// ErrTransport wraps connect, send and receive failures.
	ErrTransport = errors.New("transport error")

	// ErrNotImplemented is returned for operation codes without a layout.
	ErrNotImplemented = errors.New("operation not implemented")
)

// RemoteError carries the POSIX-style error code returned by the server,
// verbatim.
type RemoteError struct {
	Op   Op
	Code int32
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%v: remote error %d (%s)", e.Op, e.Code, errnoName(e.Code))
}

// Errno returns the matching syscall.Errno, ignoring the sign of Code.
func (e *RemoteError) Errno() syscall.Errno {
	c := e.Code
	if c < 0 {
		c = -c
	}
	return syscall.Errno(c)
}

// Is lets errors.Is(err, syscall.ENOENT) match a remote ENOENT.
func (e *RemoteError) Is(target error) bool {
	if errno, ok := target.(syscall.Errno); ok {
		return e.Errno() == errno
	}
	return false
}

// Errno reduces err to a POSIX-style error code. Remote codes are passed
// through untouched; local failures map to negative errno values.
func Errno(err error) int32 {
	if err == nil {
		return 0
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Code
	}
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return -int32(syscall.EINVAL)
	case errors.Is(err, ErrNotImplemented):
		return -int32(syscall.ENOSYS)
	default:
		return -int32(syscall.EIO)
	}
}

func invalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}

func truncatedf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrTruncated}, args...)...)
}
