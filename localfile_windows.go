package ravana

import (
	"io/fs"
	"os"
	"syscall"
	"time"
)

func timeOf(ft syscall.Filetime) time.Time {
	return time.Unix(0, ft.Nanoseconds())
}

func (lf *LocalFile) extractNativeInfo(info fs.FileInfo) error {
	native, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return ErrNotSupportedByPlatform
	}
	lf.Attr.Atime = TimespecOf(timeOf(native.LastAccessTime))
	lf.Attr.Ctime = TimespecOf(timeOf(native.CreationTime))
	lf.Mask |= AttrAtime | AttrCtime
	return nil
}

func (lf LocalFile) setTimestamps(atime, mtime Timespec) error {
	return os.Chtimes(lf.Path, atime.Time(), mtime.Time())
}

func (lf LocalFile) chmod(mode uint32) error {
	return os.Chmod(lf.Path, fs.FileMode(mode&0777))
}

func (lf LocalFile) chown(uid, gid int) error {
	return ErrNotSupportedByPlatform
}

func mkNod(path string, mode uint32, rdev uint64) error {
	return ErrNotSupportedByPlatform
}
