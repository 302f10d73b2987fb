//go:build !windows
// +build !windows

package ravana

import (
	"io/fs"
	"os"
	"syscall"

	unix "golang.org/x/sys/unix"
)

func (lf *LocalFile) extractNativeInfo(info fs.FileInfo) error {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return ErrNotSupportedByPlatform
	}
	lf.Attr.Uid = stat.Uid
	lf.Attr.Gid = stat.Gid
	lf.Attr.Links = uint32(stat.Nlink) // narrower on some platforms
	lf.Attr.Rdev = uint32(stat.Rdev)
	lf.Attr.Dev = NewID(uint64(stat.Dev))
	lf.Attr.Ino = NewID(uint64(stat.Ino))
	lf.Attr.Mode = uint32(stat.Mode)

	atim, mtim, ctim := getAMtime(*stat)
	lf.Attr.Atime = Timespec{Sec: uint64(atim.Sec), Nsec: uint64(atim.Nsec)}
	lf.Attr.Mtime = Timespec{Sec: uint64(mtim.Sec), Nsec: uint64(mtim.Nsec)}
	lf.Attr.Ctime = Timespec{Sec: uint64(ctim.Sec), Nsec: uint64(ctim.Nsec)}
	lf.Mask |= AttrUid | AttrGid | AttrAtime | AttrCtime
	return nil
}

func (lf LocalFile) setTimestamps(atime, mtime Timespec) error {
	return unix.UtimesNanoAt(unix.AT_FDCWD, lf.Path, []unix.Timespec{
		unix.NsecToTimespec(atime.Time().UnixNano()),
		unix.NsecToTimespec(mtime.Time().UnixNano()),
	}, unix.AT_SYMLINK_NOFOLLOW)
}

func (lf LocalFile) chmod(mode uint32) error {
	return unix.Fchmodat(unix.AT_FDCWD, lf.Path, mode, 0)
}

func (lf LocalFile) chown(uid, gid int) error {
	return os.Lchown(lf.Path, uid, gid)
}
