package ravana

import (
	"io/fs"
	"strings"
	"time"
)

// NameMax is the longest file name, in bytes, the protocol carries.
const NameMax = 256

// File type bits of Attr.Mode
const (
	S_IFMT   = 0170000
	S_IFSOCK = 0140000
	S_IFLNK  = 0120000
	S_IFREG  = 0100000
	S_IFBLK  = 0060000
	S_IFDIR  = 0040000
	S_IFCHR  = 0020000
	S_IFIFO  = 0010000
)

// AttrMask declares which attribute fields a create or setattr call applies.
// The receiver ignores fields whose bit is clear.
type AttrMask uint32

const (
	AttrMode AttrMask = 1 << iota
	AttrUid
	AttrGid
	AttrSize
	AttrAtime
	AttrMtime
	AttrCtime
)

var attrMaskNames = []string{"MODE", "UID", "GID", "SIZE", "ATIME", "MTIME", "CTIME"}

func (m AttrMask) Has(bits AttrMask) bool {
	return m&bits == bits
}

func (m AttrMask) String() string {
	if m == 0 {
		return "0"
	}
	var parts []string
	for i, name := range attrMaskNames {
		if m&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Timespec is a (seconds, nanoseconds) pair, sent in that order.
type Timespec struct {
	Sec  uint64
	Nsec uint64
}

func TimespecOf(t time.Time) Timespec {
	return Timespec{Sec: uint64(t.Unix()), Nsec: uint64(t.Nanosecond())}
}

func (ts Timespec) Time() time.Time {
	return time.Unix(int64(ts.Sec), int64(ts.Nsec))
}

// Attr is the POSIX attribute record. Field order matches the wire order.
type Attr struct {
	Mode  uint32
	Uid   uint32
	Gid   uint32
	Links uint32
	Size  uint64 // for directories, the number of entries
	Dev   Cid
	Ino   Fid
	Rdev  uint32
	Atime Timespec
	Ctime Timespec
	Mtime Timespec
}

func (a Attr) IsDir() bool {
	return a.Mode&S_IFMT == S_IFDIR
}

func (a Attr) AtimeTime() time.Time { return a.Atime.Time() }
func (a Attr) CtimeTime() time.Time { return a.Ctime.Time() }
func (a Attr) MtimeTime() time.Time { return a.Mtime.Time() }

// FileMode converts Mode into Go's simplified file mode.
func (a Attr) FileMode() fs.FileMode {
	m := fs.FileMode(a.Mode & 0777)
	switch a.Mode & S_IFMT {
	case S_IFDIR:
		m |= fs.ModeDir
	case S_IFLNK:
		m |= fs.ModeSymlink
	case S_IFSOCK:
		m |= fs.ModeSocket
	case S_IFIFO:
		m |= fs.ModeNamedPipe
	case S_IFBLK:
		m |= fs.ModeDevice
	case S_IFCHR:
		m |= fs.ModeDevice | fs.ModeCharDevice
	}
	if a.Mode&04000 != 0 {
		m |= fs.ModeSetuid
	}
	if a.Mode&02000 != 0 {
		m |= fs.ModeSetgid
	}
	if a.Mode&01000 != 0 {
		m |= fs.ModeSticky
	}
	return m
}

// Dirent is one readdir entry. Whence resumes a listing after this entry.
type Dirent struct {
	Name   string
	Fid    Fid
	Whence uint64
}

func checkName(what, name string) error {
	if len(name) > NameMax {
		return invalidArgf("%s is %d bytes, longer than %d", what, len(name), NameMax)
	}
	return nil
}
