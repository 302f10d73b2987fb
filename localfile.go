package ravana

import (
	"errors"
	"io/fs"
	"os"
)

var ErrNotSupportedByPlatform = errors.New("not supported on this platform")

// LocalFile is a file on the local filesystem described in protocol terms,
// for tools copying between a channel and local disk.
type LocalFile struct {
	Path   string
	Attr   Attr
	Mask   AttrMask // fields the platform could provide
	LinkTo string
}

// StatLocal describes path without following a final symlink.
func StatLocal(path string) (LocalFile, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return LocalFile{}, err
	}
	lf := LocalFile{
		Path: path,
		Attr: Attr{
			Mode:  ModeFromFileMode(info.Mode()),
			Size:  uint64(info.Size()),
			Links: 1,
			Mtime: TimespecOf(info.ModTime()),
		},
		Mask: AttrMode | AttrSize | AttrMtime,
	}

	switch m := info.Mode(); {
	case m&fs.ModeSymlink != 0:
		if lf.LinkTo, err = os.Readlink(path); err != nil {
			Logger.Error().Msgf("Error reading link to %v: %v", path, err)
		} else {
			Logger.Trace().Msgf("Detected %v as symlink to %v", path, lf.LinkTo)
		}
	case m&fs.ModeDir != 0:
		Logger.Trace().Msgf("Detected %v as directory", path)
	case m&fs.ModeDevice != 0:
		Logger.Trace().Msgf("Detected %v as device", path)
	case m&(fs.ModeSocket|fs.ModeNamedPipe) != 0:
		Logger.Trace().Msgf("Detected %v as socket or FIFO", path)
	default:
		Logger.Trace().Msgf("Detected %v as regular file", path)
	}

	if err := lf.extractNativeInfo(info); err != nil {
		Logger.Debug().Msgf("No native metadata for %v: %v", path, err)
	}
	return lf, nil
}

// ModeFromFileMode is the inverse of Attr.FileMode.
func ModeFromFileMode(m fs.FileMode) uint32 {
	mode := uint32(m.Perm())
	switch {
	case m&fs.ModeDir != 0:
		mode |= S_IFDIR
	case m&fs.ModeSymlink != 0:
		mode |= S_IFLNK
	case m&fs.ModeSocket != 0:
		mode |= S_IFSOCK
	case m&fs.ModeNamedPipe != 0:
		mode |= S_IFIFO
	case m&fs.ModeCharDevice != 0:
		mode |= S_IFCHR
	case m&fs.ModeDevice != 0:
		mode |= S_IFBLK
	default:
		mode |= S_IFREG
	}
	if m&fs.ModeSetuid != 0 {
		mode |= 04000
	}
	if m&fs.ModeSetgid != 0 {
		mode |= 02000
	}
	if m&fs.ModeSticky != 0 {
		mode |= 01000
	}
	return mode
}

// Create makes lf.Path with the file type of attr. Regular files come out
// empty; symlinks point at linkTo.
func (lf LocalFile) Create(attr Attr, linkTo string) error {
	switch attr.Mode & S_IFMT {
	case S_IFLNK:
		return os.Symlink(linkTo, lf.Path)
	case S_IFDIR:
		return os.Mkdir(lf.Path, fs.FileMode(attr.Mode&0777))
	case S_IFCHR, S_IFBLK, S_IFIFO, S_IFSOCK:
		return mkNod(lf.Path, attr.Mode&S_IFMT|attr.Mode&0777, uint64(attr.Rdev))
	}
	f, err := os.Create(lf.Path)
	if err != nil {
		return err
	}
	return f.Close()
}

// Apply sets the owner, permission and time fields of attr selected by mask
// on lf.Path. Failures are logged and the first one is returned.
func (lf LocalFile) Apply(attr Attr, mask AttrMask) error {
	Logger.Debug().Msgf("Updating metadata for %s", lf.Path)
	var first error
	keep := func(what string, err error) {
		if err == nil {
			return
		}
		if !errors.Is(err, ErrNotSupportedByPlatform) {
			Logger.Error().Msgf("Error changing %s for %s: %v", what, lf.Path, err)
		}
		if first == nil {
			first = err
		}
	}

	if mask&(AttrUid|AttrGid) != 0 {
		uid, gid := -1, -1
		if mask.Has(AttrUid) {
			uid = int(attr.Uid)
		}
		if mask.Has(AttrGid) {
			gid = int(attr.Gid)
		}
		keep("owner", lf.chown(uid, gid))
	}
	if mask.Has(AttrMode) && attr.Mode&S_IFMT != S_IFLNK {
		keep("mode", lf.chmod(attr.Mode&07777))
	}
	if mask&(AttrAtime|AttrMtime) != 0 {
		atime, mtime := lf.Attr.Atime, lf.Attr.Mtime
		if mask.Has(AttrAtime) {
			atime = attr.Atime
		}
		if mask.Has(AttrMtime) {
			mtime = attr.Mtime
		}
		keep("times", lf.setTimestamps(atime, mtime))
	}
	return first
}
