//go:build !windows
// +build !windows

package ravana

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0640))
	require.NoError(t, os.Chmod(path, 0640))

	lf, err := StatLocal(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(S_IFREG|0640), lf.Attr.Mode)
	assert.Equal(t, uint64(5), lf.Attr.Size)
	assert.Equal(t, uint32(os.Getuid()), lf.Attr.Uid)
	assert.True(t, lf.Mask.Has(AttrMode|AttrSize|AttrMtime|AttrUid|AttrGid))
	assert.Equal(t, fs.FileMode(0640), lf.Attr.FileMode())

	require.NoError(t, os.Symlink("f", filepath.Join(dir, "l")))
	lf, err = StatLocal(filepath.Join(dir, "l"))
	require.NoError(t, err)
	assert.Equal(t, uint32(S_IFLNK), lf.Attr.Mode&S_IFMT)
	assert.Equal(t, "f", lf.LinkTo)

	_, err = StatLocal(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestModeFromFileMode(t *testing.T) {
	for _, mode := range []uint32{S_IFREG | 0644, S_IFDIR | 0755, S_IFLNK | 0777, S_IFIFO | 0600,
		S_IFSOCK | 0700, S_IFCHR | 0620, S_IFBLK | 0660, S_IFREG | 04755, S_IFDIR | 01777} {
		assert.Equal(t, mode, ModeFromFileMode(Attr{Mode: mode}.FileMode()), "%o", mode)
	}
}

func TestLocalCreateApply(t *testing.T) {
	dir := t.TempDir()

	reg := LocalFile{Path: filepath.Join(dir, "reg")}
	require.NoError(t, reg.Create(Attr{Mode: S_IFREG | 0644}, ""))
	mtime := TimespecOf(time.Date(2020, 1, 2, 3, 4, 5, 6000, time.UTC))
	require.NoError(t, reg.Apply(Attr{Mode: S_IFREG | 0600, Mtime: mtime, Atime: mtime}, AttrMode|AttrMtime|AttrAtime))

	lf, err := StatLocal(reg.Path)
	require.NoError(t, err)
	assert.Equal(t, uint32(S_IFREG|0600), lf.Attr.Mode)
	assert.Equal(t, mtime.Sec, lf.Attr.Mtime.Sec)

	link := LocalFile{Path: filepath.Join(dir, "link")}
	require.NoError(t, link.Create(Attr{Mode: S_IFLNK | 0777}, "reg"))
	target, err := os.Readlink(link.Path)
	require.NoError(t, err)
	assert.Equal(t, "reg", target)

	fifo := LocalFile{Path: filepath.Join(dir, "fifo")}
	require.NoError(t, fifo.Create(Attr{Mode: S_IFIFO | 0600}, ""))
	lf, err = StatLocal(fifo.Path)
	require.NoError(t, err)
	assert.Equal(t, uint32(S_IFIFO), lf.Attr.Mode&S_IFMT)

	sub := LocalFile{Path: filepath.Join(dir, "sub")}
	require.NoError(t, sub.Create(Attr{Mode: S_IFDIR | 0755}, ""))
	lf, err = StatLocal(sub.Path)
	require.NoError(t, err)
	assert.True(t, lf.Attr.IsDir())
}
