package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/lkarlslund/ravana"
	"github.com/lkarlslund/ravana/ravanatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *ravana.Client {
	t.Helper()
	dir, err := os.MkdirTemp("", "rvc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := ravana.DefaultConfig()
	cfg.BaseDir = dir
	srv, err := ravanatest.NewServer(cfg, ravana.DefaultCid)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	c, err := ravana.NewClient(cfg)
	require.NoError(t, err)
	return c
}

func TestSelftest(t *testing.T) {
	c := newTestClient(t)
	var out bytes.Buffer
	err := run(context.Background(), c, ravana.DefaultCid, []string{"selftest", "foo.txt", "bar"}, &out)
	require.NoError(t, err, out.String())

	text := out.String()
	for _, step := range []string{"create foo.txt ok", "setattr size 4096 ok", "write ok", "read ok",
		"mkdir bar ok", "symlink ok", "readlink ok", "link ok", "rename ok", "unlink foo.txt ok", "rmdir bar ok"} {
		assert.Contains(t, text, step)
	}
	assert.Contains(t, text, "requested 27, written 27")
	assert.Contains(t, text, "requested 100, read 33")

	// what is left after the sequence
	out.Reset()
	require.NoError(t, run(context.Background(), c, ravana.DefaultCid, []string{"ls"}, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[0], " link_foo.txt"))
	assert.True(t, strings.HasSuffix(lines[1], " renamed_foo.txt"))
	assert.True(t, strings.HasSuffix(lines[2], " symlink_foo.txt"))

	// running it again finds the leftovers in the way
	err = run(context.Background(), c, ravana.DefaultCid, []string{"selftest", "foo.txt", "bar"}, &out)
	assert.Error(t, err)
}

func TestPutCat(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	content := bytes.Repeat([]byte("0123456789abcdef"), ChunkSize/8+3)
	local := filepath.Join(t.TempDir(), "local.bin")
	require.NoError(t, os.WriteFile(local, content, 0644))

	var out bytes.Buffer
	require.NoError(t, run(ctx, c, ravana.DefaultCid, []string{"put", "root", "remote.bin", local}, &out))
	assert.Contains(t, out.String(), "remote.bin")

	a, err := c.Lookup(ctx, ravana.DefaultCid, ravana.Root, "remote.bin")
	require.NoError(t, err)
	assert.Equal(t, uint64(len(content)), a.Size)

	out.Reset()
	require.NoError(t, run(ctx, c, ravana.DefaultCid, []string{"cat", a.Ino.String()}, &out))
	assert.Equal(t, xxhash.Sum64(content), xxhash.Sum64(out.Bytes()))

	// times travel with the file in both directions
	lf, err := ravana.StatLocal(local)
	require.NoError(t, err)
	assert.Equal(t, lf.Attr.Mtime, a.Mtime)

	back := filepath.Join(t.TempDir(), "back.bin")
	require.NoError(t, run(ctx, c, ravana.DefaultCid, []string{"get", a.Ino.String(), back}, &out))
	got, err := os.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	lb, err := ravana.StatLocal(back)
	require.NoError(t, err)
	assert.Equal(t, lf.Attr.Mtime.Sec, lb.Attr.Mtime.Sec)
	assert.Equal(t, lf.Attr.Mode, lb.Attr.Mode)

	// symlinks go across as symlinks
	ldir := t.TempDir()
	require.NoError(t, os.Symlink("remote.bin", filepath.Join(ldir, "l")))
	require.NoError(t, run(ctx, c, ravana.DefaultCid, []string{"put", "root", "l", filepath.Join(ldir, "l")}, &out))
	l, err := c.Lookup(ctx, ravana.DefaultCid, ravana.Root, "l")
	require.NoError(t, err)
	assert.Equal(t, uint32(ravana.S_IFLNK), l.Mode&ravana.S_IFMT)

	require.NoError(t, run(ctx, c, ravana.DefaultCid, []string{"get", l.Ino.String(), filepath.Join(ldir, "l2")}, &out))
	target, err := os.Readlink(filepath.Join(ldir, "l2"))
	require.NoError(t, err)
	assert.Equal(t, "remote.bin", target)
}

func TestCommands(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	cid := ravana.DefaultCid
	var out bytes.Buffer

	require.NoError(t, run(ctx, c, cid, []string{"mkdir", "root", "d", "700"}, &out))
	d, err := c.Lookup(ctx, cid, ravana.Root, "d")
	require.NoError(t, err)
	assert.Equal(t, uint32(ravana.S_IFDIR|0700), d.Mode)

	require.NoError(t, run(ctx, c, cid, []string{"create", d.Ino.String(), "f"}, &out))
	f, err := c.Lookup(ctx, cid, d.Ino, "f")
	require.NoError(t, err)

	require.NoError(t, run(ctx, c, cid, []string{"setattr-size", f.Ino.String(), "1 KiB"}, &out))
	f, err = c.Getattr(ctx, cid, f.Ino)
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), f.Size)

	require.NoError(t, run(ctx, c, cid, []string{"mknod", "root", "null", "c", "1", "3"}, &out))
	n, err := c.Lookup(ctx, cid, ravana.Root, "null")
	require.NoError(t, err)
	assert.Equal(t, uint32(1<<20|3), n.Rdev)

	require.NoError(t, run(ctx, c, cid, []string{"symlink", "root", "l", "d/f"}, &out))
	l, err := c.Lookup(ctx, cid, ravana.Root, "l")
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, run(ctx, c, cid, []string{"readlink", l.Ino.String()}, &out))
	assert.Equal(t, "d/f\n", out.String())

	require.NoError(t, run(ctx, c, cid, []string{"link", "root", f.Ino.String(), "f2"}, &out))
	require.NoError(t, run(ctx, c, cid, []string{"rename", "root", "f2", d.Ino.String(), "f3"}, &out))
	require.NoError(t, run(ctx, c, cid, []string{"unlink", d.Ino.String(), "f3"}, &out))
	require.NoError(t, run(ctx, c, cid, []string{"unlink", d.Ino.String(), "f"}, &out))
	require.NoError(t, run(ctx, c, cid, []string{"rmdir", "root", "d"}, &out))

	out.Reset()
	require.NoError(t, run(ctx, c, cid, []string{"getattr", "root"}, &out))
	assert.Contains(t, out.String(), "ino 00000000000000001")

	err = run(ctx, c, cid, []string{"lookup", "root", "d"}, &out)
	assert.ErrorIs(t, err, syscall.ENOENT)
}

func TestRunUsage(t *testing.T) {
	c := newTestClient(t)
	var out bytes.Buffer
	assert.ErrorIs(t, run(context.Background(), c, ravana.DefaultCid, nil, &out), errUsage)
	assert.ErrorIs(t, run(context.Background(), c, ravana.DefaultCid, []string{"frobnicate"}, &out), errUsage)
	assert.ErrorIs(t, run(context.Background(), c, ravana.DefaultCid, []string{"lookup", "root"}, &out), errUsage)
	assert.ErrorIs(t, run(context.Background(), c, ravana.DefaultCid, []string{"mknod", "root", "x", "q"}, &out), errUsage)
	assert.ErrorIs(t, run(context.Background(), c, ravana.DefaultCid, []string{"getattr", "zz"}, &out), ravana.ErrBadID)
}
