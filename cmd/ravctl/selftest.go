package main

import (
	"context"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/lkarlslund/ravana"
)

const selftestText = "some text to write to file."

// cmdSelftest walks a fixed sequence of calls against the channel root:
// create, lookup, resize, getattr, list, write, read, mkdir, symlink,
// readlink, link, rename, list, recreate, unlink, rmdir, list. It stops at
// the first failing call.
func cmdSelftest(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	file, dir := args[0], args[1]
	mode := ravana.Attr{Mode: 0766}

	step := func(what string, err error) error {
		if err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
		fmt.Fprintf(out, "%s ok\n", what)
		return nil
	}
	list := func() error {
		entries, err := c.ReaddirAll(ctx, cid, ravana.Root)
		if err := step("readdir", err); err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(out, "  %v %s\n", e.Fid, e.Name)
		}
		return nil
	}

	_, err := c.Create(ctx, cid, ravana.Root, file, ravana.AttrMode, mode)
	if err := step("create "+file, err); err != nil {
		return err
	}
	a, err := c.Lookup(ctx, cid, ravana.Root, file)
	if err := step("lookup "+file, err); err != nil {
		return err
	}
	fid := a.Ino

	err = c.Setattr(ctx, cid, fid, ravana.AttrSize, ravana.Attr{Size: 4096})
	if err := step("setattr size 4096", err); err != nil {
		return err
	}
	a, err = c.Getattr(ctx, cid, fid)
	if err := step("getattr", err); err != nil {
		return err
	}
	fmt.Fprintf(out, "  fid %v size %d atime %d mtime %d ctime %d\n", a.Ino, a.Size, a.Atime.Sec, a.Mtime.Sec, a.Ctime.Sec)
	if err := list(); err != nil {
		return err
	}

	n, err := c.Write(ctx, cid, fid, 4096, []byte(selftestText))
	if err := step("write", err); err != nil {
		return err
	}
	fmt.Fprintf(out, "  requested %d, written %d\n", len(selftestText), n)

	data, err := c.Read(ctx, cid, fid, 4090, 100)
	if err := step("read", err); err != nil {
		return err
	}
	fmt.Fprintf(out, "  requested 100, read %d, xxhash %016x\n", len(data), xxhash.Sum64(data))

	_, err = c.Mkdir(ctx, cid, ravana.Root, dir, ravana.AttrMode, mode)
	if err := step("mkdir "+dir, err); err != nil {
		return err
	}
	link, err := c.Symlink(ctx, cid, ravana.Root, "symlink_"+file, file, ravana.AttrMode, mode)
	if err := step("symlink", err); err != nil {
		return err
	}
	target, err := c.Readlink(ctx, cid, link.Ino)
	if err := step("readlink", err); err != nil {
		return err
	}
	if target != file {
		return fmt.Errorf("readlink: got %q, want %q", target, file)
	}
	err = c.Link(ctx, cid, ravana.Root, fid, "link_"+file)
	if err := step("link", err); err != nil {
		return err
	}
	err = c.Rename(ctx, cid, ravana.Root, file, ravana.Root, "renamed_"+file)
	if err := step("rename", err); err != nil {
		return err
	}
	if err := list(); err != nil {
		return err
	}

	_, err = c.Create(ctx, cid, ravana.Root, file, ravana.AttrMode, mode)
	if err := step("create "+file, err); err != nil {
		return err
	}
	err = c.Unlink(ctx, cid, ravana.Root, file)
	if err := step("unlink "+file, err); err != nil {
		return err
	}
	err = c.Rmdir(ctx, cid, ravana.Root, dir)
	if err := step("rmdir "+dir, err); err != nil {
		return err
	}
	return list()
}
