package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/lkarlslund/ravana"
)

// ChunkSize is how much cat and put move per call.
const ChunkSize = 64 * 1024

var errUsage = errors.New("usage")

type command struct {
	name  string
	usage string
	args  int // minimum
	run   func(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error
}

var commands = []command{
	{"lookup", "<dir fid> <name>", 2, cmdLookup},
	{"getattr", "<fid>", 1, cmdGetattr},
	{"setattr-size", "<fid> <size>", 2, cmdSetattrSize},
	{"create", "<parent fid> <name> [octal mode]", 2, cmdCreate},
	{"mkdir", "<parent fid> <name> [octal mode]", 2, cmdMkdir},
	{"mknod", "<parent fid> <name> <c|b|p|s> [major minor]", 3, cmdMknod},
	{"symlink", "<parent fid> <name> <target>", 3, cmdSymlink},
	{"readlink", "<fid>", 1, cmdReadlink},
	{"link", "<parent fid> <target fid> <name>", 3, cmdLink},
	{"unlink", "<parent fid> <name>", 2, cmdUnlink},
	{"rmdir", "<parent fid> <name>", 2, cmdRmdir},
	{"rename", "<old dir fid> <old name> <new dir fid> <new name>", 4, cmdRename},
	{"ls", "[dir fid]", 0, cmdLs},
	{"cat", "<fid>", 1, cmdCat},
	{"put", "<parent fid> <name> <local file>", 3, cmdPut},
	{"get", "<fid> <local file>", 2, cmdGet},
	{"selftest", "<file name> <dir name>", 2, cmdSelftest},
}

func run(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command", errUsage)
	}
	for _, cmd := range commands {
		if cmd.name != strings.ToLower(args[0]) {
			continue
		}
		if len(args)-1 < cmd.args {
			return fmt.Errorf("%w: %s %s", errUsage, cmd.name, cmd.usage)
		}
		return cmd.run(ctx, c, cid, args[1:], out)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func parseFid(s string) (ravana.Fid, error) {
	if strings.EqualFold(s, "root") {
		return ravana.Root, nil
	}
	return ravana.ParseID(s)
}

func parseMode(args []string, i int, def uint32) (uint32, error) {
	if len(args) <= i {
		return def, nil
	}
	m, err := strconv.ParseUint(args[i], 8, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: mode %q", errUsage, args[i])
	}
	return uint32(m), nil
}

func printAttr(out io.Writer, a ravana.Attr) {
	fmt.Fprintf(out, "ino %v mode %v (%o) links %d uid %d gid %d size %v\n",
		a.Ino, a.FileMode(), a.Mode, a.Links, a.Uid, a.Gid, humanize.Bytes(a.Size))
	fmt.Fprintf(out, "atime %v\nmtime %v\nctime %v\n",
		a.AtimeTime().UTC(), a.MtimeTime().UTC(), a.CtimeTime().UTC())
}

func cmdLookup(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	dir, err := parseFid(args[0])
	if err != nil {
		return err
	}
	a, err := c.Lookup(ctx, cid, dir, args[1])
	if err != nil {
		return err
	}
	printAttr(out, a)
	return nil
}

func cmdGetattr(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	fid, err := parseFid(args[0])
	if err != nil {
		return err
	}
	a, err := c.Getattr(ctx, cid, fid)
	if err != nil {
		return err
	}
	printAttr(out, a)
	return nil
}

func cmdSetattrSize(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	fid, err := parseFid(args[0])
	if err != nil {
		return err
	}
	size, err := humanize.ParseBytes(args[1])
	if err != nil {
		return fmt.Errorf("%w: size %q", errUsage, args[1])
	}
	if err = c.Setattr(ctx, cid, fid, ravana.AttrSize, ravana.Attr{Size: size}); err != nil {
		return err
	}
	fmt.Fprintf(out, "size of %v set to %v\n", fid, humanize.Bytes(size))
	return nil
}

type makeFunc func(ctx context.Context, cid ravana.Cid, parent ravana.Fid, name string, mask ravana.AttrMask, attr ravana.Attr) (ravana.Attr, error)

func cmdMake(ctx context.Context, mk makeFunc, cid ravana.Cid, args []string, def uint32, out io.Writer) error {
	parent, err := parseFid(args[0])
	if err != nil {
		return err
	}
	mode, err := parseMode(args, 2, def)
	if err != nil {
		return err
	}
	a, err := mk(ctx, cid, parent, args[1], ravana.AttrMode, ravana.Attr{Mode: mode})
	if err != nil {
		return err
	}
	printAttr(out, a)
	return nil
}

func cmdCreate(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	return cmdMake(ctx, c.Create, cid, args, 0644, out)
}

func cmdMkdir(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	return cmdMake(ctx, c.Mkdir, cid, args, 0755, out)
}

func cmdMknod(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	parent, err := parseFid(args[0])
	if err != nil {
		return err
	}
	attr := ravana.Attr{Mode: 0644}
	switch args[2] {
	case "c":
		attr.Mode |= ravana.S_IFCHR
	case "b":
		attr.Mode |= ravana.S_IFBLK
	case "p":
		attr.Mode |= ravana.S_IFIFO
	case "s":
		attr.Mode |= ravana.S_IFSOCK
	default:
		return fmt.Errorf("%w: node type %q", errUsage, args[2])
	}
	if len(args) >= 5 {
		major, err1 := strconv.ParseUint(args[3], 10, 12)
		minor, err2 := strconv.ParseUint(args[4], 10, 20)
		if err1 != nil || err2 != nil {
			return fmt.Errorf("%w: device %s %s", errUsage, args[3], args[4])
		}
		// major in the upper 12 bits, minor in the lower 20
		attr.Rdev = uint32(major<<20 | minor)
	}
	a, err := c.Mknod(ctx, cid, parent, args[1], ravana.AttrMode, attr)
	if err != nil {
		return err
	}
	printAttr(out, a)
	return nil
}

func cmdSymlink(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	parent, err := parseFid(args[0])
	if err != nil {
		return err
	}
	a, err := c.Symlink(ctx, cid, parent, args[1], args[2], 0, ravana.Attr{})
	if err != nil {
		return err
	}
	printAttr(out, a)
	return nil
}

func cmdReadlink(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	fid, err := parseFid(args[0])
	if err != nil {
		return err
	}
	target, err := c.Readlink(ctx, cid, fid)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, target)
	return nil
}

func cmdLink(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	parent, err := parseFid(args[0])
	if err != nil {
		return err
	}
	target, err := parseFid(args[1])
	if err != nil {
		return err
	}
	return c.Link(ctx, cid, parent, target, args[2])
}

func cmdUnlink(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	parent, err := parseFid(args[0])
	if err != nil {
		return err
	}
	return c.Unlink(ctx, cid, parent, args[1])
}

func cmdRmdir(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	parent, err := parseFid(args[0])
	if err != nil {
		return err
	}
	return c.Rmdir(ctx, cid, parent, args[1])
}

func cmdRename(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	oldDir, err := parseFid(args[0])
	if err != nil {
		return err
	}
	newDir, err := parseFid(args[2])
	if err != nil {
		return err
	}
	return c.Rename(ctx, cid, oldDir, args[1], newDir, args[3])
}

func cmdLs(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	dir := ravana.Root
	if len(args) > 0 {
		var err error
		if dir, err = parseFid(args[0]); err != nil {
			return err
		}
	}
	entries, err := c.ReaddirAll(ctx, cid, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%-34v %s\n", e.Fid, e.Name)
	}
	return nil
}

func cmdCat(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	fid, err := parseFid(args[0])
	if err != nil {
		return err
	}
	h := xxhash.New()
	w := io.MultiWriter(out, h)
	var offset uint64
	for {
		data, err := c.Read(ctx, cid, fid, offset, ChunkSize)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			break
		}
		if _, err = w.Write(data); err != nil {
			return err
		}
		offset += uint64(len(data))
	}
	ravana.Logger.Info().Msgf("Read %v from %v, xxhash %016x", humanize.Bytes(offset), fid, h.Sum64())
	return nil
}

// cmdPut copies a local regular file or symlink into parent, carrying its
// permission bits and times along.
func cmdPut(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	parent, err := parseFid(args[0])
	if err != nil {
		return err
	}
	lf, err := ravana.StatLocal(args[2])
	if err != nil {
		return err
	}
	switch lf.Attr.Mode & ravana.S_IFMT {
	case ravana.S_IFLNK:
		a, err := c.Symlink(ctx, cid, parent, args[1], lf.LinkTo, 0, ravana.Attr{})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%v %s -> %s\n", a.Ino, args[1], lf.LinkTo)
		return nil
	case ravana.S_IFREG:
	default:
		return fmt.Errorf("%w: %s is not a regular file or symlink", errUsage, args[2])
	}

	f, err := os.Open(lf.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	a, err := c.Create(ctx, cid, parent, args[1], ravana.AttrMode, lf.Attr)
	if err != nil {
		return err
	}
	h := xxhash.New()
	buf := make([]byte, ChunkSize)
	var offset uint64
	for {
		n, rerr := io.ReadFull(f, buf)
		if n > 0 {
			written, err := c.Write(ctx, cid, a.Ino, offset, buf[:n])
			if err != nil {
				return err
			}
			if written != int64(n) {
				return fmt.Errorf("short write at offset %d: %d of %d bytes", offset, written, n)
			}
			h.Write(buf[:n])
			offset += uint64(n)
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	if err = c.Setattr(ctx, cid, a.Ino, lf.Mask&(ravana.AttrAtime|ravana.AttrMtime), lf.Attr); err != nil {
		return err
	}
	fmt.Fprintf(out, "%v %s %v xxhash %016x\n", a.Ino, args[1], humanize.Bytes(offset), h.Sum64())
	return nil
}

// cmdGet materialises fid at a local path: regular file contents, symlink
// targets and special nodes, then its permission bits and times.
func cmdGet(ctx context.Context, c *ravana.Client, cid ravana.Cid, args []string, out io.Writer) error {
	fid, err := parseFid(args[0])
	if err != nil {
		return err
	}
	a, err := c.Getattr(ctx, cid, fid)
	if err != nil {
		return err
	}
	lf := ravana.LocalFile{Path: args[1]}

	var target string
	if a.Mode&ravana.S_IFMT == ravana.S_IFLNK {
		if target, err = c.Readlink(ctx, cid, fid); err != nil {
			return err
		}
	}
	if err = lf.Create(a, target); err != nil {
		return err
	}
	if a.Mode&ravana.S_IFMT == ravana.S_IFREG {
		f, err := os.OpenFile(lf.Path, os.O_WRONLY|os.O_TRUNC, 0)
		if err != nil {
			return err
		}
		err = cmdCat(ctx, c, cid, args[:1], f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	if a.Mode&ravana.S_IFMT == ravana.S_IFLNK {
		return nil
	}
	if err = lf.Apply(a, ravana.AttrMode|ravana.AttrAtime|ravana.AttrMtime); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %v %v\n", lf.Path, a.FileMode(), humanize.Bytes(a.Size))
	return nil
}
