package ravana

import (
	"fmt"
)

// Request is one operation's argument record. The set of implementations is
// closed: every variant below knows its op code and its own field layout.
type Request interface {
	Op() Op
	Channel() Cid
	header() *Header
	encodeArgs(e *encoder)
	decodeArgs(d *decoder)
}

// Header fields shared by every request.
type Header struct {
	Cid Cid
}

func (h Header) Channel() Cid { return h.Cid }

type LookupArgs struct {
	Header
	Dir  Fid
	Name string
}

// CreateArgs is also the layout for mknod and mkdir.
type CreateArgs struct {
	Header
	Parent Fid
	Mask   AttrMask
	Name   string
	Attr   Attr
}

type MknodArgs CreateArgs

type MkdirArgs CreateArgs

type SymlinkArgs struct {
	Header
	Parent Fid
	Mask   AttrMask
	Name   string
	Attr   Attr
	Target string
}

type SetattrArgs struct {
	Header
	Fid  Fid
	Mask AttrMask
	Attr Attr
}

type GetattrArgs struct {
	Header
	Fid Fid
}

type ReadlinkArgs struct {
	Header
	Fid Fid
}

type ReaddirArgs struct {
	Header
	Dir   Fid
	Index uint64
}

type ReadArgs struct {
	Header
	Fid    Fid
	Offset uint64
	Size   int64
}

// WriteArgs carries Data after the fixed fields; the size sent ahead of it
// is always len(Data).
type WriteArgs struct {
	Header
	Fid    Fid
	Offset uint64
	Data   []byte
}

// UnlinkArgs is also the layout for rmdir.
type UnlinkArgs struct {
	Header
	Parent Fid
	Name   string
}

type RmdirArgs UnlinkArgs

type LinkArgs struct {
	Header
	Parent Fid
	Target Fid
	Name   string
}

type RenameArgs struct {
	Header
	OldDir  Fid
	OldName string
	NewDir  Fid
	NewName string
}

func (*LookupArgs) Op() Op   { return OpLookup }
func (*CreateArgs) Op() Op   { return OpCreate }
func (*MknodArgs) Op() Op    { return OpMknod }
func (*MkdirArgs) Op() Op    { return OpMkdir }
func (*SymlinkArgs) Op() Op  { return OpSymlink }
func (*SetattrArgs) Op() Op  { return OpSetattr }
func (*GetattrArgs) Op() Op  { return OpGetattr }
func (*ReadlinkArgs) Op() Op { return OpReadlink }
func (*ReaddirArgs) Op() Op  { return OpReaddir }
func (*ReadArgs) Op() Op     { return OpRead }
func (*WriteArgs) Op() Op    { return OpWrite }
func (*UnlinkArgs) Op() Op   { return OpUnlink }
func (*RmdirArgs) Op() Op    { return OpRmdir }
func (*LinkArgs) Op() Op     { return OpLink }
func (*RenameArgs) Op() Op   { return OpRename }

func (a *LookupArgs) encodeArgs(e *encoder) {
	e.id(a.Dir)
	e.name("name", a.Name)
}

func (a *LookupArgs) decodeArgs(d *decoder) {
	a.Dir = d.id("dir")
	a.Name = d.name("name")
}

func (a *CreateArgs) encodeArgs(e *encoder) {
	e.id(a.Parent)
	e.u32(uint32(a.Mask))
	e.name("name", a.Name)
	e.attr(&a.Attr)
}

func (a *CreateArgs) decodeArgs(d *decoder) {
	a.Parent = d.id("parent")
	a.Mask = AttrMask(d.u32("mask"))
	a.Name = d.name("name")
	a.Attr = d.attr()
}

func (a *MknodArgs) encodeArgs(e *encoder) { (*CreateArgs)(a).encodeArgs(e) }
func (a *MknodArgs) decodeArgs(d *decoder) { (*CreateArgs)(a).decodeArgs(d) }
func (a *MkdirArgs) encodeArgs(e *encoder) { (*CreateArgs)(a).encodeArgs(e) }
func (a *MkdirArgs) decodeArgs(d *decoder) { (*CreateArgs)(a).decodeArgs(d) }

func (a *SymlinkArgs) encodeArgs(e *encoder) {
	e.id(a.Parent)
	e.u32(uint32(a.Mask))
	e.name("name", a.Name)
	e.attr(&a.Attr)
	e.name("link target", a.Target)
}

func (a *SymlinkArgs) decodeArgs(d *decoder) {
	a.Parent = d.id("parent")
	a.Mask = AttrMask(d.u32("mask"))
	a.Name = d.name("name")
	a.Attr = d.attr()
	a.Target = d.name("target")
}

func (a *SetattrArgs) encodeArgs(e *encoder) {
	e.id(a.Fid)
	e.u32(uint32(a.Mask))
	e.attr(&a.Attr)
}

func (a *SetattrArgs) decodeArgs(d *decoder) {
	a.Fid = d.id("fid")
	a.Mask = AttrMask(d.u32("mask"))
	a.Attr = d.attr()
}

func (a *GetattrArgs) encodeArgs(e *encoder) { e.id(a.Fid) }
func (a *GetattrArgs) decodeArgs(d *decoder) { a.Fid = d.id("fid") }

func (a *ReadlinkArgs) encodeArgs(e *encoder) { e.id(a.Fid) }
func (a *ReadlinkArgs) decodeArgs(d *decoder) { a.Fid = d.id("fid") }

func (a *ReaddirArgs) encodeArgs(e *encoder) {
	e.id(a.Dir)
	e.u64(a.Index)
}

func (a *ReaddirArgs) decodeArgs(d *decoder) {
	a.Dir = d.id("dir")
	a.Index = d.u64("index")
}

func (a *ReadArgs) encodeArgs(e *encoder) {
	e.id(a.Fid)
	e.u64(a.Offset)
	e.i64(a.Size)
}

func (a *ReadArgs) decodeArgs(d *decoder) {
	a.Fid = d.id("fid")
	a.Offset = d.u64("offset")
	a.Size = d.i64("size")
}

func (a *WriteArgs) encodeArgs(e *encoder) {
	e.id(a.Fid)
	e.u64(a.Offset)
	e.u64(uint64(len(a.Data)))
	e.blob(a.Data)
}

func (a *WriteArgs) decodeArgs(d *decoder) {
	a.Fid = d.id("fid")
	a.Offset = d.u64("offset")
	size := d.u64("size")
	a.Data = d.blob("data")
	if d.err == nil && uint64(len(a.Data)) != size {
		d.err = fmt.Errorf("%w: write carries %d bytes, size says %d", ErrMalformed, len(a.Data), size)
	}
}

func (a *UnlinkArgs) encodeArgs(e *encoder) {
	e.id(a.Parent)
	e.name("name", a.Name)
}

func (a *UnlinkArgs) decodeArgs(d *decoder) {
	a.Parent = d.id("parent")
	a.Name = d.name("name")
}

func (a *RmdirArgs) encodeArgs(e *encoder) { (*UnlinkArgs)(a).encodeArgs(e) }
func (a *RmdirArgs) decodeArgs(d *decoder) { (*UnlinkArgs)(a).decodeArgs(d) }

func (a *LinkArgs) encodeArgs(e *encoder) {
	e.id(a.Parent)
	e.id(a.Target)
	e.name("name", a.Name)
}

func (a *LinkArgs) decodeArgs(d *decoder) {
	a.Parent = d.id("parent")
	a.Target = d.id("target")
	a.Name = d.name("name")
}

func (a *RenameArgs) encodeArgs(e *encoder) {
	e.id(a.OldDir)
	e.name("old name", a.OldName)
	e.id(a.NewDir)
	e.name("new name", a.NewName)
}

func (a *RenameArgs) decodeArgs(d *decoder) {
	a.OldDir = d.id("old dir")
	a.OldName = d.name("old name")
	a.NewDir = d.id("new dir")
	a.NewName = d.name("new name")
}

// EncodeRequest packs op code, cid and the operation fields of req.
func EncodeRequest(req Request) ([]byte, error) {
	if req == nil {
		return nil, invalidArgf("nil request")
	}
	e := newEncoder()
	e.u32(uint32(req.Op()))
	e.id(req.Channel())
	req.encodeArgs(e)
	b, err := e.bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding %v: %w", req.Op(), err)
	}
	return b, nil
}

// newRequest returns an empty argument record for op.
func newRequest(op Op) (Request, error) {
	switch op {
	case OpLookup:
		return &LookupArgs{}, nil
	case OpCreate:
		return &CreateArgs{}, nil
	case OpMknod:
		return &MknodArgs{}, nil
	case OpMkdir:
		return &MkdirArgs{}, nil
	case OpSymlink:
		return &SymlinkArgs{}, nil
	case OpSetattr:
		return &SetattrArgs{}, nil
	case OpGetattr:
		return &GetattrArgs{}, nil
	case OpReadlink:
		return &ReadlinkArgs{}, nil
	case OpReaddir:
		return &ReaddirArgs{}, nil
	case OpRead:
		return &ReadArgs{}, nil
	case OpWrite:
		return &WriteArgs{}, nil
	case OpUnlink:
		return &UnlinkArgs{}, nil
	case OpRmdir:
		return &RmdirArgs{}, nil
	case OpLink:
		return &LinkArgs{}, nil
	case OpRename:
		return &RenameArgs{}, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrNotImplemented, op)
}

// DecodeRequest is the inverse of EncodeRequest, for servers.
func DecodeRequest(payload []byte) (Request, error) {
	d := newDecoder(payload)
	op := Op(d.u32("op"))
	cid := d.id("cid")
	if d.err != nil {
		return nil, d.err
	}
	req, err := newRequest(op)
	if err != nil {
		return nil, err
	}
	req.header().Cid = cid
	req.decodeArgs(d)
	if d.err != nil {
		return nil, fmt.Errorf("decoding %v: %w", op, d.err)
	}
	if d.rest() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %v", ErrMalformed, d.rest(), op)
	}
	return req, nil
}

func (h *Header) header() *Header { return h }
