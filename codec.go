package ravana

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ugorji/go/codec"
)

// mh writes []byte as msgpack bin (the 2.0 format types) so names and buffers
// match what the server packs with msgpack_pack_bin.
var mh = func() *codec.MsgpackHandle {
	var h codec.MsgpackHandle
	h.WriteExt = true
	return &h
}()

// encoder appends msgpack primitives in call order. The first error sticks
// and turns every later call into a no-op.
type encoder struct {
	buf []byte
	enc *codec.Encoder
	err error
}

func newEncoder() *encoder {
	e := &encoder{}
	e.enc = codec.NewEncoderBytes(&e.buf, mh)
	return e
}

func (e *encoder) put(v any) {
	if e.err != nil {
		return
	}
	e.err = e.enc.Encode(v)
}

func (e *encoder) u32(v uint32) { e.put(v) }
func (e *encoder) i32(v int32)  { e.put(v) }
func (e *encoder) u64(v uint64) { e.put(v) }
func (e *encoder) i64(v int64)  { e.put(v) }

func (e *encoder) id(v ID) {
	e.u64(v.Lo)
	e.u64(v.Hi)
}

// blob emits a bin record of exactly len(b) bytes. Empty buffers still
// produce a zero-length bin rather than nil.
func (e *encoder) blob(b []byte) {
	if b == nil {
		b = []byte{}
	}
	e.put(b)
}

func (e *encoder) name(what, s string) {
	if e.err != nil {
		return
	}
	if err := checkName(what, s); err != nil {
		e.err = err
		return
	}
	e.blob([]byte(s))
}

func (e *encoder) timespec(ts Timespec) {
	e.u64(ts.Sec)
	e.u64(ts.Nsec)
}

func (e *encoder) attr(a *Attr) {
	e.u32(a.Mode)
	e.u32(a.Uid)
	e.u32(a.Gid)
	e.u32(a.Links)
	e.u64(a.Size)
	e.id(a.Dev)
	e.id(a.Ino)
	e.u32(a.Rdev)
	e.timespec(a.Atime)
	e.timespec(a.Ctime)
	e.timespec(a.Mtime)
}

func (e *encoder) bytes() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.buf, nil
}

// decoder reads msgpack primitives in call order from a bounded payload.
// Like encoder, the first error sticks.
type decoder struct {
	r   *bytes.Reader
	dec *codec.Decoder
	err error
}

func newDecoder(payload []byte) *decoder {
	r := bytes.NewReader(payload)
	return &decoder{
		r:   r,
		dec: codec.NewDecoder(r, mh),
	}
}

func (d *decoder) get(field string, v any) {
	if d.err != nil {
		return
	}
	if d.r.Len() == 0 {
		d.err = truncatedf("no bytes left for %s", field)
		return
	}
	if err := d.dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			d.err = truncatedf("%s: %v", field, err)
		} else {
			d.err = fmt.Errorf("%w: %s: %v", ErrMalformed, field, err)
		}
	}
}

func (d *decoder) u32(field string) (v uint32) { d.get(field, &v); return }
func (d *decoder) i32(field string) (v int32)  { d.get(field, &v); return }
func (d *decoder) u64(field string) (v uint64) { d.get(field, &v); return }
func (d *decoder) i64(field string) (v int64)  { d.get(field, &v); return }

func (d *decoder) id(field string) ID {
	lo := d.u64(field + ".lo")
	hi := d.u64(field + ".hi")
	return ID{Lo: lo, Hi: hi}
}

func (d *decoder) blob(field string) []byte {
	var b []byte
	d.get(field, &b)
	return b
}

func (d *decoder) name(field string) string {
	b := d.blob(field)
	if d.err == nil && len(b) > NameMax {
		d.err = fmt.Errorf("%w: %s is %d bytes", ErrMalformed, field, len(b))
	}
	return string(b)
}

func (d *decoder) timespec(field string) Timespec {
	return Timespec{
		Sec:  d.u64(field + ".sec"),
		Nsec: d.u64(field + ".nsec"),
	}
}

func (d *decoder) attr() (a Attr) {
	a.Mode = d.u32("attr.mode")
	a.Uid = d.u32("attr.uid")
	a.Gid = d.u32("attr.gid")
	a.Links = d.u32("attr.links")
	a.Size = d.u64("attr.size")
	a.Dev = d.id("attr.dev")
	a.Ino = d.id("attr.ino")
	a.Rdev = d.u32("attr.rdev")
	a.Atime = d.timespec("attr.atime")
	a.Ctime = d.timespec("attr.ctime")
	a.Mtime = d.timespec("attr.mtime")
	return a
}

// rest reports how many payload bytes have not been consumed.
func (d *decoder) rest() int {
	return d.r.Len()
}
