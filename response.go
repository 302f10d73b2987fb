package ravana

import (
	"fmt"
)

// ErrorOnlySize is the width of the error field. A payload this small can
// never carry more than the error code.
const ErrorOnlySize = 4

// AttrResponse answers create, mknod, mkdir, symlink, lookup and getattr.
type AttrResponse struct {
	Error int32
	Attr  Attr
}

// ErrorResponse answers setattr, link, unlink, rmdir and rename.
type ErrorResponse struct {
	Error int32
}

type WriteResponse struct {
	Error int32
	Size  int64
}

// DataResponse answers read and readlink. Data holds exactly Size bytes.
type DataResponse struct {
	Error int32
	Size  int64
	Data  []byte
}

// ReaddirHeader is the fixed part of a readdir response. It can be decoded
// on its own to size the entry slice before the entries are read.
type ReaddirHeader struct {
	Error int32
	EOF   int32
	Count uint32
}

type ReaddirResponse struct {
	ReaddirHeader
	Entries []Dirent
}

// decodeError reads the leading error code and reports whether decoding
// should go on. It stops on a non-zero code and when the error field was the
// only thing in the payload. Values are packed compactly, so the byte count
// alone can not tell a short success (write of 5 bytes packs as 2 bytes) from
// an error-only answer.
func decodeError(d *decoder) (int32, bool) {
	code := d.i32("error")
	if d.err != nil {
		return 0, false
	}
	return code, code == 0 && d.rest() > 0
}

func DecodeErrorResponse(payload []byte) (ErrorResponse, error) {
	d := newDecoder(payload)
	code, _ := decodeError(d)
	if d.err != nil {
		return ErrorResponse{}, d.err
	}
	return ErrorResponse{Error: code}, nil
}

func DecodeAttrResponse(payload []byte) (AttrResponse, error) {
	d := newDecoder(payload)
	code, more := decodeError(d)
	if !more {
		return AttrResponse{Error: code}, d.err
	}
	rsp := AttrResponse{Attr: d.attr()}
	if d.err != nil {
		return AttrResponse{}, d.err
	}
	return rsp, nil
}

func DecodeWriteResponse(payload []byte) (WriteResponse, error) {
	d := newDecoder(payload)
	code, more := decodeError(d)
	if !more {
		return WriteResponse{Error: code}, d.err
	}
	rsp := WriteResponse{Size: d.i64("size")}
	if d.err != nil {
		return WriteResponse{}, d.err
	}
	return rsp, nil
}

func DecodeDataResponse(payload []byte) (DataResponse, error) {
	d := newDecoder(payload)
	code, more := decodeError(d)
	if !more {
		return DataResponse{Error: code}, d.err
	}
	size := d.i64("size")
	if d.err != nil {
		return DataResponse{}, d.err
	}
	if size < 0 {
		return DataResponse{}, fmt.Errorf("%w: negative data size %d", ErrMalformed, size)
	}
	data := d.blob("data")
	if d.err != nil {
		return DataResponse{}, d.err
	}
	if int64(len(data)) < size {
		return DataResponse{}, truncatedf("data is %d bytes, size says %d", len(data), size)
	}
	if int64(len(data)) > size {
		return DataResponse{}, fmt.Errorf("%w: data is %d bytes, size says %d", ErrMalformed, len(data), size)
	}
	if data == nil {
		data = []byte{}
	}
	return DataResponse{Size: size, Data: data}, nil
}

func decodeReaddirHeader(d *decoder) (ReaddirHeader, bool) {
	code, more := decodeError(d)
	if !more {
		return ReaddirHeader{Error: code}, false
	}
	hdr := ReaddirHeader{
		EOF:   d.i32("eof"),
		Count: d.u32("count"),
	}
	if d.err != nil {
		return ReaddirHeader{}, false
	}
	return hdr, true
}

// DecodeReaddirHeader decodes error, eof and count without touching the
// entries.
func DecodeReaddirHeader(payload []byte) (ReaddirHeader, error) {
	d := newDecoder(payload)
	hdr, _ := decodeReaddirHeader(d)
	if d.err != nil {
		return ReaddirHeader{}, d.err
	}
	return hdr, nil
}

// DecodeReaddirEntries decodes the whole response into an entry slice sized
// from hdr.Count, as returned by DecodeReaddirHeader for the same payload.
func DecodeReaddirEntries(payload []byte, hdr ReaddirHeader) (ReaddirResponse, error) {
	d := newDecoder(payload)
	again, more := decodeReaddirHeader(d)
	if d.err != nil {
		return ReaddirResponse{}, d.err
	}
	if !more {
		return ReaddirResponse{ReaddirHeader: again}, nil
	}
	if again != hdr {
		return ReaddirResponse{}, fmt.Errorf("%w: readdir header changed between passes", ErrMalformed)
	}
	// each entry needs at least four bytes, which bounds a bogus count
	if uint64(hdr.Count)*4 > uint64(d.rest()) {
		return ReaddirResponse{}, truncatedf("%d entries announced, %d bytes left", hdr.Count, d.rest())
	}
	rsp := ReaddirResponse{
		ReaddirHeader: hdr,
		Entries:       make([]Dirent, hdr.Count),
	}
	for i := range rsp.Entries {
		rsp.Entries[i] = Dirent{
			Name:   d.name("entry.name"),
			Fid:    d.id("entry.fid"),
			Whence: d.u64("entry.whence"),
		}
		if d.err != nil {
			return ReaddirResponse{}, fmt.Errorf("readdir entry %d: %w", i, d.err)
		}
	}
	return rsp, nil
}

// DecodeReaddirResponse runs both passes.
func DecodeReaddirResponse(payload []byte) (ReaddirResponse, error) {
	hdr, err := DecodeReaddirHeader(payload)
	if err != nil {
		return ReaddirResponse{}, err
	}
	return DecodeReaddirEntries(payload, hdr)
}

// Response encoders, used by servers and tests.

func EncodeErrorResponse(code int32) ([]byte, error) {
	e := newEncoder()
	e.i32(code)
	return e.bytes()
}

func EncodeAttrResponse(rsp AttrResponse) ([]byte, error) {
	if rsp.Error != 0 {
		return EncodeErrorResponse(rsp.Error)
	}
	e := newEncoder()
	e.i32(0)
	e.attr(&rsp.Attr)
	return e.bytes()
}

func EncodeWriteResponse(rsp WriteResponse) ([]byte, error) {
	if rsp.Error != 0 {
		return EncodeErrorResponse(rsp.Error)
	}
	e := newEncoder()
	e.i32(0)
	e.i64(rsp.Size)
	return e.bytes()
}

func EncodeDataResponse(rsp DataResponse) ([]byte, error) {
	if rsp.Error != 0 {
		return EncodeErrorResponse(rsp.Error)
	}
	if rsp.Size != int64(len(rsp.Data)) {
		return nil, invalidArgf("data response size %d but %d bytes", rsp.Size, len(rsp.Data))
	}
	e := newEncoder()
	e.i32(0)
	e.i64(rsp.Size)
	e.blob(rsp.Data)
	return e.bytes()
}

func EncodeReaddirResponse(rsp ReaddirResponse) ([]byte, error) {
	if rsp.Error != 0 {
		return EncodeErrorResponse(rsp.Error)
	}
	if int(rsp.Count) != len(rsp.Entries) {
		return nil, invalidArgf("readdir count %d but %d entries", rsp.Count, len(rsp.Entries))
	}
	e := newEncoder()
	e.i32(0)
	e.i32(rsp.EOF)
	e.u32(rsp.Count)
	for _, ent := range rsp.Entries {
		e.name("entry name", ent.Name)
		e.id(ent.Fid)
		e.u64(ent.Whence)
	}
	return e.bytes()
}
