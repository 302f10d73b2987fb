package ravana

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Client binds argument records, the codec and a Transport into one call per
// filesystem operation. It keeps no state between calls, so it can be
// shared; each call owns its connection and buffers.
//
// A non-zero error code from the server comes back as *RemoteError. Any other
// error is local: encoding, framing, decoding or transport. Results are only
// meaningful when the error is nil.
type Client struct {
	transport Transport
	Perf      *Counters
	Log       zerolog.Logger
}

// NewClient returns a client talking to unix sockets laid out per cfg.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := NewSocketTransport(cfg)
	return &Client{
		transport: t,
		Perf:      t.Perf,
		Log:       Logger,
	}, nil
}

// NewClientWithTransport returns a client using t for every call.
func NewClientWithTransport(t Transport) *Client {
	c := &Client{
		transport: t,
		Perf:      &Counters{},
		Log:       Logger,
	}
	if st, ok := t.(*SocketTransport); ok {
		c.Perf = st.Perf
	}
	return c
}

// Stats returns a snapshot of the call and byte counters.
func (c *Client) Stats() Stats {
	return c.Perf.Snapshot()
}

// roundTrip encodes req, frames it and returns the response payload.
func (c *Client) roundTrip(ctx context.Context, req Request) ([]byte, error) {
	c.Perf.Add(Calls, 1)
	payload, err := EncodeRequest(req)
	if err != nil {
		c.Perf.Add(FailedCalls, 1)
		return nil, err
	}
	frame, err := Frame(payload)
	if err != nil {
		c.Perf.Add(FailedCalls, 1)
		return nil, fmt.Errorf("%v: %w", req.Op(), err)
	}
	c.Log.Debug().Msgf("%v on channel %v, %d byte payload", req.Op(), req.Channel(), len(payload))
	rsp, err := c.transport.RoundTrip(ctx, req.Channel(), frame)
	if err != nil {
		c.Perf.Add(FailedCalls, 1)
		c.Log.Debug().Msgf("%v on channel %v failed: %v", req.Op(), req.Channel(), err)
		return nil, fmt.Errorf("%v: %w", req.Op(), err)
	}
	return rsp, nil
}

func (c *Client) check(op Op, code int32, decodeErr error) error {
	if decodeErr != nil {
		c.Perf.Add(FailedCalls, 1)
		return fmt.Errorf("%v: %w", op, decodeErr)
	}
	if code != 0 {
		c.Perf.Add(RemoteErrors, 1)
		c.Log.Trace().Msgf("%v returned %d (%s)", op, code, errnoName(code))
		return &RemoteError{Op: op, Code: code}
	}
	return nil
}

func (c *Client) attrCall(ctx context.Context, req Request) (Attr, error) {
	payload, err := c.roundTrip(ctx, req)
	if err != nil {
		return Attr{}, err
	}
	rsp, err := DecodeAttrResponse(payload)
	if err := c.check(req.Op(), rsp.Error, err); err != nil {
		return Attr{}, err
	}
	return rsp.Attr, nil
}

func (c *Client) errorCall(ctx context.Context, req Request) error {
	payload, err := c.roundTrip(ctx, req)
	if err != nil {
		return err
	}
	rsp, err := DecodeErrorResponse(payload)
	return c.check(req.Op(), rsp.Error, err)
}

func (c *Client) dataCall(ctx context.Context, req Request) ([]byte, error) {
	payload, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	rsp, err := DecodeDataResponse(payload)
	if err := c.check(req.Op(), rsp.Error, err); err != nil {
		return nil, err
	}
	return rsp.Data, nil
}

// Lookup resolves name inside dir.
func (c *Client) Lookup(ctx context.Context, cid Cid, dir Fid, name string) (Attr, error) {
	return c.attrCall(ctx, &LookupArgs{Header: Header{cid}, Dir: dir, Name: name})
}

// Create makes a regular file. Only the fields of attr selected by mask are
// applied.
func (c *Client) Create(ctx context.Context, cid Cid, parent Fid, name string, mask AttrMask, attr Attr) (Attr, error) {
	return c.attrCall(ctx, &CreateArgs{Header: Header{cid}, Parent: parent, Mask: mask, Name: name, Attr: attr})
}

// Mknod makes a device, fifo or socket node. The type comes from attr.Mode
// and the device number from attr.Rdev.
func (c *Client) Mknod(ctx context.Context, cid Cid, parent Fid, name string, mask AttrMask, attr Attr) (Attr, error) {
	return c.attrCall(ctx, &MknodArgs{Header: Header{cid}, Parent: parent, Mask: mask, Name: name, Attr: attr})
}

func (c *Client) Mkdir(ctx context.Context, cid Cid, parent Fid, name string, mask AttrMask, attr Attr) (Attr, error) {
	return c.attrCall(ctx, &MkdirArgs{Header: Header{cid}, Parent: parent, Mask: mask, Name: name, Attr: attr})
}

// Symlink creates name in parent pointing at target.
func (c *Client) Symlink(ctx context.Context, cid Cid, parent Fid, name, target string, mask AttrMask, attr Attr) (Attr, error) {
	return c.attrCall(ctx, &SymlinkArgs{Header: Header{cid}, Parent: parent, Mask: mask, Name: name, Attr: attr, Target: target})
}

func (c *Client) Getattr(ctx context.Context, cid Cid, fid Fid) (Attr, error) {
	return c.attrCall(ctx, &GetattrArgs{Header: Header{cid}, Fid: fid})
}

func (c *Client) Setattr(ctx context.Context, cid Cid, fid Fid, mask AttrMask, attr Attr) error {
	return c.errorCall(ctx, &SetattrArgs{Header: Header{cid}, Fid: fid, Mask: mask, Attr: attr})
}

func (c *Client) Link(ctx context.Context, cid Cid, parent, target Fid, name string) error {
	return c.errorCall(ctx, &LinkArgs{Header: Header{cid}, Parent: parent, Target: target, Name: name})
}

func (c *Client) Unlink(ctx context.Context, cid Cid, parent Fid, name string) error {
	return c.errorCall(ctx, &UnlinkArgs{Header: Header{cid}, Parent: parent, Name: name})
}

func (c *Client) Rmdir(ctx context.Context, cid Cid, parent Fid, name string) error {
	return c.errorCall(ctx, &RmdirArgs{Header: Header{cid}, Parent: parent, Name: name})
}

func (c *Client) Rename(ctx context.Context, cid Cid, oldDir Fid, oldName string, newDir Fid, newName string) error {
	return c.errorCall(ctx, &RenameArgs{Header: Header{cid}, OldDir: oldDir, OldName: oldName, NewDir: newDir, NewName: newName})
}

// Read returns up to size bytes at offset. Fewer bytes, including none, are
// not an error.
func (c *Client) Read(ctx context.Context, cid Cid, fid Fid, offset uint64, size int64) ([]byte, error) {
	if size < 0 {
		return nil, invalidArgf("negative read size %d", size)
	}
	return c.dataCall(ctx, &ReadArgs{Header: Header{cid}, Fid: fid, Offset: offset, Size: size})
}

// Readlink returns the target of the symlink fid.
func (c *Client) Readlink(ctx context.Context, cid Cid, fid Fid) (string, error) {
	data, err := c.dataCall(ctx, &ReadlinkArgs{Header: Header{cid}, Fid: fid})
	return string(data), err
}

// Write stores data at offset and returns how many bytes the server wrote.
func (c *Client) Write(ctx context.Context, cid Cid, fid Fid, offset uint64, data []byte) (int64, error) {
	req := &WriteArgs{Header: Header{cid}, Fid: fid, Offset: offset, Data: data}
	payload, err := c.roundTrip(ctx, req)
	if err != nil {
		return 0, err
	}
	rsp, err := DecodeWriteResponse(payload)
	if err := c.check(OpWrite, rsp.Error, err); err != nil {
		return 0, err
	}
	return rsp.Size, nil
}

// Readdir lists dir starting at index. The header is decoded first so the
// entry slice is allocated once at its final size.
func (c *Client) Readdir(ctx context.Context, cid Cid, dir Fid, index uint64) (entries []Dirent, eof bool, err error) {
	payload, err := c.roundTrip(ctx, &ReaddirArgs{Header: Header{cid}, Dir: dir, Index: index})
	if err != nil {
		return nil, false, err
	}
	hdr, err := DecodeReaddirHeader(payload)
	if err := c.check(OpReaddir, hdr.Error, err); err != nil {
		return nil, false, err
	}
	rsp, err := DecodeReaddirEntries(payload, hdr)
	if err := c.check(OpReaddir, rsp.Error, err); err != nil {
		return nil, false, err
	}
	return rsp.Entries, rsp.EOF != 0, nil
}

// ReaddirAll keeps calling Readdir, resuming after the last whence token,
// until the server reports the end of the directory. A page that does not
// move the token forward is ErrMalformed.
func (c *Client) ReaddirAll(ctx context.Context, cid Cid, dir Fid) ([]Dirent, error) {
	var all []Dirent
	var index uint64
	for {
		entries, eof, err := c.Readdir(ctx, cid, dir, index)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
		if eof || len(entries) == 0 {
			return all, nil
		}
		next := entries[len(entries)-1].Whence
		if next <= index {
			return nil, fmt.Errorf("%w: readdir of %v does not advance past index %d", ErrMalformed, dir, index)
		}
		index = next
	}
}
