package ravana

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTransport records every frame and replays canned response payloads.
type stubTransport struct {
	frames    [][]byte
	cids      []Cid
	responses [][]byte
	err       error
}

func (s *stubTransport) RoundTrip(ctx context.Context, cid Cid, frame []byte) ([]byte, error) {
	s.frames = append(s.frames, frame)
	s.cids = append(s.cids, cid)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return nil, fmt.Errorf("%w: no scripted response", ErrTransport)
	}
	rsp := s.responses[0]
	s.responses = s.responses[1:]
	return rsp, nil
}

func (s *stubTransport) request(t *testing.T, i int) Request {
	t.Helper()
	frame := s.frames[i]
	require.GreaterOrEqual(t, len(frame), RequestHeaderSize)
	assert.Equal(t, uint32(len(frame)-RequestHeaderSize), binary.NativeEndian.Uint32(frame))
	assert.Equal(t, uint16(ProtoVersion), binary.NativeEndian.Uint16(frame[4:]))
	assert.Equal(t, uint16(FlagClient), binary.NativeEndian.Uint16(frame[6:]))
	req, err := DecodeRequest(frame[RequestHeaderSize:])
	require.NoError(t, err)
	return req
}

func must(t *testing.T) func([]byte, error) []byte {
	return func(b []byte, err error) []byte {
		t.Helper()
		require.NoError(t, err)
		return b
	}
}

func TestClientCreate(t *testing.T) {
	cid := Join(0x50e7c1cb21e3ea0b, 0x9bdc739f3962c66)
	created := Attr{Mode: S_IFREG | 0766, Links: 1, Dev: cid, Ino: NewID(42)}
	st := &stubTransport{responses: [][]byte{
		must(t)(EncodeAttrResponse(AttrResponse{Attr: created})),
	}}
	c := NewClientWithTransport(st)

	got, err := c.Create(context.Background(), cid, Root, "foo.txt", AttrMode, Attr{Mode: 0766})
	require.NoError(t, err)
	assert.Equal(t, NewID(42), got.Ino)
	assert.Equal(t, created, got)

	require.Len(t, st.frames, 1)
	assert.Equal(t, cid, st.cids[0])
	want := &CreateArgs{Header: Header{Cid: cid}, Parent: Root, Mask: AttrMode, Name: "foo.txt", Attr: Attr{Mode: 0766}}
	if diff := cmp.Diff(Request(want), st.request(t, 0)); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Get(Calls))
	assert.Equal(t, uint64(0), s.Get(FailedCalls))
}

func TestClientLookupFailure(t *testing.T) {
	st := &stubTransport{responses: [][]byte{must(t)(EncodeErrorResponse(-2))}}
	c := NewClientWithTransport(st)

	got, err := c.Lookup(context.Background(), DefaultCid, Root, "nope")
	require.Error(t, err)
	assert.Equal(t, Attr{}, got)

	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, OpLookup, re.Op)
	assert.Equal(t, int32(-2), re.Code)
	assert.Equal(t, int32(-2), Errno(err))
	assert.ErrorIs(t, err, syscall.ENOENT)
	assert.Equal(t, uint64(1), c.Stats().Get(RemoteErrors))
}

func TestClientErrorOps(t *testing.T) {
	ctx := context.Background()
	ok := must(t)(EncodeErrorResponse(0))
	busy := must(t)(EncodeErrorResponse(-int32(syscall.ENOTEMPTY)))
	st := &stubTransport{responses: [][]byte{ok, ok, ok, busy, ok}}
	c := NewClientWithTransport(st)

	require.NoError(t, c.Setattr(ctx, DefaultCid, NewID(42), AttrSize, Attr{Size: 4096}))
	require.NoError(t, c.Link(ctx, DefaultCid, Root, NewID(42), "link_foo.txt"))
	require.NoError(t, c.Unlink(ctx, DefaultCid, Root, "foo.txt"))
	assert.ErrorIs(t, c.Rmdir(ctx, DefaultCid, Root, "dir"), syscall.ENOTEMPTY)
	require.NoError(t, c.Rename(ctx, DefaultCid, Root, "a", NewID(7), "b"))

	ops := []Op{OpSetattr, OpLink, OpUnlink, OpRmdir, OpRename}
	for i, op := range ops {
		assert.Equal(t, op, st.request(t, i).Op())
	}
	assert.Equal(t, &RenameArgs{Header: Header{Cid: DefaultCid}, OldDir: Root, OldName: "a", NewDir: NewID(7), NewName: "b"}, st.request(t, 4))
}

func TestClientReadWrite(t *testing.T) {
	ctx := context.Background()
	text := []byte("some text to write to file.")
	st := &stubTransport{responses: [][]byte{
		must(t)(EncodeWriteResponse(WriteResponse{Size: int64(len(text))})),
		must(t)(EncodeDataResponse(DataResponse{Size: 6, Data: text[:6]})),
		must(t)(EncodeDataResponse(DataResponse{Size: 0, Data: []byte{}})),
		must(t)(EncodeDataResponse(DataResponse{Size: 7, Data: []byte("foo.txt")})),
	}}
	c := NewClientWithTransport(st)

	n, err := c.Write(ctx, DefaultCid, NewID(42), 4096, text)
	require.NoError(t, err)
	assert.Equal(t, int64(len(text)), n)
	assert.Equal(t, text, st.request(t, 0).(*WriteArgs).Data)

	data, err := c.Read(ctx, DefaultCid, NewID(42), 4090, 100)
	require.NoError(t, err)
	assert.Equal(t, text[:6], data)
	assert.Equal(t, &ReadArgs{Header: Header{Cid: DefaultCid}, Fid: NewID(42), Offset: 4090, Size: 100}, st.request(t, 1))

	data, err = c.Read(ctx, DefaultCid, NewID(42), 1<<40, 100)
	require.NoError(t, err)
	assert.Empty(t, data)

	target, err := c.Readlink(ctx, DefaultCid, NewID(43))
	require.NoError(t, err)
	assert.Equal(t, "foo.txt", target)

	_, err = c.Read(ctx, DefaultCid, NewID(42), 0, -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Len(t, st.frames, 4)
}

func TestClientReaddir(t *testing.T) {
	page := func(eof int32, names ...string) []byte {
		rsp := ReaddirResponse{ReaddirHeader: ReaddirHeader{EOF: eof, Count: uint32(len(names))}}
		for i, name := range names {
			rsp.Entries = append(rsp.Entries, Dirent{Name: name, Fid: NewID(uint64(10 + i)), Whence: uint64(100 + i)})
		}
		return must(t)(EncodeReaddirResponse(rsp))
	}
	st := &stubTransport{responses: [][]byte{
		page(0, "a", "b"),
		page(1, "c"),
	}}
	c := NewClientWithTransport(st)

	entries, err := c.ReaddirAll(context.Background(), DefaultCid, Root)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)

	require.Len(t, st.frames, 2)
	assert.Equal(t, uint64(0), st.request(t, 0).(*ReaddirArgs).Index)
	// the second page resumes from the whence of the last entry seen
	assert.Equal(t, uint64(101), st.request(t, 1).(*ReaddirArgs).Index)

	// a page that does not move the index forward ends the listing
	st = &stubTransport{responses: [][]byte{page(0, "a"), page(0, "b"), page(1, "c")}}
	c = NewClientWithTransport(st)
	_, err = c.ReaddirAll(context.Background(), DefaultCid, Root)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Len(t, st.frames, 2)

	st = &stubTransport{responses: [][]byte{must(t)(EncodeErrorResponse(-int32(syscall.ENOTDIR)))}}
	c = NewClientWithTransport(st)
	_, _, err = c.Readdir(context.Background(), DefaultCid, NewID(42), 0)
	assert.ErrorIs(t, err, syscall.ENOTDIR)
}

func TestClientLocalErrors(t *testing.T) {
	ctx := context.Background()
	st := &stubTransport{}
	c := NewClientWithTransport(st)

	long := string(make([]byte, NameMax+1))
	_, err := c.Lookup(ctx, DefaultCid, Root, long)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, -int32(syscall.EINVAL), Errno(err))
	_, err = c.Symlink(ctx, DefaultCid, Root, "l", long, 0, Attr{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, st.frames, "nothing is sent for unencodable requests")

	st.err = fmt.Errorf("%w: connecting: refused", ErrTransport)
	_, err = c.Getattr(ctx, DefaultCid, Root)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, -int32(syscall.EIO), Errno(err))

	st.err = nil
	st.responses = [][]byte{{0x00, 0xcd}}
	_, err = c.Getattr(ctx, DefaultCid, Root)
	assert.ErrorIs(t, err, ErrTruncated)

	assert.Equal(t, uint64(4), c.Stats().Get(Calls))
	assert.Equal(t, uint64(4), c.Stats().Get(FailedCalls))
}

func TestRemoteErrorText(t *testing.T) {
	err := &RemoteError{Op: OpLookup, Code: -2}
	assert.Contains(t, err.Error(), "LOOKUP")
	assert.Contains(t, err.Error(), "-2")
	assert.Equal(t, syscall.ENOENT, err.Errno())
	assert.Equal(t, int32(0), Errno(nil))
}

func TestClientOversizedWrite(t *testing.T) {
	st := &stubTransport{}
	c := NewClientWithTransport(st)

	_, err := c.Write(context.Background(), DefaultCid, NewID(42), 0, make([]byte, MaxPayload))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, st.frames)
	assert.Equal(t, uint64(1), c.Stats().Get(FailedCalls))
}
