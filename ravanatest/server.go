// Package ravanatest provides an in-memory server speaking the ravana
// protocol over a unix socket, for exercising clients end to end.
package ravanatest

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/lkarlslund/gonk"
	"github.com/lkarlslund/ravana"
)

// PageSize is how many entries one readdir answer carries at most.
const PageSize = 64

type dirent struct {
	name string
	fid  ravana.Fid
}

type inode struct {
	fid     ravana.Fid
	attr    ravana.Attr
	data    []byte
	target  string
	entries []dirent // sorted by name
	gone    bool     // deleted entries stay loadable until the table is optimized
}

func (i inode) LessThan(i2 inode) bool {
	if i.fid.Hi != i2.fid.Hi {
		return i.fid.Hi < i2.fid.Hi
	}
	return i.fid.Lo < i2.fid.Lo
}

// Responder can replace the server's answer to a request. Returning nil
// lets the in-memory filesystem answer.
type Responder func(req ravana.Request) []byte

// Server serves one channel. Its namespace starts with an empty root
// directory at ravana.Root.
type Server struct {
	Cid      ravana.Cid
	Endpoint string

	config   *ravana.Config
	listener net.Listener
	wg       sync.WaitGroup

	mu       sync.Mutex
	respond  Responder
	inodes   gonk.Gonk[inode]
	nextIno  uint64
	deleted  int
	requests []ravana.Request
}

// NewServer creates the channel directory under cfg.BaseDir and starts
// listening on the endpoint a client with the same cfg resolves for cid.
func NewServer(cfg *ravana.Config, cid ravana.Cid) (*Server, error) {
	endpoint := cfg.Endpoint(cid)
	if err := os.MkdirAll(filepath.Dir(endpoint), 0755); err != nil {
		return nil, err
	}
	os.Remove(endpoint)
	l, err := net.Listen("unix", endpoint)
	if err != nil {
		return nil, err
	}
	s := &Server{
		Cid:      cid,
		Endpoint: endpoint,
		config:   cfg,
		listener: l,
		nextIno:  ravana.Root.Lo + 1,
	}
	now := ravana.TimespecOf(time.Now())
	s.put(inode{
		fid: ravana.Root,
		attr: ravana.Attr{
			Mode:  ravana.S_IFDIR | 0755,
			Links: 2,
			Dev:   cid,
			Ino:   ravana.Root,
			Atime: now, Ctime: now, Mtime: now,
		},
	})
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// Close stops accepting connections and waits for in-flight ones.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.wg.Wait()
	os.Remove(s.Endpoint)
	return err
}

// SetResponder installs fn to be consulted before the filesystem answers.
// Passing nil removes it.
func (s *Server) SetResponder(fn Responder) {
	s.mu.Lock()
	s.respond = fn
	s.mu.Unlock()
}

// Requests returns every request decoded so far, in arrival order.
func (s *Server) Requests() []ravana.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ravana.Request(nil), s.requests...)
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				ravana.Logger.Error().Msgf("Error accepting connection: %v", err)
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.handle(conn); err != nil {
				ravana.Logger.Debug().Msgf("Connection on %s: %v", s.Endpoint, err)
			}
		}()
	}
}

// handle answers exactly one request per connection, like the client expects.
func (s *Server) handle(conn net.Conn) error {
	defer conn.Close()
	var rwc io.ReadWriteCloser = conn
	if s.config.Compression == ravana.CompressionS2 {
		rwc = ravana.CompressedReadWriteCloser(conn)
		defer rwc.Close()
	}
	_, payload, err := ravana.ReadRequestFrame(rwc)
	if err != nil {
		return err
	}
	rsp, err := s.Answer(payload)
	if err != nil {
		return err
	}
	return ravana.WriteResponseFrame(rwc, rsp)
}

// Answer decodes one request payload and returns the encoded response.
// Undecodable requests are answered with -EINVAL.
func (s *Server) Answer(payload []byte) ([]byte, error) {
	req, err := ravana.DecodeRequest(payload)
	if err != nil {
		ravana.Logger.Debug().Msgf("Bad request: %v", err)
		if errors.Is(err, ravana.ErrNotImplemented) {
			return ravana.EncodeErrorResponse(-int32(syscall.ENOSYS))
		}
		return ravana.EncodeErrorResponse(-int32(syscall.EINVAL))
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	respond := s.respond
	s.mu.Unlock()

	if respond != nil {
		if rsp := respond(req); rsp != nil {
			return rsp, nil
		}
	}
	if req.Channel() != s.Cid {
		return ravana.EncodeErrorResponse(-int32(syscall.ENXIO))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch r := req.(type) {
	case *ravana.LookupArgs:
		return ravana.EncodeAttrResponse(s.lookup(r))
	case *ravana.CreateArgs:
		return ravana.EncodeAttrResponse(s.create(r.Parent, r.Name, r.Mask, r.Attr, ravana.S_IFREG, ""))
	case *ravana.MknodArgs:
		return ravana.EncodeAttrResponse(s.create(r.Parent, r.Name, r.Mask, r.Attr, r.Attr.Mode&ravana.S_IFMT, ""))
	case *ravana.MkdirArgs:
		return ravana.EncodeAttrResponse(s.create(r.Parent, r.Name, r.Mask, r.Attr, ravana.S_IFDIR, ""))
	case *ravana.SymlinkArgs:
		return ravana.EncodeAttrResponse(s.create(r.Parent, r.Name, r.Mask, r.Attr, ravana.S_IFLNK, r.Target))
	case *ravana.GetattrArgs:
		ino, code := s.get(r.Fid)
		return ravana.EncodeAttrResponse(ravana.AttrResponse{Error: code, Attr: ino.attr})
	case *ravana.SetattrArgs:
		return ravana.EncodeErrorResponse(s.setattr(r))
	case *ravana.ReaddirArgs:
		return ravana.EncodeReaddirResponse(s.readdir(r))
	case *ravana.ReadArgs:
		return ravana.EncodeDataResponse(s.read(r))
	case *ravana.ReadlinkArgs:
		return ravana.EncodeDataResponse(s.readlink(r))
	case *ravana.WriteArgs:
		return ravana.EncodeWriteResponse(s.write(r))
	case *ravana.UnlinkArgs:
		return ravana.EncodeErrorResponse(s.remove(r.Parent, r.Name, false))
	case *ravana.RmdirArgs:
		return ravana.EncodeErrorResponse(s.remove(r.Parent, r.Name, true))
	case *ravana.LinkArgs:
		return ravana.EncodeErrorResponse(s.link(r))
	case *ravana.RenameArgs:
		return ravana.EncodeErrorResponse(s.rename(r))
	}
	return nil, fmt.Errorf("no handler for %v", req.Op())
}

func errno(e syscall.Errno) int32 {
	return -int32(e)
}

func (s *Server) get(fid ravana.Fid) (inode, int32) {
	ino, found := s.inodes.Load(inode{fid: fid})
	if !found || ino.gone {
		return inode{}, errno(syscall.ENOENT)
	}
	return ino, 0
}

// put inserts ino or replaces the stored copy with the same fid.
func (s *Server) put(ino inode) {
	s.inodes.AtomicMutate(ino, func(i *inode) {
		*i = ino
	}, true)
}

func (s *Server) forget(ino inode) {
	s.inodes.AtomicMutate(ino, func(i *inode) {
		i.gone = true
	}, false)
	s.inodes.Delete(ino)
	s.deleted++
	if s.inodes.Len()/4 < s.deleted {
		s.deleted = 0
		s.inodes.Optimize(gonk.Minimize)
	}
}

func (s *Server) dir(fid ravana.Fid) (inode, int32) {
	ino, code := s.get(fid)
	if code != 0 {
		return ino, code
	}
	if !ino.attr.IsDir() {
		return ino, errno(syscall.ENOTDIR)
	}
	return ino, 0
}

func find(entries []dirent, name string) (int, bool) {
	i := sort.Search(len(entries), func(i int) bool { return entries[i].name >= name })
	return i, i < len(entries) && entries[i].name == name
}

func insert(entries []dirent, name string, fid ravana.Fid) []dirent {
	i, _ := find(entries, name)
	entries = append(entries, dirent{})
	copy(entries[i+1:], entries[i:])
	entries[i] = dirent{name: name, fid: fid}
	return entries
}

func drop(entries []dirent, i int) []dirent {
	return append(entries[:i:i], entries[i+1:]...)
}

func (s *Server) lookup(r *ravana.LookupArgs) ravana.AttrResponse {
	parent, code := s.dir(r.Dir)
	if code != 0 {
		return ravana.AttrResponse{Error: code}
	}
	i, found := find(parent.entries, r.Name)
	if !found {
		return ravana.AttrResponse{Error: errno(syscall.ENOENT)}
	}
	ino, code := s.get(parent.entries[i].fid)
	return ravana.AttrResponse{Error: code, Attr: ino.attr}
}

func applyAttr(dst *ravana.Attr, mask ravana.AttrMask, src ravana.Attr) {
	if mask.Has(ravana.AttrMode) {
		dst.Mode = dst.Mode&ravana.S_IFMT | src.Mode&^ravana.S_IFMT
	}
	if mask.Has(ravana.AttrUid) {
		dst.Uid = src.Uid
	}
	if mask.Has(ravana.AttrGid) {
		dst.Gid = src.Gid
	}
	if mask.Has(ravana.AttrSize) {
		dst.Size = src.Size
	}
	if mask.Has(ravana.AttrAtime) {
		dst.Atime = src.Atime
	}
	if mask.Has(ravana.AttrMtime) {
		dst.Mtime = src.Mtime
	}
	if mask.Has(ravana.AttrCtime) {
		dst.Ctime = src.Ctime
	}
}

func (s *Server) create(parentFid ravana.Fid, name string, mask ravana.AttrMask, attr ravana.Attr, kind uint32, target string) ravana.AttrResponse {
	if name == "" || name == "." || name == ".." {
		return ravana.AttrResponse{Error: errno(syscall.EINVAL)}
	}
	parent, code := s.dir(parentFid)
	if code != 0 {
		return ravana.AttrResponse{Error: code}
	}
	if _, found := find(parent.entries, name); found {
		return ravana.AttrResponse{Error: errno(syscall.EEXIST)}
	}
	if kind == 0 {
		return ravana.AttrResponse{Error: errno(syscall.EINVAL)}
	}

	fid := ravana.NewID(s.nextIno)
	s.nextIno++
	now := ravana.TimespecOf(time.Now())
	ino := inode{
		fid: fid,
		attr: ravana.Attr{
			Mode:  kind | 0644,
			Links: 1,
			Dev:   s.Cid,
			Ino:   fid,
			Atime: now, Ctime: now, Mtime: now,
		},
		target: target,
	}
	switch kind {
	case ravana.S_IFDIR:
		ino.attr.Mode = kind | 0755
		ino.attr.Links = 2
		parent.attr.Links++
	case ravana.S_IFLNK:
		ino.attr.Mode = kind | 0777
		ino.attr.Size = uint64(len(target))
	case ravana.S_IFCHR, ravana.S_IFBLK:
		ino.attr.Rdev = attr.Rdev
	}
	applyAttr(&ino.attr, mask&^ravana.AttrSize, attr)

	parent.entries = insert(parent.entries, name, fid)
	parent.attr.Size = uint64(len(parent.entries))
	parent.attr.Mtime, parent.attr.Ctime = now, now
	s.put(parent)
	s.put(ino)
	return ravana.AttrResponse{Attr: ino.attr}
}

func (s *Server) setattr(r *ravana.SetattrArgs) int32 {
	ino, code := s.get(r.Fid)
	if code != 0 {
		return code
	}
	if r.Mask.Has(ravana.AttrSize) {
		if ino.attr.IsDir() {
			return errno(syscall.EISDIR)
		}
		resized := make([]byte, r.Attr.Size)
		copy(resized, ino.data)
		ino.data = resized
	}
	applyAttr(&ino.attr, r.Mask, r.Attr)
	ino.attr.Ctime = ravana.TimespecOf(time.Now())
	s.put(ino)
	return 0
}

func (s *Server) readdir(r *ravana.ReaddirArgs) ravana.ReaddirResponse {
	dir, code := s.dir(r.Dir)
	if code != 0 {
		return ravana.ReaddirResponse{ReaddirHeader: ravana.ReaddirHeader{Error: code}}
	}
	var rsp ravana.ReaddirResponse
	start := r.Index
	if start > uint64(len(dir.entries)) {
		start = uint64(len(dir.entries))
	}
	end := start + PageSize
	if end >= uint64(len(dir.entries)) {
		end = uint64(len(dir.entries))
		rsp.EOF = 1
	}
	for i := start; i < end; i++ {
		rsp.Entries = append(rsp.Entries, ravana.Dirent{
			Name:   dir.entries[i].name,
			Fid:    dir.entries[i].fid,
			Whence: i + 1,
		})
	}
	rsp.Count = uint32(len(rsp.Entries))
	return rsp
}

func (s *Server) regular(fid ravana.Fid) (inode, int32) {
	ino, code := s.get(fid)
	if code != 0 {
		return ino, code
	}
	if ino.attr.IsDir() {
		return ino, errno(syscall.EISDIR)
	}
	return ino, 0
}

func (s *Server) read(r *ravana.ReadArgs) ravana.DataResponse {
	ino, code := s.regular(r.Fid)
	if code != 0 {
		return ravana.DataResponse{Error: code}
	}
	if r.Size < 0 {
		return ravana.DataResponse{Error: errno(syscall.EINVAL)}
	}
	if r.Offset >= uint64(len(ino.data)) {
		return ravana.DataResponse{Data: []byte{}}
	}
	end := r.Offset + uint64(r.Size)
	if end > uint64(len(ino.data)) {
		end = uint64(len(ino.data))
	}
	data := append([]byte(nil), ino.data[r.Offset:end]...)
	return ravana.DataResponse{Size: int64(len(data)), Data: data}
}

func (s *Server) readlink(r *ravana.ReadlinkArgs) ravana.DataResponse {
	ino, code := s.get(r.Fid)
	if code != 0 {
		return ravana.DataResponse{Error: code}
	}
	if ino.attr.Mode&ravana.S_IFMT != ravana.S_IFLNK {
		return ravana.DataResponse{Error: errno(syscall.EINVAL)}
	}
	return ravana.DataResponse{Size: int64(len(ino.target)), Data: []byte(ino.target)}
}

func (s *Server) write(r *ravana.WriteArgs) ravana.WriteResponse {
	ino, code := s.regular(r.Fid)
	if code != 0 {
		return ravana.WriteResponse{Error: code}
	}
	end := r.Offset + uint64(len(r.Data))
	if end > uint64(len(ino.data)) {
		grown := make([]byte, end)
		copy(grown, ino.data)
		ino.data = grown
	}
	copy(ino.data[r.Offset:], r.Data)
	ino.attr.Size = uint64(len(ino.data))
	now := ravana.TimespecOf(time.Now())
	ino.attr.Mtime, ino.attr.Ctime = now, now
	s.put(ino)
	return ravana.WriteResponse{Size: int64(len(r.Data))}
}

func (s *Server) remove(parentFid ravana.Fid, name string, wantDir bool) int32 {
	parent, code := s.dir(parentFid)
	if code != 0 {
		return code
	}
	i, found := find(parent.entries, name)
	if !found {
		return errno(syscall.ENOENT)
	}
	ino, code := s.get(parent.entries[i].fid)
	if code != 0 {
		return code
	}
	switch {
	case wantDir && !ino.attr.IsDir():
		return errno(syscall.ENOTDIR)
	case !wantDir && ino.attr.IsDir():
		return errno(syscall.EISDIR)
	case wantDir && len(ino.entries) > 0:
		return errno(syscall.ENOTEMPTY)
	}

	parent.entries = drop(parent.entries, i)
	parent.attr.Size = uint64(len(parent.entries))
	if wantDir {
		parent.attr.Links--
	}
	s.put(parent)

	ino.attr.Links--
	if wantDir || ino.attr.Links == 0 {
		s.forget(ino)
	} else {
		s.put(ino)
	}
	return 0
}

// unref drops one name from fid, forgetting the inode with its last name.
func (s *Server) unref(fid ravana.Fid) {
	ino, code := s.get(fid)
	if code != 0 {
		return
	}
	if ino.attr.Links > 1 && !ino.attr.IsDir() {
		ino.attr.Links--
		s.put(ino)
		return
	}
	s.forget(ino)
}

func (s *Server) link(r *ravana.LinkArgs) int32 {
	parent, code := s.dir(r.Parent)
	if code != 0 {
		return code
	}
	ino, code := s.get(r.Target)
	if code != 0 {
		return code
	}
	if ino.attr.IsDir() {
		return errno(syscall.EPERM)
	}
	if _, found := find(parent.entries, r.Name); found {
		return errno(syscall.EEXIST)
	}
	parent.entries = insert(parent.entries, r.Name, ino.fid)
	parent.attr.Size = uint64(len(parent.entries))
	s.put(parent)
	ino.attr.Links++
	s.put(ino)
	return 0
}

func (s *Server) rename(r *ravana.RenameArgs) int32 {
	from, code := s.dir(r.OldDir)
	if code != 0 {
		return code
	}
	i, found := find(from.entries, r.OldName)
	if !found {
		return errno(syscall.ENOENT)
	}
	moved := from.entries[i].fid
	from.entries = drop(from.entries, i)
	from.attr.Size = uint64(len(from.entries))

	if r.NewDir == r.OldDir {
		if j, found := find(from.entries, r.NewName); found {
			s.unref(from.entries[j].fid)
			from.entries = drop(from.entries, j)
		}
		from.entries = insert(from.entries, r.NewName, moved)
		from.attr.Size = uint64(len(from.entries))
		s.put(from)
		return 0
	}

	to, code := s.dir(r.NewDir)
	if code != 0 {
		return code
	}
	if j, found := find(to.entries, r.NewName); found {
		s.unref(to.entries[j].fid)
		to.entries = drop(to.entries, j)
	}
	to.entries = insert(to.entries, r.NewName, moved)
	to.attr.Size = uint64(len(to.entries))
	s.put(from)
	s.put(to)
	return 0
}
