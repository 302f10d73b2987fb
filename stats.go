package ravana

import (
	"io"
	"sync/atomic"

	"github.com/klauspost/compress/s2"
)

// CounterType names one transport counter.
type CounterType int

const (
	Calls CounterType = iota
	FailedCalls
	RemoteErrors
	SentOverWire
	ReceivedOverWire
	SentBytes
	ReceivedBytes
	maxcountertype
)

var counterNames = [maxcountertype]string{
	"calls", "failed", "remote errors", "sent over wire", "received over wire", "sent", "received",
}

func (ct CounterType) String() string {
	if ct < 0 || ct >= maxcountertype {
		return "unknown"
	}
	return counterNames[ct]
}

type AtomicAdder func(uint64)

// Counters are updated from any goroutine making calls.
type Counters struct {
	counters [maxcountertype]atomic.Uint64
}

func (c *Counters) Add(ct CounterType, v uint64) {
	c.counters[ct].Add(v)
}

func (c *Counters) Get(ct CounterType) uint64 {
	return c.counters[ct].Load()
}

func (c *Counters) GetAtomicAdder(ct CounterType) AtomicAdder {
	return func(v uint64) {
		c.Add(ct, v)
	}
}

// Snapshot copies the current values.
func (c *Counters) Snapshot() Stats {
	var s Stats
	for i := range s {
		s[i] = c.counters[i].Load()
	}
	return s
}

type Stats [maxcountertype]uint64

func (s Stats) Get(ct CounterType) uint64 {
	return s[ct]
}

// countingConn reports bytes moved through rwc.
type countingConn struct {
	onRead, onWrite AtomicAdder
	rwc             io.ReadWriteCloser
}

func newCountingConn(rwc io.ReadWriteCloser, onRead, onWrite AtomicAdder) *countingConn {
	return &countingConn{onRead, onWrite, rwc}
}

func (cc *countingConn) Write(b []byte) (int, error) {
	n, err := cc.rwc.Write(b)
	cc.onWrite(uint64(n))
	return n, err
}

func (cc *countingConn) Read(b []byte) (int, error) {
	n, err := cc.rwc.Read(b)
	cc.onRead(uint64(n))
	return n, err
}

func (cc *countingConn) Close() error {
	return cc.rwc.Close()
}

// compressedConn runs the protocol over an s2 stream. Every Write is
// flushed so a whole frame reaches the peer before we wait for its answer.
type compressedConn struct {
	r *s2.Reader
	w *s2.Writer
	c io.Closer
}

// CompressedReadWriteCloser wraps rwc in an s2 stream in both directions.
func CompressedReadWriteCloser(rwc io.ReadWriteCloser) io.ReadWriteCloser {
	return &compressedConn{
		r: s2.NewReader(rwc),
		w: s2.NewWriter(rwc),
		c: rwc,
	}
}

func (c *compressedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *compressedConn) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, c.w.Flush()
}

func (c *compressedConn) Close() error {
	c.w.Close()
	return c.c.Close()
}
