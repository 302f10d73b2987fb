package ravana

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// Transport carries one framed request to the endpoint serving cid and
// returns the response payload, with the size prefix stripped.
type Transport interface {
	RoundTrip(ctx context.Context, cid Cid, frame []byte) ([]byte, error)
}

// SocketTransport opens a fresh unix stream connection for every call and
// closes it before returning. It never reuses connections and never retries.
type SocketTransport struct {
	Config *Config
	Perf   *Counters
	Log    zerolog.Logger

	dialer net.Dialer
}

func NewSocketTransport(cfg *Config) *SocketTransport {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &SocketTransport{
		Config: cfg,
		Perf:   &Counters{},
		Log:    Logger,
	}
}

func (t *SocketTransport) RoundTrip(ctx context.Context, cid Cid, frame []byte) ([]byte, error) {
	if t.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Config.Timeout)
		defer cancel()
	}

	endpoint := t.Config.Endpoint(cid)
	t.Log.Trace().Msgf("Connecting to %s", endpoint)
	conn, err := t.dialer.DialContext(ctx, "unix", endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %w", ErrTransport, endpoint, err)
	}
	defer conn.Close()

	// unblock reads and writes once ctx is done, deadline included
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	rsp, err := t.exchange(conn, frame)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransport, ctxErr)
		}
		return nil, err
	}
	return rsp, nil
}

func (t *SocketTransport) exchange(conn net.Conn, frame []byte) ([]byte, error) {
	var rwc io.ReadWriteCloser = newCountingConn(conn,
		t.Perf.GetAtomicAdder(ReceivedOverWire), t.Perf.GetAtomicAdder(SentOverWire))
	if t.Config.Compression == CompressionS2 {
		rwc = CompressedReadWriteCloser(rwc)
		// flushes the compressed stream; conn itself is closed by the caller
		defer rwc.Close()
	}
	rwc = newCountingConn(rwc,
		t.Perf.GetAtomicAdder(ReceivedBytes), t.Perf.GetAtomicAdder(SentBytes))

	if err := writeFull(rwc, frame); err != nil {
		return nil, err
	}
	rsp, err := ReadResponseFrame(rwc)
	if err != nil {
		return nil, err
	}
	t.Log.Trace().Msgf("Received %d byte response", len(rsp))
	return rsp, nil
}
