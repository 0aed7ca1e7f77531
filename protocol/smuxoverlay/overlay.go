// Package smuxoverlay is a minimal protocol.Overlay: one smux stream per RPC
// call over a long-lived net.Conn to a peer, framed as a length-prefixed
// method name followed by a length-prefixed JSON body. Kademlia-style
// routing to an arbitrary nodeID is not implemented here - callers dial (or
// accept) the net.Conn for a peer themselves and hand it to Connect/Serve.
package smuxoverlay

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/xtaci/smux"

	"gitlab.com/shardnet/core/core"
)

// maxFrameSize bounds a single method-name or body frame. RPC control
// traffic is small JSON; shard bytes travel over the shard package's HTTP
// transfer endpoints, never through here.
const maxFrameSize = 4 << 20

// Overlay implements protocol.Overlay on top of smux-multiplexed
// connections, one smux.Session per peer.
type Overlay struct {
	mu       sync.Mutex
	sessions map[string]*smux.Session

	handlersMu sync.RWMutex
	handlers   map[string]func(ctx context.Context, peer string, body []byte) ([]byte, error)
}

// New returns an empty Overlay. Sessions are added via Connect or Serve.
func New() *Overlay {
	return &Overlay{
		sessions: make(map[string]*smux.Session),
		handlers: make(map[string]func(context.Context, string, []byte) ([]byte, error)),
	}
}

// Connect opens a client-side smux session over conn and associates it with
// nodeID for future Send calls. The caller retains ownership of conn; it is
// closed when the session is closed.
func (o *Overlay) Connect(nodeID string, conn net.Conn) error {
	sess, err := smux.Client(conn, nil)
	if err != nil {
		return core.Wrap(core.KindTransport, err, "could not open smux session to %s", nodeID)
	}
	o.mu.Lock()
	o.sessions[nodeID] = sess
	o.mu.Unlock()
	return nil
}

// Serve accepts a server-side smux session over conn and dispatches every
// inbound stream to the handler registered for its method, attributing the
// call to peerID. Serve blocks until the session closes.
func (o *Overlay) Serve(peerID string, conn net.Conn) error {
	sess, err := smux.Server(conn, nil)
	if err != nil {
		return core.Wrap(core.KindTransport, err, "could not accept smux session from %s", peerID)
	}
	defer sess.Close()

	for {
		stream, err := sess.AcceptStream()
		if err != nil {
			return nil
		}
		go o.handleStream(peerID, stream)
	}
}

func (o *Overlay) handleStream(peerID string, stream *smux.Stream) {
	defer stream.Close()

	methodBytes, err := readFrame(stream)
	if err != nil {
		return
	}
	body, err := readFrame(stream)
	if err != nil {
		return
	}

	o.handlersMu.RLock()
	fn, ok := o.handlers[string(methodBytes)]
	o.handlersMu.RUnlock()
	if !ok {
		writeFrame(stream, []byte(`{"error":{"message":"unknown method"}}`))
		return
	}

	resp, err := fn(context.Background(), peerID, body)
	if err != nil {
		writeFrame(stream, []byte(`{"error":{"message":"`+err.Error()+`"}}`))
		return
	}
	writeFrame(stream, resp)
}

// Handle registers fn as the implementation of method for inbound calls.
func (o *Overlay) Handle(method string, fn func(ctx context.Context, peer string, body []byte) ([]byte, error)) {
	o.handlersMu.Lock()
	defer o.handlersMu.Unlock()
	o.handlers[method] = fn
}

// Send opens one stream on the session already connected to nodeID, writes
// the method and body frames, and blocks for the response frame.
func (o *Overlay) Send(ctx context.Context, nodeID string, method string, body []byte) ([]byte, error) {
	o.mu.Lock()
	sess, ok := o.sessions[nodeID]
	o.mu.Unlock()
	if !ok {
		return nil, core.NewError(core.KindTransport, "no session open to %s", nodeID)
	}

	stream, err := sess.OpenStream()
	if err != nil {
		return nil, core.Wrap(core.KindTransport, err, "could not open stream to %s", nodeID)
	}
	defer stream.Close()

	if deadline, ok := ctx.Deadline(); ok {
		stream.SetDeadline(deadline)
	}

	if err := writeFrame(stream, []byte(method)); err != nil {
		return nil, core.Wrap(core.KindTransport, err, "could not write method frame")
	}
	if err := writeFrame(stream, body); err != nil {
		return nil, core.Wrap(core.KindTransport, err, "could not write body frame")
	}

	resp, err := readFrame(stream)
	if err != nil {
		return nil, core.Wrap(core.KindTransport, err, "could not read response frame")
	}
	return resp, nil
}

// Close closes every open session. Sessions opened after Close returns are
// unaffected.
func (o *Overlay) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var first error
	for id, sess := range o.sessions {
		if err := sess.Close(); err != nil && first == nil {
			first = err
		}
		delete(o.sessions, id)
	}
	return first
}

func writeFrame(w io.Writer, b []byte) error {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(b)))
	if _, err := w.Write(length[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(length[:])
	if n > maxFrameSize {
		return nil, core.NewError(core.KindValidation, "frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
