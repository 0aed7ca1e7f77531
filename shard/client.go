package shard

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gitlab.com/shardnet/core/core"
)

// TTFB is the deadline a PullStream allows before its first payload byte
// arrives, measured from the stream's first Read call, not from the moment
// the authenticate frame is sent.
const TTFB = 30 * time.Second

// TTWA is the deadline a PushStream allows the server to acknowledge close
// after the last byte has been written.
const TTWA = 5 * time.Second

// Operation names the authenticate frame's intent.
type Operation string

const (
	OperationPush Operation = "PUSH"
	OperationPull Operation = "PULL"
)

// authenticateFrame is the first client->server message on every stream.
type authenticateFrame struct {
	Token     string    `json:"token"`
	Hash      string    `json:"hash"`
	Operation Operation `json:"operation"`
}

// Close codes, matching the wire format's error vocabulary.
const (
	CloseUnauthorizedToken = 4001
	CloseInvalidMessage    = 4002
	CloseInvalidOperation  = 4003
	CloseFailedIntegrity   = 4004
	CloseUnexpected        = 4005
)

// Upgrader upgrades an incoming HTTP connection to the shard-transfer
// websocket protocol.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// PullStream is a readable bytestream that authenticates once, then enforces
// the time-to-first-byte deadline.
type PullStream struct {
	conn      *websocket.Conn
	once      sync.Once
	destroyed bool
	mu        sync.Mutex
	firstByte bool
}

// Dial opens a websocket connection to addr and sends the authenticate
// frame for hash, token and operation, returning the connection for either
// a push or a pull.
func Dial(addr, token, hash string, operation Operation) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, core.Wrap(core.KindTransport, err, "could not dial shard transfer endpoint")
	}
	frame := authenticateFrame{Token: token, Hash: hash, Operation: operation}
	b, err := json.Marshal(frame)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		conn.Close()
		return nil, core.Wrap(core.KindTransport, err, "could not send authenticate frame")
	}
	return conn, nil
}

// NewPullStream dials addr and begins a PULL transfer of hash.
func NewPullStream(addr, token, hash string) (*PullStream, error) {
	conn, err := Dial(addr, token, hash, OperationPull)
	if err != nil {
		return nil, err
	}
	return &PullStream{conn: conn}, nil
}

// Read blocks for the next binary frame, enforcing TTFB on the first call.
func (p *PullStream) Read() ([]byte, error) {
	p.mu.Lock()
	first := !p.firstByte
	destroyed := p.destroyed
	p.mu.Unlock()
	if destroyed {
		return nil, core.NewError(core.KindTransport, "stream destroyed")
	}

	if first {
		p.conn.SetReadDeadline(time.Now().Add(TTFB))
	} else {
		p.conn.SetReadDeadline(time.Time{})
	}

	_, b, err := p.conn.ReadMessage()
	if err != nil {
		if ne, ok := err.(interface{ Timeout() bool }); first && ok && ne.Timeout() {
			return nil, core.NewError(core.KindTimeout, "Did not receive data within max Time-To-First-Byte")
		}
		if isNormalClose(err) {
			return nil, nil
		}
		return nil, classifyCloseError(err)
	}

	p.mu.Lock()
	p.firstByte = true
	p.mu.Unlock()

	return b, nil
}

// isNormalClose reports whether err is the server's expected end-of-stream
// close (code 1000).
func isNormalClose(err error) bool {
	ce, ok := err.(*websocket.CloseError)
	return ok && ce.Code == websocket.CloseNormalClosure
}

// Destroy idempotently tears down the underlying socket.
func (p *PullStream) Destroy() {
	p.once.Do(func() {
		p.mu.Lock()
		p.destroyed = true
		p.mu.Unlock()
		p.conn.Close()
	})
}

// PushStream is a writable bytestream that authenticates once, then enforces
// the time-to-write-acknowledgement deadline after the last byte is sent.
type PushStream struct {
	conn      *websocket.Conn
	once      sync.Once
	mu        sync.Mutex
	destroyed bool
}

// NewPushStream dials addr and begins a PUSH transfer of hash.
func NewPushStream(addr, token, hash string) (*PushStream, error) {
	conn, err := Dial(addr, token, hash, OperationPush)
	if err != nil {
		return nil, err
	}
	return &PushStream{conn: conn}, nil
}

// Write sends one binary frame of shard bytes.
func (p *PushStream) Write(b []byte) error {
	p.mu.Lock()
	destroyed := p.destroyed
	p.mu.Unlock()
	if destroyed {
		return core.NewError(core.KindTransport, "stream destroyed")
	}
	if err := p.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return core.Wrap(core.KindTransport, err, "write failed")
	}
	return nil
}

// Flush arms the TTWA deadline and waits for the server's normal close.
func (p *PushStream) Flush() error {
	p.conn.SetReadDeadline(time.Now().Add(TTWA))
	_, _, err := p.conn.ReadMessage()
	if err == nil {
		return nil
	}
	if ce, ok := err.(*websocket.CloseError); ok && ce.Code == websocket.CloseNormalClosure {
		return nil
	}
	if websocket.IsUnexpectedCloseError(err) {
		return classifyCloseError(err)
	}
	return core.NewError(core.KindTimeout, "Did not close channel by max Time-To-Write-Acknowledgement")
}

// Destroy idempotently tears down the underlying socket.
func (p *PushStream) Destroy() {
	p.once.Do(func() {
		p.mu.Lock()
		p.destroyed = true
		p.mu.Unlock()
		p.conn.Close()
	})
}

func classifyCloseError(err error) error {
	ce, ok := err.(*websocket.CloseError)
	if !ok {
		return core.Wrap(core.KindTransport, err, "unexpected")
	}
	switch ce.Code {
	case CloseUnauthorizedToken:
		return core.NewError(core.KindAuth, ce.Text)
	case CloseInvalidMessage, CloseInvalidOperation:
		return core.NewError(core.KindValidation, ce.Text)
	case CloseFailedIntegrity:
		return core.NewError(core.KindIntegrity, ce.Text)
	default:
		return core.NewError(core.KindTransport, ce.Text)
	}
}
