package cluster

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
)

// ProtocolVersion is checked during the websocket handshake.
const ProtocolVersion = 1

const handshakeTimeout = 10 * time.Second

// hello is the first message a worker sends after connecting.
type hello struct {
	Rank    int `json:"rank"`
	Size    int `json:"size"`
	Version int `json:"version"`
}

// welcome is the hub's answer to hello.
type welcome struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Frames after the handshake are binary. A worker sends
//
//	seq uint64 | zstd(payload)
//
// and the hub answers every rank with
//
//	seq uint64 | n uint32 | n × (len uint32 | zstd(payload))
//
// The hub never looks inside payloads.

// Hub relays AllGather rounds between websocket workers.
type Hub struct {
	size     int
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   []*hubConn
	rounds  map[uint64]*hubRound
	joined  int
	left    int
	failed  error
	done    chan struct{}
	doneSet bool
}

type hubConn struct {
	rank int
	ws   *websocket.Conn
	wmu  sync.Mutex
}

type hubRound struct {
	parts   [][]byte
	arrived int
}

// NewHub returns a hub for a group of size workers.
func NewHub(size int) *Hub {
	return &Hub{
		size: size,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns:  make([]*hubConn, size),
		rounds: make(map[uint64]*hubRound),
		done:   make(chan struct{}),
	}
}

// Done is closed once every rank has joined and disconnected, or the group failed.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Err returns the failure that ended the group, if any.
func (h *Hub) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failed
}

func (h *Hub) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	c, err := h.handshake(ws)
	if err != nil {
		slog.Warn("worker rejected", "remote", r.RemoteAddr, "error", err)
		return
	}
	slog.Info("worker joined", "rank", c.rank, "remote", r.RemoteAddr)

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			h.leave(c, err)
			return
		}
		if len(msg) < 8 {
			h.fail(fmt.Errorf("rank %d sent a %d byte frame", c.rank, len(msg)))
			return
		}
		h.contribute(c.rank, binary.LittleEndian.Uint64(msg), msg[8:])
	}
}

func (h *Hub) handshake(ws *websocket.Conn) (*hubConn, error) {
	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var hi hello
	if err := ws.ReadJSON(&hi); err != nil {
		return nil, fmt.Errorf("reading hello: %w", err)
	}
	_ = ws.SetReadDeadline(time.Time{})

	reject := func(format string, args ...any) (*hubConn, error) {
		err := fmt.Errorf(format, args...)
		_ = ws.WriteJSON(welcome{Error: err.Error()})
		return nil, err
	}

	if hi.Version != ProtocolVersion {
		return reject("protocol version %d, hub speaks %d", hi.Version, ProtocolVersion)
	}
	if hi.Size != h.size {
		return reject("group size %d, hub expects %d", hi.Size, h.size)
	}
	if hi.Rank < 0 || hi.Rank >= h.size {
		return reject("rank %d out of range", hi.Rank)
	}

	h.mu.Lock()
	if h.conns[hi.Rank] != nil {
		h.mu.Unlock()
		return reject("rank %d already connected", hi.Rank)
	}
	c := &hubConn{rank: hi.Rank, ws: ws}
	h.conns[hi.Rank] = c
	h.joined++
	h.mu.Unlock()

	if err := c.writeJSON(welcome{OK: true}); err != nil {
		h.leave(c, err)
		return nil, err
	}
	return c, nil
}

func (c *hubConn) writeJSON(v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *hubConn) writeBinary(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, b)
}

func (h *Hub) contribute(rank int, seq uint64, payload []byte) {
	h.mu.Lock()
	r := h.rounds[seq]
	if r == nil {
		r = &hubRound{parts: make([][]byte, h.size)}
		h.rounds[seq] = r
	}
	r.parts[rank] = payload
	r.arrived++
	if r.arrived < h.size {
		h.mu.Unlock()
		return
	}
	delete(h.rounds, seq)
	conns := append([]*hubConn(nil), h.conns...)
	h.mu.Unlock()

	size := 12
	for _, p := range r.parts {
		size += 4 + len(p)
	}
	out := make([]byte, 0, size)
	out = binary.LittleEndian.AppendUint64(out, seq)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(r.parts)))
	for _, p := range r.parts {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(p)))
		out = append(out, p...)
	}

	for _, c := range conns {
		if c == nil {
			continue
		}
		if err := c.writeBinary(out); err != nil {
			h.fail(fmt.Errorf("sending round %d to rank %d: %w", seq, c.rank, err))
			return
		}
	}
}

// leave records a disconnect. A worker dropping out mid-run ends the group.
func (h *Hub) leave(c *hubConn, err error) {
	h.mu.Lock()
	h.conns[c.rank] = nil
	h.left++
	pending := len(h.rounds) > 0
	finished := h.joined == h.size && h.left == h.size
	h.mu.Unlock()

	if pending && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		h.fail(fmt.Errorf("rank %d disconnected: %w", c.rank, err))
		return
	}
	if finished {
		h.finish()
	}
}

func (h *Hub) fail(err error) {
	h.mu.Lock()
	if h.failed == nil {
		h.failed = err
	}
	conns := append([]*hubConn(nil), h.conns...)
	h.mu.Unlock()

	slog.Error("collective group failed", "error", err)
	for _, c := range conns {
		if c != nil {
			_ = c.ws.Close()
		}
	}
	h.finish()
}

func (h *Hub) finish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.doneSet {
		h.doneSet = true
		close(h.done)
	}
}

// wsComm is one worker's connection to a Hub.
type wsComm struct {
	ws   *websocket.Conn
	rank int
	size int
	seq  uint64
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// Dial connects rank to the hub at url (ws://host:port/path).
func Dial(ctx context.Context, url string, rank, size int) (Comm, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing hub: %w", err)
	}

	if err := ws.WriteJSON(hello{Rank: rank, Size: size, Version: ProtocolVersion}); err != nil {
		ws.Close()
		return nil, fmt.Errorf("sending hello: %w", err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var w welcome
	if err := ws.ReadJSON(&w); err != nil {
		ws.Close()
		return nil, fmt.Errorf("reading welcome: %w", err)
	}
	_ = ws.SetReadDeadline(time.Time{})
	if !w.OK {
		ws.Close()
		return nil, fmt.Errorf("hub rejected rank %d: %s", rank, w.Error)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		ws.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		ws.Close()
		return nil, err
	}
	return &wsComm{ws: ws, rank: rank, size: size, enc: enc, dec: dec}, nil
}

func (c *wsComm) Rank() int { return c.rank }
func (c *wsComm) Size() int { return c.size }

func (c *wsComm) AllGather(ctx context.Context, payload []byte) ([][]byte, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.ws.Close() })
	defer stop()

	c.seq++
	frame := binary.LittleEndian.AppendUint64(make([]byte, 0, 8+len(payload)), c.seq)
	frame = c.enc.EncodeAll(payload, frame)
	if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, c.ctxErr(ctx, fmt.Errorf("sending round %d: %w", c.seq, err))
	}

	_, msg, err := c.ws.ReadMessage()
	if err != nil {
		return nil, c.ctxErr(ctx, fmt.Errorf("receiving round %d: %w", c.seq, err))
	}
	return c.unpack(msg)
}

func (c *wsComm) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Join(ctx.Err(), err)
	}
	return err
}

func (c *wsComm) unpack(msg []byte) ([][]byte, error) {
	le := binary.LittleEndian
	if len(msg) < 12 {
		return nil, fmt.Errorf("round %d: short reply", c.seq)
	}
	if seq := le.Uint64(msg); seq != c.seq {
		return nil, fmt.Errorf("reply for round %d, waiting on %d", seq, c.seq)
	}
	n := int(le.Uint32(msg[8:]))
	if n != c.size {
		return nil, fmt.Errorf("round %d: %d parts for group of %d", c.seq, n, c.size)
	}

	rest := msg[12:]
	parts := make([][]byte, n)
	for i := range parts {
		if len(rest) < 4 {
			return nil, fmt.Errorf("round %d: truncated part %d", c.seq, i)
		}
		l := int(le.Uint32(rest))
		rest = rest[4:]
		if len(rest) < l {
			return nil, fmt.Errorf("round %d: truncated part %d", c.seq, i)
		}
		p, err := c.dec.DecodeAll(rest[:l], nil)
		if err != nil {
			return nil, fmt.Errorf("round %d: decompressing part %d: %w", c.seq, i, err)
		}
		parts[i] = p
		rest = rest[l:]
	}
	return parts, nil
}

func (c *wsComm) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"), time.Now().Add(time.Second))
	c.enc.Close()
	c.dec.Close()
	return c.ws.Close()
}
