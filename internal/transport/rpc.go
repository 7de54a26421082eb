// Package transport is a small request/response RPC substrate over TCP.
//
// All user callbacks (request handlers and request continuations) run on
// the goroutine that calls RunEventLoop. Reader goroutines only decode
// frames and queue them; they never touch application state. This gives
// each role a single cooperative thread in the style of kernel-bypass RPC
// libraries, on top of Go's network poller.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrBufferInFlight is returned when a buffer is resized or reused
	// while the transport still owns it.
	ErrBufferInFlight = errors.New("message buffer is in flight")

	// ErrBufferTooSmall is returned when a resize exceeds the capacity.
	ErrBufferTooSmall = errors.New("message buffer capacity exceeded")

	// ErrUnknownSession is returned for session numbers never created.
	ErrUnknownSession = errors.New("unknown session")

	// ErrSessionNotConnected is returned when a request targets a session
	// whose handshake has not completed or whose connection was lost.
	ErrSessionNotConnected = errors.New("session not connected")

	// ErrBadFrame is returned for malformed wire frames.
	ErrBadFrame = errors.New("malformed frame")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("rpc closed")
)

// Continuation is invoked on the event loop goroutine when the response to
// an enqueued request has been copied into its response buffer.
type Continuation func()

// ReqHandler is invoked on the event loop goroutine for every inbound
// request. It must not block.
type ReqHandler func(h *ReqHandle)

// Options configures an Rpc.
type Options struct {
	// Clock supplies cycle timestamps (default: MonotonicClock)
	Clock Clock

	// Logger receives diagnostics (default: no-op)
	Logger *zap.Logger

	// EventQueueSize bounds frames decoded but not yet handled (default: 1024)
	EventQueueSize int

	// ConnectRetries is how many times a failed dial is retried (default: 50)
	ConnectRetries int

	// ConnectRetryDelay is the pause between dial attempts (default: 100ms)
	ConnectRetryDelay time.Duration

	// DialTimeout bounds a single dial attempt (default: 1s)
	DialTimeout time.Duration
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		EventQueueSize:    1024,
		ConnectRetries:    50,
		ConnectRetryDelay: 100 * time.Millisecond,
		DialTimeout:       time.Second,
	}
}

// Rpc is one endpoint of the transport. A process creates one Rpc per role
// thread: servers Listen and register a handler, clients create sessions and
// enqueue requests.
//
// Apart from Close, Rpc methods must be called from the goroutine that runs
// the event loop.
type Rpc struct {
	opts   Options
	clock  Clock
	log    *zap.Logger
	events chan event
	done   chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
	connsMu   sync.Mutex
	conns     []*conn
	closed    bool

	// client state
	sessions []*session
	smResps  int
	reqNum   uint64

	// server state
	listener         net.Listener
	handler          ReqHandler
	firstPktReceived bool
	nonIdleCycles    uint64
}

type conn struct {
	nc      net.Conn
	session int // -1 for server-side connections
	wbuf    []byte
}

type event struct {
	conn    *conn
	hdr     header
	payload []byte
	err     error
}

type session struct {
	num       int
	uri       string
	conn      *conn
	connected bool
	pending   map[uint64]*pendingRequest
}

type pendingRequest struct {
	req  *MsgBuffer
	resp *MsgBuffer
	cont Continuation
}

// New creates an Rpc. Zero-valued options fall back to DefaultOptions.
func New(opts Options) *Rpc {
	def := DefaultOptions()
	if opts.Clock == nil {
		opts.Clock = NewMonotonicClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.EventQueueSize <= 0 {
		opts.EventQueueSize = def.EventQueueSize
	}
	if opts.ConnectRetries < 0 {
		opts.ConnectRetries = 0
	} else if opts.ConnectRetries == 0 {
		opts.ConnectRetries = def.ConnectRetries
	}
	if opts.ConnectRetryDelay <= 0 {
		opts.ConnectRetryDelay = def.ConnectRetryDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = def.DialTimeout
	}

	return &Rpc{
		opts:   opts,
		clock:  opts.Clock,
		log:    opts.Logger,
		events: make(chan event, opts.EventQueueSize),
		done:   make(chan struct{}),
	}
}

// Clock returns the clock used for timestamps.
func (r *Rpc) Clock() Clock { return r.clock }

// RunEventLoop processes transport events for up to d and returns. Handlers
// and continuations run synchronously inside this call.
func (r *Rpc) RunEventLoop(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case ev := <-r.events:
			start := r.clock.Cycles()
			r.handle(ev)
			r.nonIdleCycles += r.clock.Cycles() - start
		case <-timer.C:
			return
		case <-r.done:
			return
		}
	}
}

// AllocMsgBuffer allocates a buffer of the given capacity.
func (r *Rpc) AllocMsgBuffer(size int) (*MsgBuffer, error) {
	if size < 0 || size > MaxMsgSize {
		return nil, fmt.Errorf("alloc message buffer of %d bytes: limit is %d", size, MaxMsgSize)
	}
	return NewMsgBuffer(size), nil
}

// ResizeMsgBuffer changes the data size of a buffer that is not in flight.
func (r *Rpc) ResizeMsgBuffer(m *MsgBuffer, size int) error {
	return m.Resize(size)
}

// FirstPacketReceived reports whether any inbound frame has been handled.
func (r *Rpc) FirstPacketReceived() bool { return r.firstPktReceived }

// NonIdleCycles returns the cycles spent handling events.
func (r *Rpc) NonIdleCycles() uint64 { return r.nonIdleCycles }

// Close stops all goroutines and closes every connection. It is safe to
// call from any goroutine and more than once.
func (r *Rpc) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)

		r.connsMu.Lock()
		r.closed = true
		if r.listener != nil {
			err = r.listener.Close()
		}
		for _, c := range r.conns {
			_ = c.nc.Close()
		}
		r.connsMu.Unlock()

		r.wg.Wait()
	})
	return err
}

func (r *Rpc) handle(ev event) {
	if ev.err != nil {
		r.connectionLost(ev.conn, ev.err)
		return
	}

	switch ev.hdr.typ {
	case frameConnect:
		r.firstPktReceived = true
		if err := r.send(ev.conn, frameConnectAck, ev.hdr.reqNum, nil); err != nil {
			r.log.Warn("Failed to acknowledge session", zap.Stringer("remote", ev.conn.nc.RemoteAddr()), zap.Error(err))
		}
	case frameConnectAck:
		r.handleConnectAck(ev.conn)
	case frameRequest:
		r.firstPktReceived = true
		r.handleRequest(ev)
	case frameResponse:
		r.handleResponse(ev)
	}
}

func (r *Rpc) connectionLost(c *conn, err error) {
	select {
	case <-r.done:
		return
	default:
	}

	if c.session < 0 {
		r.untrack(c)
		r.log.Debug("Client connection closed", zap.Stringer("remote", c.nc.RemoteAddr()), zap.Error(err))
		return
	}

	s := r.sessions[c.session]
	s.connected = false
	r.log.Warn("Session lost",
		zap.Int("session", s.num),
		zap.String("uri", s.uri),
		zap.Int("pending", len(s.pending)),
		zap.Error(err))

	for num, p := range s.pending {
		p.req.inFlight = false
		p.resp.inFlight = false
		delete(s.pending, num)
	}
}

// send writes one frame synchronously.
func (r *Rpc) send(c *conn, typ frameType, reqNum uint64, payload []byte) error {
	c.wbuf = appendFrame(c.wbuf[:0], typ, reqNum, payload)
	if _, err := c.nc.Write(c.wbuf); err != nil {
		return fmt.Errorf("write %s frame: %w", typ, err)
	}
	return nil
}

// track registers a connection and starts its reader. It fails once the
// Rpc is closed.
func (r *Rpc) track(nc net.Conn, sessionNum int) (*conn, error) {
	c := &conn{nc: nc, session: sessionNum}

	r.connsMu.Lock()
	defer r.connsMu.Unlock()

	if r.closed {
		_ = nc.Close()
		return nil, ErrClosed
	}
	r.conns = append(r.conns, c)

	r.wg.Add(1)
	go r.readLoop(c)

	return c, nil
}

// untrack closes a server-side connection and forgets it.
func (r *Rpc) untrack(c *conn) {
	r.connsMu.Lock()
	defer r.connsMu.Unlock()

	for i, tracked := range r.conns {
		if tracked == c {
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			break
		}
	}
	_ = c.nc.Close()
}

func (r *Rpc) readLoop(c *conn) {
	defer r.wg.Done()

	br := bufio.NewReaderSize(c.nc, 64<<10)
	scratch := make([]byte, headerSize)

	for {
		hdr, payload, err := readFrame(br, scratch)

		select {
		case r.events <- event{conn: c, hdr: hdr, payload: payload, err: err}:
		case <-r.done:
			return
		}

		if err != nil {
			return
		}
	}
}
