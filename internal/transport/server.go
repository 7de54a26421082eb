package transport

import (
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
)

// ReqHandle identifies an inbound request until it is answered.
type ReqHandle struct {
	conn    *conn
	reqNum  uint64
	payload []byte
}

// Request returns the request payload.
func (h *ReqHandle) Request() []byte { return h.payload }

// SetReqHandler registers the handler invoked for every inbound request.
func (r *Rpc) SetReqHandler(handler ReqHandler) {
	r.handler = handler
}

// Listen starts accepting sessions on addr. It returns once the listener is
// bound; connections are accepted in the background.
func (r *Rpc) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	r.connsMu.Lock()
	if r.closed {
		r.connsMu.Unlock()
		_ = ln.Close()
		return ErrClosed
	}
	r.listener = ln
	r.wg.Add(1)
	r.connsMu.Unlock()

	go r.acceptLoop(ln)

	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (r *Rpc) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// EnqueueResponse sends buf as the reply to h. The write happens before it
// returns, so buf may be reused immediately.
func (r *Rpc) EnqueueResponse(h *ReqHandle, buf *MsgBuffer) error {
	if err := r.send(h.conn, frameResponse, h.reqNum, buf.Bytes()); err != nil {
		return fmt.Errorf("enqueue response to %s: %w", h.conn.nc.RemoteAddr(), err)
	}
	return nil
}

func (r *Rpc) acceptLoop(ln net.Listener) {
	defer r.wg.Done()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				r.log.Error("Accept failed", zap.Error(err))
			}
			return
		}

		if _, err := r.track(nc, -1); err != nil {
			return
		}
	}
}

func (r *Rpc) handleRequest(ev event) {
	if r.handler == nil {
		r.log.Warn("No request handler registered", zap.Stringer("remote", ev.conn.nc.RemoteAddr()))
		return
	}

	r.handler(&ReqHandle{conn: ev.conn, reqNum: ev.hdr.reqNum, payload: ev.payload})
}
