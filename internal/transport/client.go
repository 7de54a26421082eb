package transport

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

// CreateSession dials uri, retrying while the peer is not up yet, and
// starts the session handshake. The returned session number is usable once
// NumSMResponses has grown to include it.
func (r *Rpc) CreateSession(uri string) (int, error) {
	var (
		nc  net.Conn
		err error
	)

	for attempt := 0; ; attempt++ {
		nc, err = net.DialTimeout("tcp", uri, r.opts.DialTimeout)
		if err == nil {
			break
		}
		if attempt >= r.opts.ConnectRetries {
			return -1, fmt.Errorf("create session to %s after %d attempts: %w", uri, attempt+1, err)
		}

		r.log.Debug("Retrying session connect", zap.String("uri", uri), zap.Int("attempt", attempt+1), zap.Error(err))

		select {
		case <-time.After(r.opts.ConnectRetryDelay):
		case <-r.done:
			return -1, ErrClosed
		}
	}

	s := &session{
		num:     len(r.sessions),
		uri:     uri,
		pending: make(map[uint64]*pendingRequest),
	}

	c, err := r.track(nc, s.num)
	if err != nil {
		return -1, err
	}
	s.conn = c
	r.sessions = append(r.sessions, s)

	r.reqNum++
	if err := r.send(c, frameConnect, r.reqNum, nil); err != nil {
		return -1, fmt.Errorf("create session to %s: %w", uri, err)
	}

	return s.num, nil
}

// NumSMResponses returns the number of completed session handshakes.
func (r *Rpc) NumSMResponses() int { return r.smResps }

// IsConnected reports whether the session handshake has completed and the
// connection is still up.
func (r *Rpc) IsConnected(sessionNum int) bool {
	if sessionNum < 0 || sessionNum >= len(r.sessions) {
		return false
	}
	return r.sessions[sessionNum].connected
}

// EnqueueRequest sends req on the session. When the response arrives it is
// copied into resp and cont runs on the event loop goroutine. Both buffers
// are in flight until then.
func (r *Rpc) EnqueueRequest(sessionNum int, req, resp *MsgBuffer, cont Continuation) error {
	if sessionNum < 0 || sessionNum >= len(r.sessions) {
		return fmt.Errorf("%w: %d", ErrUnknownSession, sessionNum)
	}
	s := r.sessions[sessionNum]
	if !s.connected {
		return fmt.Errorf("%w: %d (%s)", ErrSessionNotConnected, s.num, s.uri)
	}
	if req.inFlight || resp.inFlight {
		return ErrBufferInFlight
	}

	r.reqNum++
	if err := r.send(s.conn, frameRequest, r.reqNum, req.Bytes()); err != nil {
		return fmt.Errorf("enqueue request on session %d: %w", s.num, err)
	}

	req.inFlight = true
	resp.inFlight = true
	s.pending[r.reqNum] = &pendingRequest{req: req, resp: resp, cont: cont}

	return nil
}

func (r *Rpc) handleConnectAck(c *conn) {
	s := r.sessions[c.session]
	if s.connected {
		return
	}

	s.connected = true
	r.smResps++
	r.log.Debug("Session connected", zap.Int("session", s.num), zap.String("uri", s.uri))
}

func (r *Rpc) handleResponse(ev event) {
	if ev.conn.session < 0 {
		r.log.Warn("Dropping response on server connection", zap.Stringer("remote", ev.conn.nc.RemoteAddr()))
		return
	}

	s := r.sessions[ev.conn.session]
	p, ok := s.pending[ev.hdr.reqNum]
	if !ok {
		r.log.Warn("Dropping response for unknown request", zap.Int("session", s.num), zap.Uint64("req", ev.hdr.reqNum))
		return
	}
	delete(s.pending, ev.hdr.reqNum)

	p.resp.Fill(ev.payload)
	p.req.inFlight = false
	p.resp.inFlight = false

	if p.cont != nil {
		p.cont()
	}
}
