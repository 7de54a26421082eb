// Package server implements the echo side of the latency test: a responder
// that answers every request with a fixed-size reply, and the server loop
// that tracks how much of its time was spent processing.
package server

import (
	"go.uber.org/zap"

	"github.com/wesleyorama2/latprof/internal/transport"
)

// Replier sends a response for an inbound request. It is satisfied by
// *transport.Rpc.
type Replier interface {
	EnqueueResponse(h *transport.ReqHandle, buf *transport.MsgBuffer) error
}

// Responder answers every request with the same pre-allocated buffer. The
// request payload is never inspected.
type Responder struct {
	rpc      Replier
	resp     *transport.MsgBuffer
	log      *zap.Logger
	requests uint64
	failures uint64
}

// NewResponder creates a responder replying with resp.
func NewResponder(rpc Replier, resp *transport.MsgBuffer, log *zap.Logger) *Responder {
	return &Responder{rpc: rpc, resp: resp, log: log}
}

// Handle is the transport request handler.
func (r *Responder) Handle(h *transport.ReqHandle) {
	r.requests++

	if err := r.rpc.EnqueueResponse(h, r.resp); err != nil {
		r.failures++
		r.log.Warn("Failed to send response", zap.Error(err))
	}
}

// Requests returns the number of requests handled.
func (r *Responder) Requests() uint64 { return r.requests }

// Failures returns the number of responses that could not be sent.
func (r *Responder) Failures() uint64 { return r.failures }

// RespSize returns the reply size in bytes.
func (r *Responder) RespSize() int { return r.resp.DataSize() }
