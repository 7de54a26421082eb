// Package client implements the closed-loop latency client: a request
// pipeline with exactly one request in flight and the reporting loop that
// turns its samples into per-interval results.
package client

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/latprof/internal/latency"
	"github.com/wesleyorama2/latprof/internal/session"
	"github.com/wesleyorama2/latprof/internal/sweep"
	"github.com/wesleyorama2/latprof/internal/transport"
)

// ErrResponseSize is the fatal protocol error raised when a response does
// not have the configured reply size.
var ErrResponseSize = errors.New("unexpected response size")

// Transport is the part of the RPC substrate the client depends on. It is
// satisfied by *transport.Rpc.
type Transport interface {
	session.Connector

	EnqueueRequest(sessionNum int, req, resp *transport.MsgBuffer, cont transport.Continuation) error
	AllocMsgBuffer(size int) (*transport.MsgBuffer, error)
	ResizeMsgBuffer(m *transport.MsgBuffer, size int) error
	Clock() transport.Clock
}

// Pipeline keeps exactly one request outstanding. Every completion records
// its latency and immediately issues the next request to a randomly chosen
// session.
//
// The embedded pool holds the sessions; Connect must finish before Start.
type Pipeline struct {
	session.Pool

	rpc      Transport
	clock    transport.Clock
	sweep    *sweep.Controller
	recorder *latency.Recorder
	log      *zap.Logger
	verbose  bool

	req      *transport.MsgBuffer
	resp     *transport.MsgBuffer
	respSize int
	reqSize  int
	cont     transport.Continuation

	// the single in-flight request
	startCycles uint64
	target      int
	inFlight    int

	discardNext bool
	samples     uint64
	rejected    uint64
	err         error
}

// PipelineConfig contains configuration for Pipeline.
type PipelineConfig struct {
	// RespSize is the reply size every response must have
	RespSize int

	// Seed seeds session selection; zero picks a random seed
	Seed uint64

	// Verbose logs every request and response at debug level
	Verbose bool
}

// NewPipeline allocates the request buffer for the largest sweep size and
// the response buffer for the reply size. The first completion after
// Start is discarded as warmup.
func NewPipeline(rpc Transport, sw *sweep.Controller, rec *latency.Recorder, config PipelineConfig, log *zap.Logger) (*Pipeline, error) {
	if config.RespSize <= 0 {
		return nil, fmt.Errorf("response size must be positive, got %d", config.RespSize)
	}

	req, err := rpc.AllocMsgBuffer(sw.End())
	if err != nil {
		return nil, fmt.Errorf("failed to allocate request buffer: %w", err)
	}
	resp, err := rpc.AllocMsgBuffer(config.RespSize)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate response buffer: %w", err)
	}
	if err := rpc.ResizeMsgBuffer(req, sw.Current()); err != nil {
		return nil, fmt.Errorf("failed to size request buffer: %w", err)
	}

	p := &Pipeline{
		Pool:        session.NewPool(config.Seed),
		rpc:         rpc,
		clock:       rpc.Clock(),
		sweep:       sw,
		recorder:    rec,
		log:         log,
		verbose:     config.Verbose,
		req:         req,
		resp:        resp,
		respSize:    config.RespSize,
		reqSize:     sw.Current(),
		discardNext: true,
	}
	p.cont = p.onCompletion

	return p, nil
}

// Start issues the first request.
func (p *Pipeline) Start() error {
	if p.Len() == 0 {
		return errors.New("no sessions to send requests to")
	}
	if p.inFlight != 0 {
		return errors.New("pipeline already started")
	}

	if err := p.issue(); err != nil {
		p.fail(err)
		return err
	}
	return nil
}

// issue sends the next request. A pending sweep size is applied here, when
// no request holds the buffers.
func (p *Pipeline) issue() error {
	if want := p.sweep.Current(); want != p.reqSize {
		if err := p.rpc.ResizeMsgBuffer(p.req, want); err != nil {
			return fmt.Errorf("failed to resize request buffer to %d bytes: %w", want, err)
		}
		if err := p.rpc.ResizeMsgBuffer(p.resp, p.respSize); err != nil {
			return fmt.Errorf("failed to resize response buffer to %d bytes: %w", p.respSize, err)
		}
		p.reqSize = want
	}

	index, handle := p.Pick()
	p.target = index
	p.startCycles = p.clock.Cycles()

	if err := p.rpc.EnqueueRequest(handle, p.req, p.resp, p.cont); err != nil {
		// Same outcome as losing the session of the in-flight request:
		// nothing is outstanding and the loop reports stalls.
		if errors.Is(err, transport.ErrSessionNotConnected) {
			p.log.Warn("Session lost, no further requests are sent", zap.String("uri", p.URI(index)), zap.Error(err))
			return nil
		}
		return fmt.Errorf("failed to enqueue request to %s: %w", p.URI(index), err)
	}
	p.inFlight++

	if p.verbose {
		p.log.Debug("Sending request", zap.Int("size", p.req.DataSize()), zap.Int("server", index))
	}

	return nil
}

// onCompletion is the continuation of every request.
func (p *Pipeline) onCompletion() {
	elapsed := p.clock.Cycles() - p.startCycles
	p.inFlight--

	if got := p.resp.DataSize(); got != p.respSize {
		p.fail(fmt.Errorf("%w: server %s sent %d bytes, want %d", ErrResponseSize, p.URI(p.target), got, p.respSize))
		return
	}

	if p.verbose {
		p.log.Debug("Received response", zap.Int("size", p.resp.DataSize()))
	}

	latencyUs := transport.ToUsec(elapsed, p.clock.FreqGHz())

	switch {
	case p.discardNext:
		p.discardNext = false
	default:
		if err := p.recorder.Record(latencyUs); err != nil {
			p.rejected++
			p.log.Debug("Rejected latency sample", zap.Error(err))
		} else {
			p.samples++
		}
	}

	if err := p.issue(); err != nil {
		p.fail(err)
	}
}

func (p *Pipeline) fail(err error) {
	if p.err != nil {
		return
	}
	p.err = err
	p.log.Error("Request pipeline stopped", zap.Error(err))
}

// ArmWarmup discards the next completed request.
func (p *Pipeline) ArmWarmup() { p.discardNext = true }

// Samples returns the number of latencies recorded since start.
func (p *Pipeline) Samples() uint64 { return p.samples }

// Rejected returns the number of latencies the histogram refused.
func (p *Pipeline) Rejected() uint64 { return p.rejected }

// RequestSize returns the payload size of the current request.
func (p *Pipeline) RequestSize() int { return p.reqSize }

// InFlight returns the number of outstanding requests: 0 or 1.
func (p *Pipeline) InFlight() int { return p.inFlight }

// Err returns the fatal error that stopped the pipeline, if any.
func (p *Pipeline) Err() error { return p.err }

// ConnectAll establishes a session to every uri. See session.Pool.Connect.
func (p *Pipeline) ConnectAll(uris []string, tick time.Duration, stop session.Stopper) error {
	return p.Connect(p.rpc, uris, tick, stop, p.log)
}
