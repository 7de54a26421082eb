package server

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/latprof/internal/metrics"
	"github.com/wesleyorama2/latprof/internal/report"
	"github.com/wesleyorama2/latprof/internal/transport"
)

// Transport is the part of the RPC substrate the server depends on. It is
// satisfied by *transport.Rpc.
type Transport interface {
	Replier

	RunEventLoop(d time.Duration)
	SetReqHandler(handler transport.ReqHandler)
	AllocMsgBuffer(size int) (*transport.MsgBuffer, error)
	FirstPacketReceived() bool
	NonIdleCycles() uint64
	Clock() transport.Clock
}

// Stopper reports whether shutdown was requested.
type Stopper interface {
	Requested() bool
}

// State is the phase of the server loop.
type State int

const (
	StateRunning State = iota
	StateTerminating
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "terminating"
}

// LoopConfig contains configuration for the server loop.
type LoopConfig struct {
	// Tick is the event loop slice between stop checks (default: 1s)
	Tick time.Duration

	// RespSize is the reply size in bytes
	RespSize int
}

// Loop runs the server until a stop is requested.
type Loop struct {
	rpc       Transport
	responder *Responder
	console   *report.Console
	metrics   *metrics.Server
	stop      Stopper
	log       *zap.Logger
	config    LoopConfig

	state State
}

// NewLoop allocates the reply buffer and registers the responder on rpc.
// metrics may be nil.
func NewLoop(rpc Transport, console *report.Console, m *metrics.Server, stop Stopper, config LoopConfig, log *zap.Logger) (*Loop, error) {
	if config.Tick <= 0 {
		config.Tick = time.Second
	}
	if config.RespSize <= 0 {
		return nil, fmt.Errorf("response size must be positive, got %d", config.RespSize)
	}

	resp, err := rpc.AllocMsgBuffer(config.RespSize)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate response buffer: %w", err)
	}

	responder := NewResponder(rpc, resp, log)
	rpc.SetReqHandler(responder.Handle)

	return &Loop{
		rpc:       rpc,
		responder: responder,
		console:   console,
		metrics:   m,
		stop:      stop,
		log:       log,
		config:    config,
		state:     StateRunning,
	}, nil
}

// State returns the current phase.
func (l *Loop) State() State { return l.state }

// Responder returns the request handler.
func (l *Loop) Responder() *Responder { return l.responder }

// Run ticks until stop is requested, then prints and returns the final
// utilization.
func (l *Loop) Run() Utilization {
	clock := l.rpc.Clock()
	acc := NewIdleAccounting(clock.Cycles())

	var reported uint64
	l.state = StateRunning

	for {
		l.rpc.RunEventLoop(l.config.Tick)

		now := clock.Cycles()
		acc.Observe(now, l.rpc.FirstPacketReceived())

		requests := l.responder.Requests()
		l.metrics.AddRequests(requests - reported)
		reported = requests
		l.metrics.SetProcessingRatio(acc.Ratio(now, l.rpc.NonIdleCycles(), clock.FreqGHz()).Percent)

		if l.stop.Requested() {
			break
		}
	}

	l.state = StateTerminating

	u := acc.Ratio(clock.Cycles(), l.rpc.NonIdleCycles(), clock.FreqGHz())
	l.console.ProcessingRatio(u.TotalUs, u.ProcessingUs, u.Percent)
	l.log.Info("Server finished",
		zap.Uint64("requests", l.responder.Requests()),
		zap.Uint64("failedResponses", l.responder.Failures()),
		zap.Float64("processingPercent", u.Percent))

	return u
}
