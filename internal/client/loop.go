package client

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/latprof/internal/metrics"
	"github.com/wesleyorama2/latprof/internal/report"
	"github.com/wesleyorama2/latprof/internal/session"
)

// State is the phase of the client loop.
type State int

const (
	StateConnecting State = iota
	StateSteady
	StateDraining
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSteady:
		return "steady"
	case StateDraining:
		return "draining"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// LoopConfig contains configuration for the client loop.
type LoopConfig struct {
	// Tick is the length of one reporting interval (default: 1s)
	Tick time.Duration

	// TestDuration bounds the steady phase
	TestDuration time.Duration

	// URIs are the server endpoints, one session each
	URIs []string
}

// Loop drives the pipeline in fixed ticks and reports once per tick.
type Loop struct {
	pipeline *Pipeline
	console  *report.Console
	metrics  *metrics.Client
	stop     session.Stopper
	log      *zap.Logger
	config   LoopConfig

	state State
}

// NewLoop creates a client loop. metrics may be nil.
func NewLoop(p *Pipeline, console *report.Console, m *metrics.Client, stop session.Stopper, config LoopConfig, log *zap.Logger) *Loop {
	if config.Tick <= 0 {
		config.Tick = time.Second
	}

	return &Loop{
		pipeline: p,
		console:  console,
		metrics:  m,
		stop:     stop,
		log:      log,
		config:   config,
		state:    StateConnecting,
	}
}

// State returns the current phase.
func (l *Loop) State() State { return l.state }

// Run connects every session, then measures until the test duration has
// elapsed or a stop is requested. A stop during connect is not an error.
func (l *Loop) Run() error {
	l.state = StateConnecting
	if err := l.pipeline.ConnectAll(l.config.URIs, l.config.Tick, l.stop); err != nil {
		if errors.Is(err, session.ErrAborted) {
			l.state = StateAborted
			l.log.Info("Stop requested before all sessions connected", zap.Int("connected", l.pipeline.Len()))
			return nil
		}
		return err
	}

	l.state = StateSteady
	l.log.Info("All sessions connected", zap.Int("sessions", l.pipeline.Len()))

	l.console.Header()
	if err := l.pipeline.Start(); err != nil {
		l.state = StateDraining
		return err
	}

	var prevSamples, prevRejected uint64
	rec := l.pipeline.recorder

	for elapsed := time.Duration(0); elapsed < l.config.TestDuration; elapsed += l.config.Tick {
		l.pipeline.rpc.RunEventLoop(l.config.Tick)

		if err := l.pipeline.Err(); err != nil {
			l.state = StateDraining
			return err
		}
		if l.stop.Requested() {
			break
		}

		// rejected samples are responses too; only silence is a stall
		samples, rejected := l.pipeline.Samples(), l.pipeline.Rejected()
		if samples == prevSamples && rejected == prevRejected {
			l.console.NoResponses(l.config.Tick)
			l.metrics.ObserveStall()
			l.log.Warn("No new responses", zap.Duration("interval", l.config.Tick), zap.Int("reqSize", l.pipeline.RequestSize()))
			continue
		}

		iv := report.Interval{
			ReqSize:    l.pipeline.RequestSize(),
			Latency:    rec.Snapshot(),
			NewSamples: samples - prevSamples,
			Rejected:   rejected - prevRejected,
			Elapsed:    elapsed,
		}
		prevSamples, prevRejected = samples, rejected

		l.console.Interval(iv)
		l.metrics.ObserveInterval(iv.ReqSize, iv.Latency.P5, iv.Latency.P50, iv.Latency.P99, iv.Latency.Max,
			iv.NewSamples, iv.Rejected, iv.BandwidthGbps())
		if iv.Rejected > 0 {
			l.log.Warn("Latency samples outside histogram range", zap.Uint64("rejected", iv.Rejected), zap.Int("reqSize", iv.ReqSize))
		}

		rec.Reset()
		l.pipeline.ArmWarmup()
		l.pipeline.sweep.Advance()
	}

	l.state = StateDraining
	l.log.Info("Client finished", zap.Uint64("samples", prevSamples), zap.Bool("stopped", l.stop.Requested()))

	return nil
}
