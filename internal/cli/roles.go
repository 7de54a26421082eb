package cli

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/latprof/internal/affinity"
	"github.com/wesleyorama2/latprof/internal/client"
	"github.com/wesleyorama2/latprof/internal/config"
	"github.com/wesleyorama2/latprof/internal/latency"
	"github.com/wesleyorama2/latprof/internal/logging"
	"github.com/wesleyorama2/latprof/internal/metrics"
	"github.com/wesleyorama2/latprof/internal/report"
	"github.com/wesleyorama2/latprof/internal/server"
	"github.com/wesleyorama2/latprof/internal/shutdown"
	"github.com/wesleyorama2/latprof/internal/sweep"
	"github.com/wesleyorama2/latprof/internal/transport"
)

// env holds what every role of one command invocation shares.
type env struct {
	cfg     *config.Config
	log     *zap.Logger
	console *report.Console
	stop    *shutdown.Flag

	clientMetrics *metrics.Client
	serverMetrics *metrics.Server

	cancel     context.CancelFunc
	stopNotify func()
	wg         sync.WaitGroup
}

// setup loads the configuration and builds the shared logger, console, stop
// flag and optional metrics endpoint.
func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	e := &env{
		cfg: cfg,
		log: log,
		console: report.NewConsole(report.ConsoleConfig{
			Writer:      cmd.OutOrStdout(),
			Format:      report.Format(cfg.Output.Format),
			ForceColors: cfg.Output.ForceColors,
			NoColor:     cfg.Output.NoColor,
		}),
		stop:   &shutdown.Flag{},
		cancel: func() {},
	}
	e.stopNotify = shutdown.Notify(e.stop)

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		e.clientMetrics = metrics.NewClient(reg)
		e.serverMetrics = metrics.NewServer(reg)

		var ctx context.Context
		ctx, e.cancel = context.WithCancel(cmd.Context())
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg, log); err != nil {
				log.Error("Metrics endpoint failed", zap.String("addr", cfg.Metrics.Addr), zap.Error(err))
			}
		}()
	}

	return e, nil
}

func (e *env) close() {
	e.stopNotify()
	e.cancel()
	e.wg.Wait()
	_ = e.log.Sync()
}

func (e *env) transportOptions(log *zap.Logger) transport.Options {
	opts := transport.Options{
		Logger:            log,
		ConnectRetries:    e.cfg.Transport.ConnectRetries,
		ConnectRetryDelay: e.cfg.Transport.ConnectRetryDelay.Std(),
		DialTimeout:       e.cfg.Transport.DialTimeout.Std(),
	}
	// the transport treats zero as its default and negative as no retries
	if opts.ConnectRetries == 0 {
		opts.ConnectRetries = -1
	}
	return opts
}

// runServer listens on the process's address and answers requests until
// the stop flag is set.
func (e *env) runServer(processID int) error {
	uri := e.cfg.URIForProcess(processID)
	log := e.log.With(zap.String("role", "server"), zap.Int("process", processID))

	return e.onCore(processID, log, func() error {
		rpc := transport.New(e.transportOptions(log))
		defer rpc.Close()

		if err := rpc.Listen(uri); err != nil {
			return err
		}
		e.console.Printf("Latency: Running server, process ID %d", processID)
		log.Info("Listening", zap.String("uri", uri), zap.Float64("freqGHz", rpc.Clock().FreqGHz()))

		loop, err := server.NewLoop(rpc, e.console, e.serverMetrics, e.stop, server.LoopConfig{
			Tick:     e.cfg.Workload.Tick.Std(),
			RespSize: e.cfg.Workload.RespSize,
		}, log)
		if err != nil {
			return err
		}

		loop.Run()
		return nil
	})
}

// runClient measures latency against every server process until the test
// duration has elapsed or the stop flag is set.
func (e *env) runClient(processID int) error {
	w := e.cfg.Workload
	h := e.cfg.Histogram
	log := e.log.With(zap.String("role", "client"), zap.Int("process", processID))

	sw, err := sweep.New(w.StartReqSize, w.EndReqSize)
	if err != nil {
		return err
	}
	rec, err := latency.New(latency.Config{
		MinMicros: h.MinMicros,
		MaxMicros: h.MaxMicros,
		SigFigs:   h.SigFigs,
		Precision: h.Precision,
	})
	if err != nil {
		return fmt.Errorf("failed to create latency histogram: %w", err)
	}

	return e.onCore(processID, log, func() error {
		rpc := transport.New(e.transportOptions(log))
		defer rpc.Close()

		e.console.Printf("Latency: Running client, process ID %d", processID)
		log.Info("Client starting",
			zap.Int("startReqSize", w.StartReqSize),
			zap.Int("endReqSize", w.EndReqSize),
			zap.Duration("testDuration", w.TestDuration.Std()),
			zap.Float64("freqGHz", rpc.Clock().FreqGHz()))

		p, err := client.NewPipeline(rpc, sw, rec, client.PipelineConfig{
			RespSize: w.RespSize,
			Seed:     w.Seed,
			Verbose:  e.cfg.Output.Verbose,
		}, log)
		if err != nil {
			return err
		}

		loop := client.NewLoop(p, e.console, e.clientMetrics, e.stop, client.LoopConfig{
			Tick:         w.Tick.Std(),
			TestDuration: w.TestDuration.Std(),
			URIs:         e.cfg.ServerURIs(),
		}, log)

		return loop.Run()
	})
}

// onCore prints the startup banner and runs fn on a dedicated OS thread,
// pinned to the process's affinity core unless pinning is disabled.
func (e *env) onCore(processID int, log *zap.Logger, fn func() error) error {
	cores, err := affinity.CoresForNode(e.cfg.Cluster.NumaNode)
	if err != nil {
		return err
	}
	plan := affinity.Choose(processID, cores)

	e.console.Printf("Latency: Starting latency test. Response size = %d bytes", e.cfg.Workload.RespSize)
	e.console.Printf("URL is %s", e.cfg.URIForProcess(processID))
	e.console.Printf("Latency: Will run on CPU core %d", plan.CPU)
	if plan.Collision {
		log.Warn("The number of latency processes is close to this machine's core count; check for core collisions",
			zap.Int("process", processID), zap.Int("cores", plan.NumCores))
	}

	errc := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		if e.cfg.Cluster.Pin {
			// A pinned thread is never returned to the scheduler; it exits
			// with this goroutine.
			if err := affinity.Pin(plan.CPU); err != nil {
				errc <- err
				return
			}
		} else {
			defer runtime.UnlockOSThread()
		}

		errc <- fn()
	}()

	return <-errc
}
