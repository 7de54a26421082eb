// Package metrics exposes the latest measurement results to Prometheus.
//
// Every method is safe on a nil receiver, so roles can be run without a
// metrics endpoint by passing nil.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Client holds the client-role collectors.
type Client struct {
	latency   *prometheus.GaugeVec
	reqSize   prometheus.Gauge
	bandwidth prometheus.Gauge
	samples   prometheus.Counter
	rejected  prometheus.Counter
	stalls    prometheus.Counter
}

// Server holds the server-role collectors.
type Server struct {
	requests        prometheus.Counter
	processingRatio prometheus.Gauge
}

// NewClient registers the client collectors on reg.
func NewClient(reg prometheus.Registerer) *Client {
	c := &Client{
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "latprof_client_latency_microseconds",
			Help: "Round-trip latency of the last reporting interval by percentile.",
		}, []string{"quantile"}),
		reqSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "latprof_client_request_size_bytes",
			Help: "Request payload size used in the last reporting interval.",
		}),
		bandwidth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "latprof_client_bandwidth_gbps",
			Help: "Request bandwidth of the last reporting interval.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latprof_client_samples_total",
			Help: "Latency samples recorded.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latprof_client_rejected_samples_total",
			Help: "Latency samples outside the histogram range.",
		}),
		stalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latprof_client_stalled_intervals_total",
			Help: "Reporting intervals without any new response.",
		}),
	}

	reg.MustRegister(c.latency, c.reqSize, c.bandwidth, c.samples, c.rejected, c.stalls)

	return c
}

// ObserveInterval publishes the results of one reporting interval.
func (c *Client) ObserveInterval(reqSize int, p5, p50, p99, max float64, samples, rejected uint64, gbps float64) {
	if c == nil {
		return
	}

	c.latency.WithLabelValues("0.05").Set(p5)
	c.latency.WithLabelValues("0.5").Set(p50)
	c.latency.WithLabelValues("0.99").Set(p99)
	c.latency.WithLabelValues("1").Set(max)
	c.reqSize.Set(float64(reqSize))
	c.bandwidth.Set(gbps)
	c.samples.Add(float64(samples))
	c.rejected.Add(float64(rejected))
}

// ObserveStall counts an interval without responses.
func (c *Client) ObserveStall() {
	if c == nil {
		return
	}
	c.stalls.Inc()
}

// NewServer registers the server collectors on reg.
func NewServer(reg prometheus.Registerer) *Server {
	s := &Server{
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latprof_server_requests_total",
			Help: "Requests answered.",
		}),
		processingRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "latprof_server_processing_ratio_percent",
			Help: "Share of elapsed time spent processing packets since the first packet.",
		}),
	}

	reg.MustRegister(s.requests, s.processingRatio)

	return s
}

// AddRequests counts answered requests.
func (s *Server) AddRequests(n uint64) {
	if s == nil {
		return
	}
	s.requests.Add(float64(n))
}

// SetProcessingRatio publishes the current utilization percentage.
func (s *Server) SetProcessingRatio(percent float64) {
	if s == nil {
		return
	}
	s.processingRatio.Set(percent)
}

// Serve exposes reg on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 2 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Serving metrics", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
