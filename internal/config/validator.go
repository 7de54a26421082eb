package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/wesleyorama2/latprof/internal/transport"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Has reports whether an error was recorded for field.
func (e *ValidationErrors) Has(field string) bool {
	for _, err := range e.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Validate validates the entire configuration.
//
// Returns nil if valid, or a *ValidationErrors containing every problem.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	validateCluster(&c.Cluster, errs)
	validateWorkload(&c.Workload, errs)
	validateHistogram(&c.Histogram, errs)
	validateTransport(&c.Transport, errs)
	validateOutput(&c.Output, &c.Logging, errs)

	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			errs.Add("metrics.addr", fmt.Sprintf("invalid listen address %q: %v", c.Metrics.Addr, err))
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateCluster(cc *ClusterConfig, errs *ValidationErrors) {
	if cc.Host == "" {
		errs.Add("cluster.host", "host is required")
	}
	if cc.NumServerProcesses < 1 {
		errs.Add("cluster.numServerProcesses", "at least one server process is required")
	}
	if cc.ProcessID < 0 {
		errs.Add("cluster.processId", "process id must not be negative")
	}
	if cc.NumaNode < 0 || cc.NumaNode > 1 {
		errs.Add("cluster.numaNode", fmt.Sprintf("invalid NUMA node %d, must be 0 or 1", cc.NumaNode))
	}

	if cc.BasePort < 1 || cc.BasePort > 65535 {
		errs.Add("cluster.basePort", fmt.Sprintf("port %d out of range", cc.BasePort))
	} else if last := cc.BasePort + max(cc.NumServerProcesses-1, cc.ProcessID); last > 65535 {
		errs.Add("cluster.basePort", fmt.Sprintf("process ports reach %d, beyond 65535", last))
	}
}

func validateWorkload(wc *WorkloadConfig, errs *ValidationErrors) {
	checkSize := func(field string, size int) {
		switch {
		case size <= 0:
			errs.Add(field, "must be greater than 0")
		case size > transport.MaxMsgSize:
			errs.Add(field, fmt.Sprintf("%d bytes exceeds the %d byte message limit", size, transport.MaxMsgSize))
		}
	}

	checkSize("workload.respSize", wc.RespSize)
	checkSize("workload.startReqSize", wc.StartReqSize)
	checkSize("workload.endReqSize", wc.EndReqSize)

	if wc.StartReqSize > 0 && wc.EndReqSize > 0 && wc.StartReqSize > wc.EndReqSize {
		errs.Add("workload.endReqSize", fmt.Sprintf("end size %d is below start size %d", wc.EndReqSize, wc.StartReqSize))
	}

	if wc.TestDuration <= 0 {
		errs.Add("workload.testDuration", "test duration must be greater than 0")
	}
	if wc.Tick <= 0 {
		errs.Add("workload.tick", "tick must be greater than 0")
	}
}

func validateHistogram(hc *HistogramConfig, errs *ValidationErrors) {
	if hc.Precision <= 0 {
		errs.Add("histogram.precision", "precision factor must be greater than 0")
	}
	if hc.MinMicros < 1 {
		errs.Add("histogram.minMicros", "minimum must be at least 1")
	}
	if hc.MaxMicros <= hc.MinMicros {
		errs.Add("histogram.maxMicros", "maximum must be greater than minimum")
	}
	if hc.SigFigs < 1 || hc.SigFigs > 5 {
		errs.Add("histogram.sigFigs", "significant figures must be between 1 and 5")
	}
}

func validateTransport(tc *TransportConfig, errs *ValidationErrors) {
	if tc.ConnectRetries < 0 {
		errs.Add("transport.connectRetries", "must not be negative")
	}
	if tc.ConnectRetryDelay < 0 {
		errs.Add("transport.connectRetryDelay", "must not be negative")
	}
	if tc.DialTimeout < 0 {
		errs.Add("transport.dialTimeout", "must not be negative")
	}
}

func validateOutput(oc *OutputConfig, lc *LoggingConfig, errs *ValidationErrors) {
	switch oc.Format {
	case "text", "json":
	default:
		errs.Add("output.format", fmt.Sprintf("unknown output format: %s", oc.Format))
	}
	if oc.NoColor && oc.ForceColors {
		errs.Add("output.forceColors", "cannot be combined with noColor")
	}

	switch lc.Level {
	case "debug", "info", "warn", "error":
	default:
		errs.Add("logging.level", fmt.Sprintf("unknown log level: %s", lc.Level))
	}
	switch lc.Format {
	case "console", "json":
	default:
		errs.Add("logging.format", fmt.Sprintf("unknown log format: %s", lc.Format))
	}
}
