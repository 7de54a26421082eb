// Package config provides configuration loading and validation for latprof.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root configuration of a latency test.
//
// Example YAML:
//
//	cluster:
//	  host: 10.0.0.1
//	  basePort: 31850
//	  numServerProcesses: 2
//	  processId: 2
//	workload:
//	  respSize: 32
//	  startReqSize: 8
//	  endReqSize: 4096
//	  testDuration: 60s
type Config struct {
	// Cluster places this process among the test processes
	Cluster ClusterConfig `json:"cluster,omitempty" yaml:"cluster,omitempty"`

	// Workload shapes the requests the client sends
	Workload WorkloadConfig `json:"workload,omitempty" yaml:"workload,omitempty"`

	// Histogram configures latency recording
	Histogram HistogramConfig `json:"histogram,omitempty" yaml:"histogram,omitempty"`

	// Transport tunes session setup
	Transport TransportConfig `json:"transport,omitempty" yaml:"transport,omitempty"`

	// Output controls result lines on stdout
	Output OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`

	// Logging controls diagnostics on stderr
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`

	// Metrics enables the Prometheus endpoint
	Metrics MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// ClusterConfig describes the set of test processes. Process i listens on
// host:basePort+i; ids below NumServerProcesses are servers.
type ClusterConfig struct {
	Host               string `json:"host,omitempty" yaml:"host,omitempty"`
	BasePort           int    `json:"basePort,omitempty" yaml:"basePort,omitempty"`
	NumServerProcesses int    `json:"numServerProcesses,omitempty" yaml:"numServerProcesses,omitempty"`
	ProcessID          int    `json:"processId,omitempty" yaml:"processId,omitempty"`
	NumaNode           int    `json:"numaNode,omitempty" yaml:"numaNode,omitempty"`

	// Pin locks the role goroutine to its affinity core (default: true)
	Pin bool `json:"pin" yaml:"pin"`
}

// WorkloadConfig shapes the client's requests.
type WorkloadConfig struct {
	// RespSize is the server's reply size in bytes (default: 8)
	RespSize int `json:"respSize,omitempty" yaml:"respSize,omitempty"`

	// StartReqSize is the first request size of the sweep (default: 8)
	StartReqSize int `json:"startReqSize,omitempty" yaml:"startReqSize,omitempty"`

	// EndReqSize is the largest request size of the sweep (default: 12)
	EndReqSize int `json:"endReqSize,omitempty" yaml:"endReqSize,omitempty"`

	// TestDuration is how long the client measures (default: 20s)
	TestDuration Duration `json:"testDuration,omitempty" yaml:"testDuration,omitempty"`

	// Tick is the reporting interval (default: 1s)
	Tick Duration `json:"tick,omitempty" yaml:"tick,omitempty"`

	// Seed seeds server selection; zero picks a random seed
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// HistogramConfig configures the latency histogram.
type HistogramConfig struct {
	Precision float64 `json:"precision,omitempty" yaml:"precision,omitempty"`
	MinMicros int64   `json:"minMicros,omitempty" yaml:"minMicros,omitempty"`
	MaxMicros int64   `json:"maxMicros,omitempty" yaml:"maxMicros,omitempty"`
	SigFigs   int     `json:"sigFigs,omitempty" yaml:"sigFigs,omitempty"`
}

// TransportConfig tunes session setup.
type TransportConfig struct {
	// ConnectRetries is how many failed dials are retried per server
	ConnectRetries int `json:"connectRetries" yaml:"connectRetries"`

	ConnectRetryDelay Duration `json:"connectRetryDelay,omitempty" yaml:"connectRetryDelay,omitempty"`
	DialTimeout       Duration `json:"dialTimeout,omitempty" yaml:"dialTimeout,omitempty"`
}

// OutputConfig controls result lines.
type OutputConfig struct {
	// Format is "text" or "json"
	Format      string `json:"format,omitempty" yaml:"format,omitempty"`
	NoColor     bool   `json:"noColor,omitempty" yaml:"noColor,omitempty"`
	ForceColors bool   `json:"forceColors,omitempty" yaml:"forceColors,omitempty"`

	// Verbose logs every request at debug level
	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// LoggingConfig controls diagnostics.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is "console" or "json"
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// Default returns the configuration used when no file or flag overrides a
// value.
func Default() *Config {
	return &Config{
		Cluster: ClusterConfig{
			Host:               "127.0.0.1",
			BasePort:           31850,
			NumServerProcesses: 1,
			Pin:                true,
		},
		Workload: WorkloadConfig{
			RespSize:     8,
			StartReqSize: 8,
			EndReqSize:   12,
			TestDuration: Duration(20 * time.Second),
			Tick:         Duration(time.Second),
		},
		Histogram: HistogramConfig{
			Precision: 10,
			MinMicros: 1,
			MaxMicros: 100 * 1000 * 1000,
			SigFigs:   2,
		},
		Transport: TransportConfig{
			ConnectRetries:    50,
			ConnectRetryDelay: Duration(100 * time.Millisecond),
			DialTimeout:       Duration(time.Second),
		},
		Output: OutputConfig{
			Format: "text",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// URIForProcess returns the address process id listens on.
func (c *Config) URIForProcess(id int) string {
	return net.JoinHostPort(c.Cluster.Host, strconv.Itoa(c.Cluster.BasePort+id))
}

// ServerURIs returns the addresses of every server process, in order.
func (c *Config) ServerURIs() []string {
	uris := make([]string, c.Cluster.NumServerProcesses)
	for i := range uris {
		uris[i] = c.URIForProcess(i)
	}
	return uris
}

// IsServer reports whether this process runs the server role.
func (c *Config) IsServer() bool {
	return c.Cluster.ProcessID < c.Cluster.NumServerProcesses
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	if s == "" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
