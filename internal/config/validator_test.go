package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidationErrors_Error(t *testing.T) {
	errs := &ValidationErrors{}
	if errs.Error() != "no validation errors" {
		t.Errorf("empty Error() = %q", errs.Error())
	}

	errs.Add("workload.respSize", "must be greater than 0")
	if got := errs.Error(); got != "validation error on field 'workload.respSize': must be greater than 0" {
		t.Errorf("single Error() = %q", got)
	}

	errs.Add("", "something else")
	got := errs.Error()
	if !strings.HasPrefix(got, "2 validation errors:") || !strings.Contains(got, "validation error: something else") {
		t.Errorf("multi Error() = %q", got)
	}
}

func TestValidate_Default(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "empty host", mutate: func(c *Config) { c.Cluster.Host = "" }, field: "cluster.host"},
		{name: "no servers", mutate: func(c *Config) { c.Cluster.NumServerProcesses = 0 }, field: "cluster.numServerProcesses"},
		{name: "negative process id", mutate: func(c *Config) { c.Cluster.ProcessID = -1 }, field: "cluster.processId"},
		{name: "numa node 2", mutate: func(c *Config) { c.Cluster.NumaNode = 2 }, field: "cluster.numaNode"},
		{name: "port zero", mutate: func(c *Config) { c.Cluster.BasePort = 0 }, field: "cluster.basePort"},
		{name: "ports overflow", mutate: func(c *Config) { c.Cluster.BasePort = 65530; c.Cluster.ProcessID = 10 }, field: "cluster.basePort"},
		{name: "zero response size", mutate: func(c *Config) { c.Workload.RespSize = 0 }, field: "workload.respSize"},
		{name: "huge response size", mutate: func(c *Config) { c.Workload.RespSize = 1 << 30 }, field: "workload.respSize"},
		{name: "zero start size", mutate: func(c *Config) { c.Workload.StartReqSize = 0 }, field: "workload.startReqSize"},
		{name: "end below start", mutate: func(c *Config) { c.Workload.StartReqSize = 64; c.Workload.EndReqSize = 32 }, field: "workload.endReqSize"},
		{name: "zero duration", mutate: func(c *Config) { c.Workload.TestDuration = 0 }, field: "workload.testDuration"},
		{name: "zero tick", mutate: func(c *Config) { c.Workload.Tick = 0 }, field: "workload.tick"},
		{name: "zero precision", mutate: func(c *Config) { c.Histogram.Precision = 0 }, field: "histogram.precision"},
		{name: "histogram max below min", mutate: func(c *Config) { c.Histogram.MaxMicros = 1 }, field: "histogram.maxMicros"},
		{name: "sig figs", mutate: func(c *Config) { c.Histogram.SigFigs = 0 }, field: "histogram.sigFigs"},
		{name: "negative retries", mutate: func(c *Config) { c.Transport.ConnectRetries = -1 }, field: "transport.connectRetries"},
		{name: "output format", mutate: func(c *Config) { c.Output.Format = "xml" }, field: "output.format"},
		{name: "conflicting colors", mutate: func(c *Config) { c.Output.NoColor = true; c.Output.ForceColors = true }, field: "output.forceColors"},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, field: "logging.level"},
		{name: "log format", mutate: func(c *Config) { c.Logging.Format = "logfmt" }, field: "logging.format"},
		{name: "metrics address", mutate: func(c *Config) { c.Metrics.Addr = "9100" }, field: "metrics.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)

			err := c.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}

			var verrs *ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() error type = %T, want *ValidationErrors", err)
			}
			if !verrs.Has(tt.field) {
				t.Errorf("Validate() = %v, want an error on %s", err, tt.field)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	c := Default()
	c.Workload.RespSize = 0
	c.Cluster.NumaNode = 5
	c.Output.Format = ""

	var verrs *ValidationErrors
	if !errors.As(c.Validate(), &verrs) {
		t.Fatal("Validate() did not return *ValidationErrors")
	}
	if len(verrs.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(verrs.Errors), verrs)
	}
}

func TestURIForProcess(t *testing.T) {
	c := Default()
	c.Cluster.Host = "10.0.0.1"
	c.Cluster.BasePort = 31850
	c.Cluster.NumServerProcesses = 2

	if got := c.URIForProcess(2); got != "10.0.0.1:31852" {
		t.Errorf("URIForProcess(2) = %q", got)
	}

	uris := c.ServerURIs()
	if len(uris) != 2 || uris[0] != "10.0.0.1:31850" || uris[1] != "10.0.0.1:31851" {
		t.Errorf("ServerURIs() = %v", uris)
	}

	c.Cluster.Host = "::1"
	if got := c.URIForProcess(0); got != "[::1]:31850" {
		t.Errorf("URIForProcess(0) with IPv6 = %q", got)
	}
}

func TestIsServer(t *testing.T) {
	c := Default()
	c.Cluster.NumServerProcesses = 2

	for id, want := range []bool{true, true, false, false} {
		c.Cluster.ProcessID = id
		if got := c.IsServer(); got != want {
			t.Errorf("IsServer() for process %d = %v, want %v", id, got, want)
		}
	}
}
