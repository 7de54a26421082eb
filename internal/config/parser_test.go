package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParseConfig_YAML(t *testing.T) {
	yamlConfig := `
cluster:
  host: 10.0.0.1
  basePort: 40000
  numServerProcesses: 3
  processId: 3
  numaNode: 1
  pin: false
workload:
  respSize: 32
  startReqSize: 16
  endReqSize: 4096
  testDuration: 90s
  seed: 42
output:
  format: json
logging:
  level: debug
metrics:
  addr: ":9100"
`

	config, err := ParseConfig([]byte(yamlConfig), "test.yaml")
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	if config.Cluster.Host != "10.0.0.1" || config.Cluster.BasePort != 40000 {
		t.Errorf("cluster = %+v", config.Cluster)
	}
	if config.Cluster.NumServerProcesses != 3 || config.Cluster.ProcessID != 3 || config.Cluster.NumaNode != 1 {
		t.Errorf("cluster = %+v", config.Cluster)
	}
	if config.Cluster.Pin {
		t.Error("Pin = true, want false from file")
	}
	if config.Workload.RespSize != 32 || config.Workload.StartReqSize != 16 || config.Workload.EndReqSize != 4096 {
		t.Errorf("workload = %+v", config.Workload)
	}
	if config.Workload.TestDuration.Std() != 90*time.Second {
		t.Errorf("TestDuration = %v, want 90s", config.Workload.TestDuration)
	}
	if config.Workload.Seed != 42 {
		t.Errorf("Seed = %d, want 42", config.Workload.Seed)
	}
	if config.Output.Format != "json" || config.Logging.Level != "debug" || config.Metrics.Addr != ":9100" {
		t.Errorf("output = %+v, logging = %+v, metrics = %+v", config.Output, config.Logging, config.Metrics)
	}

	// Unset values keep their defaults.
	if config.Workload.Tick.Std() != time.Second {
		t.Errorf("Tick = %v, want default 1s", config.Workload.Tick)
	}
	if config.Histogram.Precision != 10 || config.Histogram.SigFigs != 2 {
		t.Errorf("histogram = %+v, want defaults", config.Histogram)
	}
	if config.Logging.Format != "console" {
		t.Errorf("Logging.Format = %q, want default console", config.Logging.Format)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestParseConfig_JSON(t *testing.T) {
	jsonConfig := `{
		"workload": {"respSize": 64, "tick": "500ms"},
		"histogram": {"precision": 1}
	}`

	config, err := ParseConfig([]byte(jsonConfig), "test.json")
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	if config.Workload.RespSize != 64 {
		t.Errorf("RespSize = %d, want 64", config.Workload.RespSize)
	}
	if config.Workload.Tick.Std() != 500*time.Millisecond {
		t.Errorf("Tick = %v, want 500ms", config.Workload.Tick)
	}
	if config.Histogram.Precision != 1 {
		t.Errorf("Precision = %v, want 1", config.Histogram.Precision)
	}
	if config.Workload.StartReqSize != 8 {
		t.Errorf("StartReqSize = %d, want default 8", config.Workload.StartReqSize)
	}
}

func TestParseConfig_Empty(t *testing.T) {
	config, err := ParseConfig(nil, "empty.yaml")
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if config.Workload != Default().Workload {
		t.Errorf("Workload = %+v, want defaults", config.Workload)
	}
}

func TestParseConfig_SchemaErrors(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		path  string
		field string
	}{
		{name: "zero response size", data: "workload:\n  respSize: 0\n", path: "c.yaml", field: "workload.respSize"},
		{name: "unknown section field", data: "workload:\n  reqSize: 8\n", path: "c.yaml", field: "workload"},
		{name: "unknown top-level field", data: "servers: 2\n", path: "c.yaml", field: ""},
		{name: "duration without unit", data: "workload:\n  testDuration: 20\n", path: "c.yaml", field: "workload.testDuration"},
		{name: "bad duration string", data: `{"workload": {"tick": "soon"}}`, path: "c.json", field: "workload.tick"},
		{name: "unknown output format", data: `{"output": {"format": "csv"}}`, path: "c.json", field: "output.format"},
		{name: "unknown log level", data: "logging:\n  level: trace\n", path: "c.yml", field: "logging.level"},
		{name: "port out of range", data: "cluster:\n  basePort: 70000\n", path: "c.yaml", field: "cluster.basePort"},
		{name: "sig figs too high", data: "histogram:\n  sigFigs: 9\n", path: "c.yaml", field: "histogram.sigFigs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data), tt.path)
			if err == nil {
				t.Fatal("ParseConfig() error = nil, want schema error")
			}

			var verrs *ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("ParseConfig() error = %T %v, want *ValidationErrors", err, err)
			}
			if !verrs.Has(tt.field) {
				t.Errorf("errors %v do not mention field %q", err, tt.field)
			}
		})
	}
}

func TestParseConfig_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		path string
	}{
		{name: "invalid YAML", data: "workload: [respSize", path: "c.yaml"},
		{name: "invalid JSON", data: `{"workload": `, path: "c.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data), tt.path)
			if err == nil {
				t.Fatal("ParseConfig() error = nil, want error")
			}
			var verrs *ValidationErrors
			if errors.As(err, &verrs) {
				t.Errorf("syntax error reported as validation errors: %v", err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latprof.yaml")
	if err := os.WriteFile(path, []byte("workload:\n  endReqSize: 1024\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.Workload.EndReqSize != 1024 {
		t.Errorf("EndReqSize = %d, want 1024", config.Workload.EndReqSize)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadConfig() on missing file error = nil, want error")
	}
}

func TestDuration_RoundTrip(t *testing.T) {
	type wrapper struct {
		D Duration `json:"d" yaml:"d"`
	}
	in := wrapper{D: Duration(1500 * time.Millisecond)}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"d":"1.5s"}` {
		t.Errorf("json.Marshal() = %s", b)
	}
	var fromJSON wrapper
	if err := json.Unmarshal(b, &fromJSON); err != nil || fromJSON != in {
		t.Errorf("json round trip = %+v, %v", fromJSON, err)
	}

	y, err := yaml.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var fromYAML wrapper
	if err := yaml.Unmarshal(y, &fromYAML); err != nil || fromYAML != in {
		t.Errorf("yaml round trip = %+v, %v", fromYAML, err)
	}
}

func TestParseConfig_ZeroValuesSurviveRoundTrip(t *testing.T) {
	in := Default()
	in.Cluster.Pin = false
	in.Transport.ConnectRetries = 0

	for _, path := range []string{"c.yaml", "c.json"} {
		t.Run(path, func(t *testing.T) {
			var (
				data []byte
				err  error
			)
			if filepath.Ext(path) == ".json" {
				data, err = json.Marshal(in)
			} else {
				data, err = yaml.Marshal(in)
			}
			if err != nil {
				t.Fatal(err)
			}

			out, err := ParseConfig(data, path)
			if err != nil {
				t.Fatalf("ParseConfig() error = %v", err)
			}
			if out.Cluster.Pin {
				t.Error("Pin = true after round trip, want false")
			}
			if out.Transport.ConnectRetries != 0 {
				t.Errorf("ConnectRetries = %d after round trip, want 0", out.Transport.ConnectRetries)
			}
		})
	}
}
