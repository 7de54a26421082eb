package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/latprof/internal/config"
)

var version = "0.1.0"

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "latprof",
		Short:   "Closed-loop RPC latency profiler",
		Version: version,
		Long: `latprof measures round-trip latency of a request/response transport with
exactly one request in flight. Clients sweep the request size and print
percentile latency once per interval; servers reply with a fixed-size
response and report how busy they were.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			cmd.Help()
		},
	}

	addConfigFlags(root)

	root.AddCommand(newRunCmd())
	root.AddCommand(newServerCmd())
	root.AddCommand(newClientCmd())
	root.AddCommand(newLocalCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// Execute runs the command line and reports errors on stderr.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func addConfigFlags(cmd *cobra.Command) {
	def := config.Default()
	f := cmd.PersistentFlags()

	f.StringP("config", "c", "", "Configuration file (YAML or JSON)")

	// Cluster
	f.Int("process-id", def.Cluster.ProcessID, "Process id; ids below --num-server-processes are servers")
	f.Int("num-server-processes", def.Cluster.NumServerProcesses, "Number of server processes")
	f.String("host", def.Cluster.Host, "Host every process id maps to")
	f.Int("base-port", def.Cluster.BasePort, "Port of process 0; process i uses base-port+i")
	f.Int("numa-node", def.Cluster.NumaNode, "NUMA node to pick the CPU core from (0 or 1)")
	f.Bool("no-pin", false, "Do not pin the role to a CPU core")

	// Workload
	f.Int("resp-size", def.Workload.RespSize, "Size of the server's response in bytes")
	f.Int("start-req-size", def.Workload.StartReqSize, "First request size of the sweep in bytes")
	f.Int("end-req-size", def.Workload.EndReqSize, "Largest request size of the sweep in bytes")
	f.Int("test-ms", int(def.Workload.TestDuration.Std()/time.Millisecond), "Client test duration in milliseconds")
	f.Duration("tick", def.Workload.Tick.Std(), "Reporting interval")
	f.Uint64("seed", 0, "Seed for server selection (0 = random)")
	f.Int("connect-retries", def.Transport.ConnectRetries, "Dial retries per server before giving up")

	// Output
	f.String("format", def.Output.Format, "Result format (text, json)")
	f.Bool("no-color", false, "Disable colored output")
	f.Bool("force-colors", false, "Force colored output")
	f.BoolP("verbose", "v", false, "Log every request and response")
	f.String("log-level", def.Logging.Level, "Log level (debug, info, warn, error)")
	f.String("log-format", def.Logging.Format, "Log format (console, json)")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
}

// loadConfig reads the configuration file, if any, applies explicitly set
// flags on top and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	cfg := config.Default()
	if path, _ := flags.GetString("config"); path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}

	if flags.Changed("process-id") {
		cfg.Cluster.ProcessID, _ = flags.GetInt("process-id")
	}
	if flags.Changed("num-server-processes") {
		cfg.Cluster.NumServerProcesses, _ = flags.GetInt("num-server-processes")
	}
	if flags.Changed("host") {
		cfg.Cluster.Host, _ = flags.GetString("host")
	}
	if flags.Changed("base-port") {
		cfg.Cluster.BasePort, _ = flags.GetInt("base-port")
	}
	if flags.Changed("numa-node") {
		cfg.Cluster.NumaNode, _ = flags.GetInt("numa-node")
	}
	if flags.Changed("no-pin") {
		noPin, _ := flags.GetBool("no-pin")
		cfg.Cluster.Pin = !noPin
	}

	if flags.Changed("resp-size") {
		cfg.Workload.RespSize, _ = flags.GetInt("resp-size")
	}
	if flags.Changed("start-req-size") {
		cfg.Workload.StartReqSize, _ = flags.GetInt("start-req-size")
	}
	if flags.Changed("end-req-size") {
		cfg.Workload.EndReqSize, _ = flags.GetInt("end-req-size")
	}
	if flags.Changed("test-ms") {
		ms, _ := flags.GetInt("test-ms")
		cfg.Workload.TestDuration = config.Duration(time.Duration(ms) * time.Millisecond)
	}
	if flags.Changed("tick") {
		tick, _ := flags.GetDuration("tick")
		cfg.Workload.Tick = config.Duration(tick)
	}
	if flags.Changed("seed") {
		cfg.Workload.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("connect-retries") {
		cfg.Transport.ConnectRetries, _ = flags.GetInt("connect-retries")
	}

	if flags.Changed("format") {
		cfg.Output.Format, _ = flags.GetString("format")
	}
	if flags.Changed("no-color") {
		cfg.Output.NoColor, _ = flags.GetBool("no-color")
	}
	if flags.Changed("force-colors") {
		cfg.Output.ForceColors, _ = flags.GetBool("force-colors")
	}
	if flags.Changed("verbose") {
		cfg.Output.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}

	// verbose datapath logs are emitted at debug level
	if cfg.Output.Verbose && cfg.Logging.Level != "debug" {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
