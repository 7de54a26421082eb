package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the role assigned to --process-id",
		Long: `Run the server or client role depending on the process id. Process ids
below --num-server-processes are servers and listen on host:base-port+id;
every other process is a client that connects to all servers.

  latprof run --process-id 0 --num-server-processes 1
  latprof run --process-id 1 --num-server-processes 1 --end-req-size 4096`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			id := e.cfg.Cluster.ProcessID
			if e.cfg.IsServer() {
				return e.runServer(id)
			}
			return e.runClient(id)
		},
	}
}

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run a server at host:base-port+process-id until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			return e.runServer(e.cfg.Cluster.ProcessID)
		},
	}
}

func newClientCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "client",
		Short: "Run a client against every server process",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			return e.runClient(e.cfg.Cluster.ProcessID)
		},
	}
}

func newLocalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "local",
		Short: "Run all servers and one client in this process",
		Long: `Run --num-server-processes servers with process ids 0..N-1 and one client
with process id N in a single process. The servers stop once the client
has finished.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			return e.runLocal()
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// runLocal runs every server and one client concurrently. The first role
// error stops the others.
func (e *env) runLocal() error {
	n := e.cfg.Cluster.NumServerProcesses

	var g errgroup.Group
	for id := range n {
		g.Go(func() error {
			err := e.runServer(id)
			if err != nil {
				e.stop.Request()
			}
			return err
		})
	}
	g.Go(func() error {
		defer e.stop.Request()
		return e.runClient(n)
	})

	return g.Wait()
}
