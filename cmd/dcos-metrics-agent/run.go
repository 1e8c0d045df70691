package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/minyk/dcos-metrics/agent"
	"github.com/minyk/dcos-metrics/log"
	"github.com/minyk/dcos-metrics/output"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the input agent",
	Long: `Start the metrics input agent on a mesos node. The agent assigns
statsd endpoints to containers, persists the assignments under the state
directory and forwards whatever the containers send to the collector.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := configFromFlags(cmd.Flags())
		if err != nil {
			return err
		}

		ag, err := agent.New(config)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)
		go func() {
			select {
			case sig := <-sigs:
				log.G(ctx).WithField("signal", sig.String()).Info("shutting down")
				cancel()
			case <-ctx.Done():
			}
		}()

		return ag.Run(ctx)
	},
}

func configFromFlags(flags *pflag.FlagSet) (agent.Config, error) {
	var (
		config agent.Config
		err    error
	)

	if config.ListenHost, err = flags.GetString("listen-host"); err != nil {
		return agent.Config{}, err
	}
	if config.PortMode, err = flags.GetString("port-mode"); err != nil {
		return agent.Config{}, err
	}
	if config.SinglePort, err = flags.GetUint32("single-port"); err != nil {
		return agent.Config{}, err
	}
	if config.PortRangeBegin, err = flags.GetUint32("port-range-begin"); err != nil {
		return agent.Config{}, err
	}
	if config.PortRangeEnd, err = flags.GetUint32("port-range-end"); err != nil {
		return agent.Config{}, err
	}
	if config.StateDir, err = flags.GetString("state-dir"); err != nil {
		return agent.Config{}, err
	}
	if config.APIAddr, err = flags.GetString("api-addr"); err != nil {
		return agent.Config{}, err
	}
	if config.StatsdAddr, err = flags.GetString("statsd-addr"); err != nil {
		return agent.Config{}, err
	}
	if config.FlushInterval, err = flags.GetDuration("flush-interval"); err != nil {
		return agent.Config{}, err
	}
	if config.MesosAgent, err = flags.GetString("mesos-agent"); err != nil {
		return agent.Config{}, err
	}

	return config, nil
}

func init() {
	runCmd.Flags().String("listen-host", "127.0.0.1", "Host containers send their metrics to")
	runCmd.Flags().String("port-mode", "ephemeral", "Endpoint assignment mode (options \"single\", \"ephemeral\", \"range\")")
	runCmd.Flags().Uint32("single-port", 0, "Port shared by every container in single mode")
	runCmd.Flags().Uint32("port-range-begin", 0, "First port handed out in range mode")
	runCmd.Flags().Uint32("port-range-end", 0, "Last port handed out in range mode")
	runCmd.Flags().StringP("state-dir", "d", "/var/lib/dcos-metrics", "Directory assignments are persisted under (empty disables persistence)")
	runCmd.Flags().String("api-addr", "127.0.0.1:61091", "HTTP listen address for the control API")
	runCmd.Flags().String("statsd-addr", "", "Upstream statsd collector address (empty drops records)")
	runCmd.Flags().Duration("flush-interval", output.DefaultFlushInterval, "How often buffered records are flushed to the collector")
	runCmd.Flags().String("mesos-agent", "127.0.0.1:5051", "Mesos agent queried for running containers at startup (empty skips recovery)")
}
