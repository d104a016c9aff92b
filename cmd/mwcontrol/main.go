package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/mwdispatch/internal/app"
	"github.com/bft-labs/mwdispatch/internal/cliconfig"
	"github.com/bft-labs/mwdispatch/pkg/log"
)

const longHelp = `mwcontrol runs a master/worker processing session.

A master reads a strategy file, waits for its workers to announce
themselves, sends them the work domain and then dispatches every step of
the strategy to the workers of the matching type: solve steps go to
solvers, predict, correct and subtract steps go to prediffers.

Configuration is read from a TOML or YAML file, then MWCONTROL_*
environment variables, then command line flags; later sources win.`

var exampleUsage = strings.TrimSpace(`
  mwcontrol master --listen :7650 --workers 4 --strategy calibrate.toml
  mwcontrol worker --master-addr head:7650 --proxy Solver
  mwcontrol local --transport mpi --prediffers 3 --solvers 1 --strategy calibrate.yaml
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	bootLog := cliconfig.Logger(cfg, nil)

	root := &cobra.Command{
		Use:           "mwcontrol",
		Short:         "Dispatch processing steps from a master to its workers",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.mwcontrol/config.toml)")
	root.PersistentFlags().StringVar(&cfg.Host, "host", cfg.Host, "host name announced to the master (default: os hostname)")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	root.PersistentFlags().BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "log JSON lines instead of console output")
	root.PersistentFlags().DurationVar(&cfg.RetryInitial, "retry-initial", cfg.RetryInitial, "first delay between dial attempts")
	root.PersistentFlags().DurationVar(&cfg.RetryMax, "retry-max", cfg.RetryMax, "maximum delay between dial attempts")

	run := func(role cliconfig.Role) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			// Build set of changed flags
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
			cfg.ApplyRoleDefaults(role, changed)

			haveFile := cfgFile != "" && cliconfig.FileExists(cfgFile)
			if haveFile {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// MWCONTROL_* override the file but not explicit flags
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := cliconfig.Logger(cfg, nil).With(log.String("role", string(role)), log.String("host", cfg.Host))
			logger.Info("configuration", log.Any("config", cfg))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if haveFile {
				w := cliconfig.NewWatcher(cfgFile, logger, logger)
				if err := w.Start(ctx); err != nil {
					logger.Warn("config watcher disabled", log.Err(err))
				} else {
					defer w.Stop()
				}
			}

			err := app.NewRunner(cfg, logger).Run(ctx)
			if err != nil && ctx.Err() != nil {
				logger.Info("received signal, stopped")
			}
			return err
		}
	}

	masterCmd := &cobra.Command{
		Use:   "master",
		Short: "Accept socket workers and run a strategy on them",
		Args:  cobra.NoArgs,
		RunE:  run(cliconfig.RoleMaster),
	}
	masterCmd.Flags().StringVar(&cfg.Listen, "listen", cfg.Listen, "address to accept workers on")
	masterCmd.Flags().IntVar(&cfg.Workers, "workers", cfg.Workers, "number of workers to wait for")
	masterCmd.Flags().DurationVar(&cfg.AcceptTimeout, "accept-timeout", cfg.AcceptTimeout, "how long to wait for all workers")
	addPlanFlags(masterCmd, &cfg)

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Connect to a master and execute its steps",
		Args:  cobra.NoArgs,
		RunE:  run(cliconfig.RoleWorker),
	}
	workerCmd.Flags().StringVar(&cfg.MasterAddr, "master-addr", cfg.MasterAddr, "master address")
	workerCmd.Flags().StringVar(&cfg.Proxy, "proxy", cfg.Proxy, "worker proxy: Prediffer or Solver")
	workerCmd.Flags().DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "how long to keep dialing the master")

	localCmd := &cobra.Command{
		Use:   "local",
		Short: "Run a master and its workers in this process",
		Args:  cobra.NoArgs,
		RunE:  run(cliconfig.RoleLocal),
	}
	localCmd.Flags().StringVar(&cfg.Transport, "transport", cfg.Transport, "mem, mpi or socket (local default: mem)")
	localCmd.Flags().IntVar(&cfg.Prediffers, "prediffers", cfg.Prediffers, "number of prediffer workers")
	localCmd.Flags().IntVar(&cfg.Solvers, "solvers", cfg.Solvers, "number of solver workers")
	localCmd.Flags().IntVar(&cfg.Tag, "tag", cfg.Tag, "message tag for the mpi transport")
	localCmd.Flags().StringVar(&cfg.Listen, "listen", cfg.Listen, "loopback address for the socket transport (local default: "+cliconfig.LocalListen+")")
	localCmd.Flags().DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "how long workers keep dialing")
	addPlanFlags(localCmd, &cfg)

	root.AddCommand(masterCmd, workerCmd, localCmd)

	if err := root.Execute(); err != nil {
		bootLog.Error("mwcontrol", log.Err(err))
		os.Exit(1)
	}
}

func addPlanFlags(cmd *cobra.Command, cfg *cliconfig.Config) {
	cmd.Flags().StringVar(&cfg.StrategyFile, "strategy", cfg.StrategyFile, "strategy file (.toml, .yaml or .yml)")
	cmd.Flags().StringVar(&cfg.ClusterFile, "cluster", cfg.ClusterFile, "cluster description file (optional)")
	cmd.Flags().StringVar(&cfg.ReportDir, "report-dir", cfg.ReportDir, "directory to write report.json to (optional)")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "max workers addressed at once (0: unbounded)")
}
