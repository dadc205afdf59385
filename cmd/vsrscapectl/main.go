package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vsrscape/internal/config"
	"vsrscape/internal/logging"
	vsrapi "vsrscape/pkg/vsrscape"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// cli holds the persistent flags and the state PersistentPreRunE builds from
// them.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string
	outDir     string
	storeKind  string
	dbPath     string

	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "vsrscapectl",
		Short: "Sample fitness landscapes of voxel-based soft robots",
		Long: `vsrscapectl walks random directions through the controller parameter space
of voxel-based soft robots and records how fitness changes along them.

Each configuration pairs a body topology with a rigid cell count (controller
sweep) or a neuron setting (body sweep).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "YAML run configuration")
	flags.StringVar(&c.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	flags.StringVar(&c.logFormat, "log-format", "", "log format (auto|console|json)")
	flags.StringVar(&c.outDir, "out-dir", "", "directory holding run directories and the run index")
	flags.StringVar(&c.storeKind, "store", "", "run store backend (memory|sqlite)")
	flags.StringVar(&c.dbPath, "db-path", "", "sqlite database path")

	root.AddCommand(
		newLandscapeCmd(c),
		newReevaluateCmd(c),
		newShapeCmd(c),
		newRunsCmd(c),
		newExportCmd(c),
		newInitConfigCmd(c),
	)
	return root
}

// setup loads the configuration file, applies persistent flag overrides and
// builds the logger.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = c.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = c.logFormat
	}
	if flags.Changed("out-dir") {
		cfg.Output.Dir = c.outDir
	}
	if flags.Changed("store") {
		cfg.Store.Kind = c.storeKind
	}
	if flags.Changed("db-path") {
		cfg.Store.Path = c.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	c.logger = logger
	return nil
}

// client opens the run store described by the loaded configuration.
func (c *cli) client(ctx context.Context) (*vsrapi.Client, error) {
	client, err := vsrapi.New(vsrapi.Options{
		StoreKind: c.cfg.Store.Kind,
		DBPath:    c.cfg.Store.Path,
		OutputDir: c.cfg.Output.Dir,
		Logger:    c.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
