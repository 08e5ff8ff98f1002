// Command poemhub serves the poem site and manages poems, authors and
// categories from the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poemhub/internal/chatbot"
	"poemhub/internal/config"
	"poemhub/internal/core"
	"poemhub/internal/infra/persistence/memory"
	"poemhub/internal/logging"
	"poemhub/internal/state"
)

// app carries the flags and the dependencies built before each command runs.
type app struct {
	configPath   string
	verbose      bool
	trace        bool
	snapshotPath string
	traceOut     io.Writer

	cfg      config.Config
	zap      *zap.Logger
	logger   logging.Logger
	store    core.PersistentStore
	svc      *core.Service
	registry *prometheus.Registry
	// snapshot is set once the memory store has been seeded from snapshotPath.
	snapshot *memory.Store
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root, a := newRootCmd()
	err := root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		stop()
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. The caller closes the returned app once
// the command has run, whether or not it failed.
func newRootCmd() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:          "poemhub",
		Short:        "Classical Chinese poetry catalogue",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.traceOut = cmd.ErrOrStderr()
			return a.setup(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.config/poemhub/config.toml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&a.trace, "trace", false, "write one JSON line per service operation to stderr")
	root.PersistentFlags().StringVar(&a.snapshotPath, "memory-snapshot", "", "seed the memory store from this JSON file and save it back on exit")

	root.AddCommand(
		a.serveCmd(),
		a.poemsCmd(),
		a.authorsCmd(),
		a.categoriesCmd(),
		a.chatCmd(),
		a.exportCmd(),
	)
	return root, a
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	zl, err := logging.New(logging.Options{Level: level, Format: cfg.Log.Format})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.zap = zl
	a.logger = logging.Zap(zl)

	store, err := core.OpenPersistentStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	a.store = store
	if a.snapshotPath != "" {
		mem, ok := store.(*memory.Store)
		if !ok {
			return fmt.Errorf("--memory-snapshot requires the memory storage driver, got %q", cfg.Storage.Driver)
		}
		if err := loadSnapshot(mem, a.snapshotPath); err != nil {
			return err
		}
		a.snapshot = mem
	}

	a.registry = prometheus.NewRegistry()
	recorder, err := core.NewPrometheusMetricsRecorder(a.registry)
	if err != nil {
		return err
	}
	opts := []core.Option{
		core.WithLogger(a.logger),
		core.WithMetricsRecorder(recorder),
	}
	if a.trace {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(a.traceOut)))
	}
	a.svc = core.NewService(store, opts...)
	a.logger.Debug("poemhub ready", "storage", cfg.Storage.Driver, "blob", cfg.Blob.Driver)
	return nil
}

func (a *app) close() error {
	var err error
	if a.snapshot != nil {
		err = saveSnapshot(a.snapshot, a.snapshotPath)
		a.snapshot = nil
	}
	if a.store != nil {
		if cerr := a.store.Close(); err == nil {
			err = cerr
		}
		a.store = nil
	}
	if a.zap != nil {
		_ = a.zap.Sync()
	}
	return err
}

func (a *app) stores() *state.Stores {
	return state.NewStores(a.svc, state.WithStoresLogger(a.logger))
}

func (a *app) chatbot() *chatbot.Client {
	return chatbot.New(
		chatbot.WithURL(a.cfg.Chatbot.URL),
		chatbot.WithTimeout(a.cfg.Chatbot.Timeout),
		chatbot.WithLogger(a.logger),
	)
}
