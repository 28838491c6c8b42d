// cmd/koinos-nodeman/main.go
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/koinosops/nodeman/internal/compose"
	"github.com/koinosops/nodeman/internal/config"
	"github.com/koinosops/nodeman/internal/download"
	"github.com/koinosops/nodeman/internal/logs"
	"github.com/koinosops/nodeman/internal/node"
	"github.com/koinosops/nodeman/internal/output"
	"github.com/koinosops/nodeman/internal/paths"
	"github.com/koinosops/nodeman/internal/rpc"
	"github.com/koinosops/nodeman/internal/state"
	"github.com/koinosops/nodeman/internal/version"
)

var (
	flagHome    string
	flagConfig  string
	flagVerbose bool
	flagNoColor bool
)

// app bundles the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	out      *output.Logger
	logger   *slog.Logger
	store    *state.Store
	runtime  *compose.Runtime
	manager  *node.Manager
	download *download.Manager
}

// newApp resolves configuration and wires the component graph.
func newApp() (*app, error) {
	home := flagHome
	if home == "" {
		home = paths.HomeDir()
	}
	dataDir := paths.DataDir(home)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	cfg, err := config.NewLoader(dataDir, flagConfig).Load()
	if err != nil {
		return nil, err
	}
	if cfg.Node.InstallDir == "" {
		cfg.Node.InstallDir = paths.InstallDir(home)
	}

	logger := newSlogger(cfg.Log.Level)
	out := output.NewLogger()
	out.SetVerbose(flagVerbose)
	out.SetNoColor(flagNoColor)

	store := state.NewStore(filepath.Join(dataDir, paths.StateFile), logger)
	runtime := compose.New(compose.Config{
		WorkDir: cfg.Node.InstallDir,
		Profile: cfg.Node.Profile,
		Logger:  logger,
	})
	manager := node.NewManager(node.Config{
		InstallDir: cfg.Node.InstallDir,
		Runtime:    runtime,
		Local:      rpc.NewHeightClient(cfg.RPC.LocalEndpoint, rpc.LocalTimeout),
		Remote:     rpc.NewHeightClient(cfg.RPC.RemoteEndpoint, rpc.RemoteTimeout),
		Store:      store,
		Logger:     logger,
	})
	dl := download.New(download.Config{
		DataDir:    cfg.Node.DataDir,
		StagingDir: paths.StagingDir(home),
		IndexURL:   cfg.Snapshot.IndexURL,
		Logger:     logger,
	})

	return &app{
		cfg:      cfg,
		out:      out,
		logger:   logger,
		store:    store,
		runtime:  runtime,
		manager:  manager,
		download: dl,
	}, nil
}

// openRecorder opens the event journal and wraps it in a Recorder. The
// caller owns the journal handle.
func (a *app) openRecorder(home string) (*logs.Recorder, *logs.Journal, error) {
	if home == "" {
		home = paths.HomeDir()
	}
	journal, err := logs.OpenJournal(paths.EventsPath(home))
	if err != nil {
		return nil, nil, err
	}
	return logs.NewRecorder(journal, a.logger), journal, nil
}

func newSlogger(level string) *slog.Logger {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	if flagVerbose {
		lv = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "koinos-nodeman",
		Short:         "Koinos node manager",
		Long:          "koinos-nodeman sets up, syncs, and supervises a local Koinos mainnet node.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagHome, "home", "", "Home directory override (default: the user's home)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to nodeman.toml (default: <data dir>/nodeman.toml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		newSetupCmd(),
		newCheckCmd(),
		newDownloadCmd(),
		newStartCmd(),
		newStopCmd(),
		newRestartCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newLogsCmd(),
		version.NewCmd("koinos-nodeman"),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
