// Package config loads the manager configuration with the priority
// defaults < file < environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/koinosops/nodeman/internal/download"
	"github.com/koinosops/nodeman/internal/rpc"
)

// FileName is the default config file name under the data directory.
const FileName = "nodeman.toml"

// Environment variable names.
const (
	EnvInstallDir    = "NODEMAN_INSTALL_DIR"
	EnvDataDir       = "NODEMAN_DATA_DIR"
	EnvSnapshotIndex = "NODEMAN_SNAPSHOT_INDEX"
	EnvLocalRPC      = "NODEMAN_LOCAL_RPC"
	EnvRemoteRPC     = "NODEMAN_REMOTE_RPC"
	EnvPollInterval  = "NODEMAN_POLL_INTERVAL"
	EnvProfile       = "NODEMAN_PROFILE"
	EnvLogLevel      = "NODEMAN_LOG_LEVEL"
)

// Config is the fully resolved manager configuration.
type Config struct {
	Node     NodeConfig     `toml:"node"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	RPC      RPCConfig      `toml:"rpc"`
	Log      LogConfig      `toml:"log"`
}

// NodeConfig locates the installation and tunes the lifecycle loop.
type NodeConfig struct {
	// InstallDir holds docker-compose.yml and node configuration.
	InstallDir string `toml:"install_dir"`

	// DataDir holds the extracted blockchain data.
	DataDir string `toml:"data_dir"`

	// Profile is the compose profile brought up on start.
	Profile string `toml:"profile"`

	// PollInterval is the status poller cadence.
	PollInterval time.Duration `toml:"poll_interval"`
}

// SnapshotConfig tunes the snapshot download.
type SnapshotConfig struct {
	// IndexURL lists the available snapshot archives.
	IndexURL string `toml:"index_url"`
}

// RPCConfig holds the chain query endpoints.
type RPCConfig struct {
	// LocalEndpoint is the node's own JSON-RPC address.
	LocalEndpoint string `toml:"local_endpoint"`

	// RemoteEndpoint is the public reference API.
	RemoteEndpoint string `toml:"remote_endpoint"`
}

// LogConfig tunes manager logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
}

// fileConfig mirrors Config with pointer fields so absent keys can be
// told apart from zero values when merging.
type fileConfig struct {
	Node struct {
		InstallDir   *string `toml:"install_dir"`
		DataDir      *string `toml:"data_dir"`
		Profile      *string `toml:"profile"`
		PollInterval *string `toml:"poll_interval"`
	} `toml:"node"`
	Snapshot struct {
		IndexURL *string `toml:"index_url"`
	} `toml:"snapshot"`
	RPC struct {
		LocalEndpoint  *string `toml:"local_endpoint"`
		RemoteEndpoint *string `toml:"remote_endpoint"`
	} `toml:"rpc"`
	Log struct {
		Level *string `toml:"level"`
	} `toml:"log"`
}

// Default returns the built-in configuration. Install and data dirs are
// left empty; the caller fills them from the well-known paths.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			Profile:      "all",
			PollInterval: 5 * time.Second,
		},
		Snapshot: SnapshotConfig{
			IndexURL: download.DefaultSnapshotIndex,
		},
		RPC: RPCConfig{
			LocalEndpoint:  rpc.DefaultLocalEndpoint,
			RemoteEndpoint: rpc.DefaultRemoteEndpoint,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Loader resolves the configuration from defaults, an optional TOML
// file, and environment variables.
type Loader struct {
	dataDir    string
	configPath string
}

// NewLoader creates a Loader. An empty configPath falls back to
// dataDir/nodeman.toml.
func NewLoader(dataDir, configPath string) *Loader {
	return &Loader{dataDir: dataDir, configPath: configPath}
}

// Load resolves the configuration. A missing config file is fine; an
// unparseable one is an error rather than a silent fallback, since the
// user wrote it on purpose.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()
	if l.dataDir != "" {
		cfg.Node.DataDir = l.dataDir
	}

	file, err := l.loadFile()
	if err != nil {
		return nil, err
	}
	if file != nil {
		if err := merge(cfg, file); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func (l *Loader) loadFile() (*fileConfig, error) {
	path := l.configPath
	if path == "" {
		path = filepath.Join(l.dataDir, FileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileConfig
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid TOML in %s: %w", path, err)
	}
	return &file, nil
}

func merge(cfg *Config, file *fileConfig) error {
	if file.Node.InstallDir != nil {
		cfg.Node.InstallDir = *file.Node.InstallDir
	}
	if file.Node.DataDir != nil {
		cfg.Node.DataDir = *file.Node.DataDir
	}
	if file.Node.Profile != nil {
		cfg.Node.Profile = *file.Node.Profile
	}
	if file.Node.PollInterval != nil {
		d, err := time.ParseDuration(*file.Node.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval %q: %w", *file.Node.PollInterval, err)
		}
		cfg.Node.PollInterval = d
	}
	if file.Snapshot.IndexURL != nil {
		cfg.Snapshot.IndexURL = *file.Snapshot.IndexURL
	}
	if file.RPC.LocalEndpoint != nil {
		cfg.RPC.LocalEndpoint = *file.RPC.LocalEndpoint
	}
	if file.RPC.RemoteEndpoint != nil {
		cfg.RPC.RemoteEndpoint = *file.RPC.RemoteEndpoint
	}
	if file.Log.Level != nil {
		cfg.Log.Level = *file.Log.Level
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvInstallDir); v != "" {
		cfg.Node.InstallDir = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv(EnvProfile); v != "" {
		cfg.Node.Profile = v
	}
	if v := os.Getenv(EnvPollInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Node.PollInterval = d
		}
	}
	if v := os.Getenv(EnvSnapshotIndex); v != "" {
		cfg.Snapshot.IndexURL = v
	}
	if v := os.Getenv(EnvLocalRPC); v != "" {
		cfg.RPC.LocalEndpoint = v
	}
	if v := os.Getenv(EnvRemoteRPC); v != "" {
		cfg.RPC.RemoteEndpoint = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
}
