// Package paths provides centralized path management for the node manager.
package paths

import (
	"os"
	"path/filepath"
)

// Directory names under the user's home directory.
const (
	InstallDirName = "koinos"  // compose repo checkout
	DataDirName    = ".koinos" // blockchain data + manager state
)

// File name constants.
const (
	ComposeFile   = "docker-compose.yml"
	EnvFile       = ".env"
	EnvExample    = "env.example"
	ConfigDir     = "config"
	ConfigExample = "config-example"
	StateFile     = "node_state.json"
	EventsFile    = "events.db"
	ManagerConfig = "nodeman.toml"
)

// DataDirs are the blockchain data directories produced by snapshot
// extraction, moved from the staging root into the data directory.
var DataDirs = []string{
	"chain",
	"block_store",
	"account_history",
	"contract_meta_store",
	"transaction_store",
	"mempool",
	"p2p",
	"grpc",
	"jsonrpc",
}

// HomeDir returns the user's home directory, falling back to the current
// directory when it cannot be determined.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// InstallDir returns the compose repo checkout directory (~/koinos).
func InstallDir(home string) string {
	return filepath.Join(home, InstallDirName)
}

// DataDir returns the blockchain data directory (~/.koinos).
func DataDir(home string) string {
	return filepath.Join(home, DataDirName)
}

// ComposePath returns the docker-compose.yml path inside the install dir.
func ComposePath(home string) string {
	return filepath.Join(InstallDir(home), ComposeFile)
}

// StatePath returns the persisted node state file path.
func StatePath(home string) string {
	return filepath.Join(DataDir(home), StateFile)
}

// EventsPath returns the persistent event journal path.
func EventsPath(home string) string {
	return filepath.Join(DataDir(home), EventsFile)
}

// ConfigPath returns the manager config file path.
func ConfigPath(home string) string {
	return filepath.Join(DataDir(home), ManagerConfig)
}

// StagingDir returns the directory snapshots are downloaded to and
// extracted in before their contents are moved into the data dir.
func StagingDir(home string) string {
	return home
}
