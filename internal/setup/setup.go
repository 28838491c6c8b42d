// Package setup provisions the node installation: cloning the upstream
// compose repository, seeding the config directory, and tuning the .env
// file for an unattended local node.
package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/koinosops/nodeman/internal/compose"
	"github.com/koinosops/nodeman/internal/exec"
)

// DefaultRepoURL is the upstream repository carrying docker-compose.yml
// and the example configuration.
const DefaultRepoURL = "https://github.com/koinos/koinos"

// envDefaults are appended to .env when absent. COMPOSE_PROFILES must be
// set or compose brings up nothing; the rest keeps a background node
// quiet and restartable.
var envDefaults = [][2]string{
	{"COMPOSE_PROFILES", "all"},
	{"KOINOS_LOG_LEVEL", "warn"},
	{"KOINOS_LOG_JSON", "false"},
	{"COMPOSE_RESTART_POLICY", "unless-stopped"},
}

// Installer performs first-time node setup. Running it on an existing
// installation is safe; every step skips work already done.
type Installer struct {
	installDir string
	repoURL    string
	runtime    *compose.Runtime
	runner     exec.Runner
	logger     *slog.Logger
}

// Config configures the Installer.
type Config struct {
	// InstallDir is where the repository is cloned.
	InstallDir string

	// RepoURL overrides the upstream repository.
	RepoURL string

	// Runtime pre-pulls service images after setup.
	Runtime *compose.Runtime

	// Runner executes git.
	Runner exec.Runner

	// Logger for setup steps.
	Logger *slog.Logger
}

// New creates an Installer.
func New(cfg Config) *Installer {
	if cfg.RepoURL == "" {
		cfg.RepoURL = DefaultRepoURL
	}
	if cfg.Runner == nil {
		cfg.Runner = exec.NewOSRunner()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Installer{
		installDir: cfg.InstallDir,
		repoURL:    cfg.RepoURL,
		runtime:    cfg.Runtime,
		runner:     cfg.Runner,
		logger:     cfg.Logger,
	}
}

// Run performs the full setup sequence: clone, config seed, .env tuning,
// then a best-effort image pre-pull.
func (i *Installer) Run(ctx context.Context) error {
	if err := os.MkdirAll(i.installDir, 0o755); err != nil {
		return fmt.Errorf("failed to create install directory %s: %w", i.installDir, err)
	}

	if err := i.clone(ctx); err != nil {
		return err
	}
	if err := i.seedConfig(); err != nil {
		return err
	}
	if err := i.configureEnv(); err != nil {
		return err
	}

	if i.runtime != nil {
		i.logger.Info("pre-pulling service images")
		if err := i.runtime.Pull(ctx); err != nil {
			// images are pulled again on first start
			i.logger.Warn("image pre-pull failed", "error", err)
		}
	}
	return nil
}

// clone fetches the upstream repository unless docker-compose.yml is
// already in place. Shallow clone keeps the transfer small.
func (i *Installer) clone(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(i.installDir, "docker-compose.yml")); err == nil {
		i.logger.Info("docker-compose.yml already present, skipping clone")
		return nil
	}

	i.logger.Info("cloning node repository", "url", i.repoURL)
	res, err := i.runner.Run(ctx, "", "git", "clone", "--depth", "1", i.repoURL, i.installDir)
	if err != nil {
		return fmt.Errorf("failed to clone %s: %s", i.repoURL, strings.TrimSpace(string(res.Stderr)))
	}
	i.logger.Info("repository cloned")
	return nil
}

// seedConfig copies config-example into config when no config directory
// exists yet. Only top-level files are copied; existing files win.
func (i *Installer) seedConfig() error {
	configDir := filepath.Join(i.installDir, "config")
	exampleDir := filepath.Join(i.installDir, "config-example")

	if _, err := os.Stat(configDir); err == nil {
		i.logger.Debug("config directory already exists")
		return nil
	}
	if _, err := os.Stat(exampleDir); err != nil {
		i.logger.Warn("config-example not found, config may need manual setup")
		return nil
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	entries, err := os.ReadDir(exampleDir)
	if err != nil {
		return fmt.Errorf("failed to read config-example: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(exampleDir, e.Name()), filepath.Join(configDir, e.Name())); err != nil {
			return fmt.Errorf("failed to copy config file %s: %w", e.Name(), err)
		}
	}
	i.logger.Info("config files seeded", "count", len(entries))
	return nil
}

// configureEnv seeds .env from env.example when available, uncomments a
// commented-out COMPOSE_PROFILES line, and appends any missing defaults.
func (i *Installer) configureEnv() error {
	envFile := filepath.Join(i.installDir, ".env")
	example := filepath.Join(i.installDir, "env.example")

	if _, err := os.Stat(envFile); err != nil {
		if _, err := os.Stat(example); err == nil {
			if err := copyFile(example, envFile); err != nil {
				return fmt.Errorf("failed to seed .env: %w", err)
			}
		} else if err := os.WriteFile(envFile, nil, 0o644); err != nil {
			return fmt.Errorf("failed to create .env: %w", err)
		}
	}

	raw, err := os.ReadFile(envFile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", envFile, err)
	}
	content := strings.Replace(string(raw), "#COMPOSE_PROFILES", "COMPOSE_PROFILES", 1)
	if content != string(raw) {
		if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", envFile, err)
		}
	}

	vars, err := godotenv.Read(envFile)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", envFile, err)
	}

	var missing []string
	for _, kv := range envDefaults {
		if _, ok := vars[kv[0]]; !ok {
			missing = append(missing, kv[0]+"="+kv[1])
		}
	}
	if len(missing) == 0 {
		return nil
	}

	f, err := os.OpenFile(envFile, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", envFile, err)
	}
	defer f.Close()
	if _, err := f.WriteString("\n" + strings.Join(missing, "\n") + "\n"); err != nil {
		return fmt.Errorf("failed to write %s: %w", envFile, err)
	}
	i.logger.Info("applied .env defaults", "keys", len(missing))
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
