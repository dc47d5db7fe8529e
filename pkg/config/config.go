package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Runtime      RuntimeConfig      `toml:"runtime"`
	Pool         PoolConfig         `toml:"pool"`
	Capabilities CapabilitiesConfig `toml:"capabilities"`
	GitHub       GitHubConfig       `toml:"github"`
	Credentials  CredentialsConfig  `toml:"credentials"`
	Store        StoreConfig        `toml:"store"`
	Gateway      GatewayConfig      `toml:"gateway"`
	Log          LogConfig          `toml:"log"`
	Tracing      TracingConfig      `toml:"tracing"`
}

// RuntimeConfig describes the guest interpreter installation.
type RuntimeConfig struct {
	Interpreter    string `toml:"interpreter"`
	InstallDir     string `toml:"install_dir"`
	HarnessScript  string `toml:"harness_script"`
	WorkspaceRoot  string `toml:"workspace_root"`
	DefaultTimeout string `toml:"default_timeout"`
	MaxTimeout     string `toml:"max_timeout"`
	MaxOutputBytes int    `toml:"max_output_bytes"`
}

type PoolConfig struct {
	Size                int    `toml:"size"`
	MaxUses             int    `toml:"max_uses"`
	IdleTimeout         string `toml:"idle_timeout"`
	AcquireTimeout      string `toml:"acquire_timeout"`
	StartupGrace        string `toml:"startup_grace"`
	MaintenanceInterval string `toml:"maintenance_interval"`
	ShutdownGrace       string `toml:"shutdown_grace"`
}

type CapabilitiesConfig struct {
	AllowRun bool     `toml:"allow_run"`
	AllowEnv []string `toml:"allow_env"`
	AllowNet []string `toml:"allow_net"`
}

type GitHubConfig struct {
	APIBaseURL string `toml:"api_base_url"`
	TokenEnv   string `toml:"token_env"`
}

type CredentialsConfig struct {
	MasterKeyEnv string `toml:"master_key_env"`
}

type StoreConfig struct {
	DSN string `toml:"dsn"`
}

type GatewayConfig struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
	Port    int    `toml:"port"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type TracingConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Interpreter:    "deno",
			InstallDir:     filepath.Join(DataDir(), "runtime"),
			HarnessScript:  "harness.js",
			DefaultTimeout: "60s",
			MaxTimeout:     "5m",
			MaxOutputBytes: 1024 * 1024,
		},
		Pool: PoolConfig{
			Size:                2,
			MaxUses:             50,
			IdleTimeout:         "10m",
			AcquireTimeout:      "15s",
			StartupGrace:        "30s",
			MaintenanceInterval: "30s",
			ShutdownGrace:       "10s",
		},
		Capabilities: CapabilitiesConfig{
			AllowEnv: []string{"HOME", "PATH", "TMPDIR"},
			AllowNet: []string{"api.github.com"},
		},
		GitHub: GitHubConfig{
			APIBaseURL: "https://api.github.com",
			TokenEnv:   "GITHUB_TOKEN",
		},
		Credentials: CredentialsConfig{
			MasterKeyEnv: "GHMCP_MASTER_KEY",
		},
		Store: StoreConfig{
			DSN: filepath.Join(DataDir(), "ghmcp.db"),
		},
		Gateway: GatewayConfig{
			Bind: "loopback",
			Port: 18790,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var (
	current *Config
	mu      sync.RWMutex
)

func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Store.DSN == "" {
		cfg.Store.DSN = filepath.Join(DataDir(), "ghmcp.db")
	}

	mu.Lock()
	current = cfg
	mu.Unlock()

	return cfg, nil
}

func Current() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return Default()
	}
	return current
}

// Duration parses a config duration string, falling back when empty or
// malformed.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func DataDir() string {
	if dir := os.Getenv("GHMCP_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ghmcp"
	}
	return filepath.Join(home, ".ghmcp")
}

func DefaultConfigPath() string {
	return filepath.Join(DataDir(), "ghmcp.toml")
}

func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0700)
}
