// Package config handles configuration loading and validation for the
// opensig client.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete client configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version"`

	// Network is the name of the blockchain to publish to.
	Network string `toml:"network"`

	// NetworksFile optionally points at a JSON file adding or overriding
	// network definitions.
	NetworksFile string `toml:"networks_file"`

	// RPCURL overrides the selected network's default JSON-RPC endpoint.
	RPCURL string `toml:"rpc_url"`

	// Wallet configuration for the signing key.
	Wallet WalletConfig `toml:"wallet"`

	// Receipts configuration for the local signature record.
	Receipts ReceiptsConfig `toml:"receipts"`

	// Watch configuration for file monitoring.
	Watch WatchConfig `toml:"watch"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging"`
}

// WalletConfig holds signing key configuration.
type WalletConfig struct {
	// KeyPath is the path to the secp256k1 private key file.
	KeyPath string `toml:"key_path"`

	// Encrypted indicates the key file is passphrase-protected.
	Encrypted bool `toml:"encrypted"`
}

// ReceiptsConfig holds the local receipt store configuration.
type ReceiptsConfig struct {
	// Enabled determines whether publish receipts are recorded locally.
	Enabled bool `toml:"enabled"`

	// Path is the path to the receipt database.
	Path string `toml:"path"`
}

// WatchConfig holds file watching configuration for the watch command.
type WatchConfig struct {
	// Paths is a list of files or directories to monitor.
	Paths []string `toml:"paths"`

	// DebounceMs is how long a file must be stable before it is signed.
	DebounceMs int `toml:"debounce_ms"`

	// Annotation is recorded alongside automatic signatures.
	Annotation string `toml:"annotation"`

	// EncryptAnnotation encrypts the annotation under the document key.
	EncryptAnnotation bool `toml:"encrypt_annotation"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format"`

	// Output is the log output: "stdout", "stderr", "file", or "both".
	Output string `toml:"output"`

	// FilePath is the path to the log file (when Output includes "file").
	FilePath string `toml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb"`

	// MaxBackups is the number of rotated log files to keep.
	MaxBackups int `toml:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Network: "polygon",
		Wallet: WalletConfig{
			KeyPath: filepath.Join(dir, "key"),
		},
		Receipts: ReceiptsConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "receipts.db"),
		},
		Watch: WatchConfig{
			DebounceMs: 5000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(dir, "opensig.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// DataDir returns the base opensig directory. OPENSIG_DATA_DIR overrides
// the platform default.
func DataDir() string {
	if envDir := os.Getenv("OPENSIG_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".opensig"
	}
	return filepath.Join(home, ".opensig")
}

// Load reads configuration from the specified path. If path is empty the
// default location is used, and a missing file at the default location
// returns the default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides. Variables are
// prefixed with OPENSIG_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("OPENSIG_NETWORK"); v != "" {
		c.Network = v
	}
	if v := os.Getenv("OPENSIG_RPC_URL"); v != "" {
		c.RPCURL = v
	}
	if v := os.Getenv("OPENSIG_KEY_PATH"); v != "" {
		c.Wallet.KeyPath = v
	}
	if v := os.Getenv("OPENSIG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Version != Version {
		return fmt.Errorf("config: unsupported version %d", c.Version)
	}
	if strings.TrimSpace(c.Network) == "" {
		return fmt.Errorf("config: network must not be empty")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: invalid log format %q", c.Logging.Format)
	}
	switch c.Logging.Output {
	case "", "stdout", "stderr", "file", "both":
	default:
		return fmt.Errorf("config: invalid log output %q", c.Logging.Output)
	}
	if (c.Logging.Output == "file" || c.Logging.Output == "both") && c.Logging.FilePath == "" {
		return fmt.Errorf("config: log output %q requires file_path", c.Logging.Output)
	}

	if c.Watch.DebounceMs < 0 {
		return fmt.Errorf("config: debounce_ms must not be negative")
	}
	return nil
}

// EnsureDirectories creates the directories referenced by the config.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Wallet.KeyPath),
		filepath.Dir(c.Receipts.Path),
		filepath.Dir(c.Logging.FilePath),
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
