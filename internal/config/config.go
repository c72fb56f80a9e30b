package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/zhuyongyong/crosswalk/internal/branding"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Keys understood by the settings file and environment.
const (
	KeyDownloadURL     = "download_url"
	KeyRequiredVersion = "required_version"
	KeyRuntimeDir      = "runtime_dir"
	KeyBundledArchive  = "bundled_archive"
	KeyChecksum        = "checksum"
	KeyStoreURL        = "store_url"
	KeySigner          = "signer"
	KeyPollInterval    = "poll_interval"
	KeyPausedTimeout   = "paused_timeout"
	KeyRunningTimeout  = "running_timeout"
	KeyLogLevel        = "log_level"
	KeyS3Endpoint      = "s3.endpoint"
	KeyS3AccessKey     = "s3.access_key"
	KeyS3SecretKey     = "s3.secret_key"
	KeyS3UseSSL        = "s3.use_ssl"
	KeyS3Region        = "s3.region"
)

// S3 holds the object storage settings used for s3:// download URLs.
type S3 struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

// Settings is the decoded configuration.
type Settings struct {
	DownloadURL     string        `mapstructure:"download_url"`
	RequiredVersion string        `mapstructure:"required_version"`
	RuntimeDir      string        `mapstructure:"runtime_dir"`
	BundledArchive  string        `mapstructure:"bundled_archive"`
	Checksum        string        `mapstructure:"checksum"`
	StoreURL        string        `mapstructure:"store_url"`
	Signer          string        `mapstructure:"signer"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	PausedTimeout   time.Duration `mapstructure:"paused_timeout"`
	RunningTimeout  time.Duration `mapstructure:"running_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
	S3              S3            `mapstructure:"s3"`
}

// PausedSamples converts the paused timeout into polling samples.
func (s *Settings) PausedSamples() int {
	return samples(s.PausedTimeout, s.PollInterval)
}

// RunningSamples converts the running timeout into polling samples.
func (s *Settings) RunningSamples() int {
	return samples(s.RunningTimeout, s.PollInterval)
}

func samples(timeout, interval time.Duration) int {
	if interval <= 0 {
		return 0
	}
	n := int(timeout / interval)
	if n < 1 {
		n = 1
	}
	return n
}

// Dir returns the path to the config directory (~/.xwalk/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.xwalk/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// DownloadsDir is where downloaded runtime packages are written.
func DownloadsDir() string {
	return filepath.Join(Dir(), "downloads")
}

// StateDir holds the local version marker.
func StateDir() string {
	return filepath.Join(Dir(), "state")
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load initializes Viper to read from the config file and environment.
// Variables from ./.env and ~/.xwalk/.env are exported first; variables
// already set in the environment win.
func Load() error {
	for _, path := range []string{".env", filepath.Join(Dir(), ".env")} {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}

	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	// Ignore error if config file doesn't exist yet.
	_ = viper.ReadInConfig()
	return nil
}

func setDefaults() {
	viper.SetDefault(KeyDownloadURL, "")
	viper.SetDefault(KeyRequiredVersion, "")
	viper.SetDefault(KeyRuntimeDir, filepath.Join(Dir(), "runtime"))
	viper.SetDefault(KeyBundledArchive, "")
	viper.SetDefault(KeyChecksum, "")
	viper.SetDefault(KeyStoreURL, "")
	viper.SetDefault(KeySigner, branding.RuntimeSigner())
	viper.SetDefault(KeyPollInterval, "100ms")
	viper.SetDefault(KeyPausedTimeout, "10m")
	viper.SetDefault(KeyRunningTimeout, "30m")
	viper.SetDefault(KeyLogLevel, "warn")
	viper.SetDefault(KeyS3Endpoint, "")
	viper.SetDefault(KeyS3AccessKey, "")
	viper.SetDefault(KeyS3SecretKey, "")
	viper.SetDefault(KeyS3UseSSL, true)
	viper.SetDefault(KeyS3Region, "")
}

// Current decodes the loaded configuration.
func Current() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	if s.PollInterval <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %s", KeyPollInterval, s.PollInterval)
	}
	return &s, nil
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Set writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)

	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
