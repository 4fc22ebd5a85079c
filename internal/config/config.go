// Package config loads vtsdeck settings from defaults, config.yaml, .env and
// the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/jiuai233/StreamDeck/internal/discovery"
	"github.com/jiuai233/StreamDeck/internal/policy"
	"github.com/jiuai233/StreamDeck/internal/profile"
	"github.com/jiuai233/StreamDeck/internal/vts"
)

// EnvPrefix prefixes every environment variable, e.g. VTSDECK_VTS_ENDPOINT.
const EnvPrefix = "VTSDECK"

// Config is passed explicitly to every component; nothing reads it globally.
type Config struct {
	VTS     VTS            `mapstructure:"vts"`
	Retry   policy.Retry   `mapstructure:"retry"`
	Device  profile.Device `mapstructure:"device"`
	Paths   Paths          `mapstructure:"paths"`
	Policy  Policy         `mapstructure:"policy"`
	Logging Logging        `mapstructure:"logging"`
}

// VTS identifies the remote and this plugin to it.
type VTS struct {
	Endpoint        string `mapstructure:"endpoint"`
	PluginName      string `mapstructure:"plugin_name"`
	PluginDeveloper string `mapstructure:"plugin_developer"`
}

// Paths lists every file and folder vtsdeck reads or writes.
type Paths struct {
	OutputDir   string `mapstructure:"output_dir"`
	ImagesDir   string `mapstructure:"images_dir"`
	DefaultIcon string `mapstructure:"default_icon"`
	IDMap       string `mapstructure:"id_map"`
	// InstallDir defaults to the StreamDock profile folder of the current user.
	InstallDir string `mapstructure:"install_dir"`
	History    string `mapstructure:"history"`
	// ModelRoot overrides process discovery of the Live2D model folder.
	ModelRoot string `mapstructure:"model_root"`
}

// Policy optionally replaces the embedded failure classification rules.
type Policy struct {
	File string `mapstructure:"file"`
}

// Logging configures logrus.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("vts.endpoint", "ws://localhost:8001")
	v.SetDefault("vts.plugin_name", "StreamDeck VTube Studio")
	v.SetDefault("vts.plugin_developer", "Mirabox")

	r := policy.DefaultRetry()
	v.SetDefault("retry.max_attempts", r.MaxAttempts)
	v.SetDefault("retry.read_attempts", r.ReadAttempts)
	v.SetDefault("retry.settle_delay", r.SettleDelay)
	v.SetDefault("retry.busy_backoff", r.BusyBackoff)
	v.SetDefault("retry.blocked_backoff", r.BlockedBackoff)
	v.SetDefault("retry.timeout_backoff", r.TimeoutBackoff)
	v.SetDefault("retry.probe_timeout", r.ProbeTimeout)
	v.SetDefault("retry.load_timeout", r.LoadTimeout)
	v.SetDefault("retry.verify_timeout", r.VerifyTimeout)
	v.SetDefault("retry.read_timeout", r.ReadTimeout)
	v.SetDefault("retry.probe_every", r.ProbeEvery)
	v.SetDefault("retry.startup_pause", r.StartupPause)

	v.SetDefault("device.model", "20GBA9901")
	v.SetDefault("device.uuid", "293V3")
	v.SetDefault("device.columns", 5)
	v.SetDefault("device.rows", 3)

	v.SetDefault("paths.output_dir", "StreamDeck_Profiles")
	v.SetDefault("paths.images_dir", "Images")
	v.SetDefault("paths.default_icon", "default.png")
	v.SetDefault("paths.id_map", "profile_uuids.json")
	v.SetDefault("paths.install_dir", "")
	v.SetDefault("paths.history", "vtsdeck.db")
	v.SetDefault("paths.model_root", "")

	v.SetDefault("policy.file", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// defaults are static, a failure here is a programming error
		panic(fmt.Sprintf("unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads configuration. configFile, when set, replaces the search for
// config.yaml in the working directory and ~/.config/vtsdeck.
func Load(configFile string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	setupViper(v, configFile)
	bindEnvironmentVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		logrus.WithField("file", v.ConfigFileUsed()).Debug("Loaded config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFile() {
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Error loading .env file")
	}
}

func setupViper(v *viper.Viper, configFile string) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "vtsdeck"))
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func bindEnvironmentVariables(v *viper.Viper) {
	// the model folder override predates vtsdeck's own prefix
	_ = v.BindEnv("paths.model_root", EnvPrefix+"_PATHS_MODEL_ROOT", discovery.EnvModelRoot)
	_ = v.BindEnv("logging.level", EnvPrefix+"_LOGGING_LEVEL", EnvPrefix+"_LOG_LEVEL")
}

// Validate checks the parts of the configuration that would otherwise fail late.
func (c *Config) Validate() error {
	if c.VTS.Endpoint == "" {
		return errors.New("vts.endpoint is required")
	}
	if !strings.HasPrefix(c.VTS.Endpoint, "ws://") && !strings.HasPrefix(c.VTS.Endpoint, "wss://") {
		return fmt.Errorf("vts.endpoint must be a ws:// or wss:// URL, got %q", c.VTS.Endpoint)
	}
	if c.VTS.PluginName == "" || c.VTS.PluginDeveloper == "" {
		return errors.New("vts.plugin_name and vts.plugin_developer are required")
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if err := c.Device.Grid.Validate(); err != nil {
		return fmt.Errorf("device: %w", err)
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir is required")
	}
	return nil
}

// Client returns the session client settings.
func (c *Config) Client() vts.Config {
	return vts.Config{
		Endpoint:        c.VTS.Endpoint,
		PluginName:      c.VTS.PluginName,
		PluginDeveloper: c.VTS.PluginDeveloper,
		Retry:           c.Retry,
	}
}

// Generator returns the profile generator settings.
func (c *Config) Generator() profile.Options {
	return profile.Options{
		Device:    c.Device,
		OutputDir: c.Paths.OutputDir,
		ImagesDir: c.Paths.ImagesDir,
		Endpoint:  c.VTS.Endpoint,
	}
}

// InstallDir returns the configured install folder or the StreamDock default.
func (c *Config) InstallDir() (string, error) {
	if c.Paths.InstallDir != "" {
		return c.Paths.InstallDir, nil
	}
	return profile.DefaultInstallDir()
}

// Classifier builds the failure classifier from the policy file, or the
// embedded rules when none is configured.
func (c *Config) Classifier(ctx context.Context) (*policy.Classifier, error) {
	if c.Policy.File != "" {
		return policy.NewClassifierFromFile(ctx, c.Policy.File)
	}
	return policy.NewClassifier(ctx, policy.DefaultPolicy)
}
