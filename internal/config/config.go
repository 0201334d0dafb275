// Package config provides configuration management for kpsport.
//
// Configuration is loaded from three sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (KPSPORT_ prefix)
//  3. Config file (.kpsport.yaml)
//
// Scalar settings are bound through viper. The list-valued rule sections of
// the same file are read by ParseRulesConfig.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/kpsport/internal/dashboard"
	"github.com/hupe1980/kpsport/internal/helm/renderer"
	"github.com/hupe1980/kpsport/internal/rules"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config represents the global configuration for kpsport.
type Config struct {
	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat"`

	// NoColor disables colored output.
	NoColor bool `mapstructure:"no-color" json:"noColor"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet"`

	// Chart is the kube-prometheus-stack chart: a directory, a .tgz archive
	// or an oci:// reference. The exec renderer needs a directory.
	Chart string `mapstructure:"chart" json:"chart"`

	// Values are the value files passed to helm (last wins).
	Values []string `mapstructure:"values" json:"values"`

	// Renderer selects how templates are rendered: exec or engine.
	Renderer string `mapstructure:"renderer" json:"renderer"`

	// HelmBinary is the helm executable used by the exec renderer.
	HelmBinary string `mapstructure:"helm-binary" json:"helmBinary"`

	// KubeVersion selects the versioned template directories and is passed
	// to helm as the target cluster version.
	KubeVersion string `mapstructure:"kube-version" json:"kubeVersion"`

	// ClusterLabel is the label stripped from rules and dashboards.
	ClusterLabel string `mapstructure:"cluster-label" json:"clusterLabel"`

	// Datasource is bound to the datasource variable of portable dashboards.
	Datasource string `mapstructure:"datasource" json:"datasource"`

	// JobMatch selects how clean-rules finds job filters: substring or
	// selector.
	JobMatch string `mapstructure:"job-match" json:"jobMatch"`

	// DashboardMode selects where dashboard filters are removed: text or
	// structural.
	DashboardMode string `mapstructure:"dashboard-mode" json:"dashboardMode"`

	// Rules holds the list-valued rule settings of the config file.
	Rules RulesConfig `mapstructure:"-" json:"rules"`

	// ConfigFile is the resolved path to the config file used.
	// Set after Load(), not read from config itself.
	ConfigFile string `mapstructure:"-" json:"-"`
}

// Defaults of the conversion settings.
const (
	DefaultChart      = "."
	DefaultValuesFile = "values-dev.yaml"
)

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:      LogLevelInfo,
		LogFormat:     LogFormatText,
		NoColor:       false,
		Quiet:         false,
		Chart:         DefaultChart,
		Values:        []string{DefaultValuesFile},
		Renderer:      string(renderer.KindExec),
		HelmBinary:    renderer.DefaultHelmBinary,
		ClusterLabel:  rules.DefaultLabel,
		Datasource:    dashboard.DefaultDatasource,
		JobMatch:      string(rules.MatchSubstring),
		DashboardMode: string(dashboard.ModeText),
		Rules:         DefaultRulesConfig(),
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		// valid
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
		// valid
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	if _, err := renderer.ParseKind(c.Renderer); err != nil {
		return err
	}

	if _, err := rules.ParseMatchMode(c.JobMatch); err != nil {
		return err
	}

	if _, err := dashboard.ParseMode(c.DashboardMode); err != nil {
		return err
	}

	if c.KubeVersion != "" {
		if _, err := semver.NewVersion(c.KubeVersion); err != nil {
			return fmt.Errorf("invalid kube version %q: %w", c.KubeVersion, err)
		}
	}

	if strings.TrimSpace(c.ClusterLabel) == "" {
		return fmt.Errorf("cluster label must not be empty")
	}

	return c.Rules.Validate()
}

// EffectiveLogLevel returns the log level to use. When Quiet is true the log
// level is overridden to "error" regardless of the configured LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}

	return c.LogLevel
}

// Load initialises configuration from flags, environment variables, and an
// optional config file. A fresh viper instance is used on every call so that
// Load is safe for concurrent tests.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Store the resolved config file path so downstream code can locate it.
	cfg.ConfigFile = v.ConfigFileUsed()

	cfg.Rules = DefaultRulesConfig()

	if cfg.ConfigFile != "" {
		data, err := os.ReadFile(cfg.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", cfg.ConfigFile, err)
		}

		rc, err := ParseRulesConfig(data)
		if err != nil {
			return nil, err
		}

		cfg.Rules = rc.WithDefaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log-level", LogLevelInfo)
	v.SetDefault("log-format", LogFormatText)
	v.SetDefault("no-color", false)
	v.SetDefault("quiet", false)

	d := Default()
	v.SetDefault("chart", d.Chart)
	v.SetDefault("values", d.Values)
	v.SetDefault("renderer", d.Renderer)
	v.SetDefault("helm-binary", d.HelmBinary)
	v.SetDefault("kube-version", "")
	v.SetDefault("cluster-label", d.ClusterLabel)
	v.SetDefault("datasource", d.Datasource)
	v.SetDefault("job-match", d.JobMatch)
	v.SetDefault("dashboard-mode", d.DashboardMode)
}

// configureEnv sets up environment variable support.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("KPSPORT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// configureFile sets up the config file source.
func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	// Auto-discovery mode.
	v.SetConfigName(".kpsport")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "kpsport"))
	}

	if err := v.ReadInConfig(); err != nil {
		// No config file found → perfectly fine in auto-discovery.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}

		// Found a file but it was malformed.
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags walks from cmd up to the root and binds all PersistentFlags.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	// Bind the current command's own flags.
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	// Walk up to root and bind all persistent flags at each level.
	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}
