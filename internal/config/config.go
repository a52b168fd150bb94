// Package config defines the configuration for a compatibility run.
//
// Defaults live on the struct tags (creasty/defaults); flags and environment
// variables (ENVOY_COMPAT_* with dashes mapped to underscores) override them
// through viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/spire-contrib/envoy-compat/internal/version"
)

type Config struct {
	// Release selection.
	CatalogURL   string `mapstructure:"catalog-url" default:"https://hub.docker.com/v2/repositories/envoyproxy/envoy/tags"`
	PageSize     int    `mapstructure:"page-size" default:"100"`
	MaxReleases  int    `mapstructure:"max-releases" default:"5"`
	FloorVersion string `mapstructure:"floor-version" default:"v1.13"`
	RegistryURL  string `mapstructure:"registry-url" default:"https://hub.docker.com/v2/repositories/envoyproxy/envoy/tags"`

	// Container infrastructure.
	PodmanSocket   string `mapstructure:"podman-socket" default:"unix:///run/podman/podman.sock"`
	ServerImage    string `mapstructure:"server-image" default:"ghcr.io/spiffe/spire-server:1.9.6"`
	TrustDomain    string `mapstructure:"trust-domain" default:"example.org"`
	BuildContext   string `mapstructure:"build-context" default:"build"`
	ContainerFile  string `mapstructure:"container-file" default:"build/Containerfile"`
	KeepContainers bool   `mapstructure:"keep-containers"`

	// Connectivity probe budget.
	ProbeMaxAttempts uint          `mapstructure:"probe-max-attempts" default:"15"`
	ProbeInterval    time.Duration `mapstructure:"probe-interval" default:"2s"`

	LogLevel string `mapstructure:"log-level" default:"info"`
}

// Default returns a Config populated with the struct defaults. The CLI uses
// it to seed flag defaults so --help shows the effective values.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Load resolves the configuration from defaults, environment and flags.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENVOY_COMPAT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := url.Parse(c.CatalogURL); err != nil {
		return fmt.Errorf("invalid catalog url: %w", err)
	}
	if _, err := url.Parse(c.RegistryURL); err != nil {
		return fmt.Errorf("invalid registry url: %w", err)
	}
	if _, err := version.Parse(c.FloorVersion); err != nil {
		return fmt.Errorf("invalid floor version: %w", err)
	}
	if c.MaxReleases <= 0 {
		return fmt.Errorf("max-releases must be positive, got %d", c.MaxReleases)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page-size must be positive, got %d", c.PageSize)
	}
	if c.ProbeMaxAttempts == 0 {
		return fmt.Errorf("probe-max-attempts must be positive")
	}
	if c.TrustDomain == "" {
		return fmt.Errorf("trust-domain is required")
	}
	return nil
}
