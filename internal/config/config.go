// Package config loads the kp application configuration: defaults first,
// then an optional YAML file (~/.config/kube-posture/config.yaml or --config),
// then KPOSTURE_* environment variables. Policy (rule tuning) is separate and
// lives in the policy package; this file covers operational knobs only.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Defaults applied before any file or environment override.
const (
	DefaultBenchmarkBinary  = "kube-bench"
	DefaultBenchmarkTimeout = 300
	DefaultImageBinary      = "trivy"
	DefaultImageTimeout     = 120
	DefaultImageWorkers     = 3
	DefaultImageRetries     = 2
	DefaultOutputDir        = "./reports"
)

// Config is the top-level application configuration.
type Config struct {
	Kubernetes KubernetesConfig `mapstructure:"kubernetes"`
	Scanners   ScannersConfig   `mapstructure:"scanners"`
	Output     OutputConfig     `mapstructure:"output"`
}

// KubernetesConfig selects the cluster to evaluate.
type KubernetesConfig struct {
	// Kubeconfig overrides kubeconfig resolution when non-empty.
	Kubeconfig string `mapstructure:"kubeconfig"`

	// Context selects a kubeconfig context (empty = current context).
	Context string `mapstructure:"context"`
}

// ScannersConfig configures the optional external scanners.
type ScannersConfig struct {
	Benchmark BenchmarkConfig `mapstructure:"benchmark"`
	Image     ImageConfig     `mapstructure:"image"`
}

// BenchmarkConfig configures the CIS benchmark scanner invocation.
type BenchmarkConfig struct {
	// Binary is the executable looked up on PATH.
	Binary string `mapstructure:"binary"`

	// TimeoutSeconds bounds one scanner run.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// ImageConfig configures the image vulnerability scanner invocations.
type ImageConfig struct {
	// Binary is the executable looked up on PATH.
	Binary string `mapstructure:"binary"`

	// TimeoutSeconds bounds one per-image invocation.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`

	// Workers bounds the number of concurrent image scans.
	Workers int `mapstructure:"workers"`

	// Retries is the number of retry attempts after a failed invocation.
	Retries int `mapstructure:"retries"`
}

// OutputConfig controls report artifacts and console rendering.
type OutputConfig struct {
	// Dir is the directory for report and raw scanner artifacts,
	// created on demand.
	Dir string `mapstructure:"dir"`

	// Color enables ANSI severity coloring on the console stream.
	Color bool `mapstructure:"color"`
}

// Load builds the effective Config. When configPath is empty the default
// location is searched and a missing file is not an error; an explicit
// configPath that cannot be read is.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("scanners.benchmark.binary", DefaultBenchmarkBinary)
	v.SetDefault("scanners.benchmark.timeout_seconds", DefaultBenchmarkTimeout)
	v.SetDefault("scanners.image.binary", DefaultImageBinary)
	v.SetDefault("scanners.image.timeout_seconds", DefaultImageTimeout)
	v.SetDefault("scanners.image.workers", DefaultImageWorkers)
	v.SetDefault("scanners.image.retries", DefaultImageRetries)
	v.SetDefault("output.dir", DefaultOutputDir)
	v.SetDefault("output.color", true)
	v.SetDefault("kubernetes.kubeconfig", "")
	v.SetDefault("kubernetes.context", "")

	v.SetEnvPrefix("KPOSTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", configPath, err)
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "kube-posture"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
