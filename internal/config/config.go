package config

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults used when neither the config file nor the environment set a value.
const (
	DefaultCPUTDPW     = 65.0
	DefaultSmoothing   = 0.2
	DefaultSampleHz    = 1.0
	DefaultIdleLearnW  = 5.0
	DefaultIdleGPUSeed = 20.0
	DefaultIdleCPUSeed = 15.0
	DefaultAPIAddr     = "127.0.0.1:8787"
	DefaultHistory     = 300
)

// Config holds agent configuration loaded from ~/.joule/config.yaml and the
// environment. It is immutable once Load returns.
type Config struct {
	CPUTDPW        float64 `yaml:"cpu_tdp_w"`
	SmoothingAlpha float64 `yaml:"smoothing"`
	SampleHz       float64 `yaml:"sample_hz"`
	IdleLearnW     float64 `yaml:"idle_learn_w"`
	IdleGPUSeedW   float64 `yaml:"idle_gpu_seed_w"`
	IdleCPUSeedW   float64 `yaml:"idle_cpu_seed_w"`
	APIAddr        string  `yaml:"api_addr"`
	Metrics        *bool   `yaml:"metrics"`
	History        int     `yaml:"history"`
	Journal        string  `yaml:"journal"`
}

// Default returns a Config with every field at its default.
func Default() Config {
	metrics := true
	return Config{
		CPUTDPW:        DefaultCPUTDPW,
		SmoothingAlpha: DefaultSmoothing,
		SampleHz:       DefaultSampleHz,
		IdleLearnW:     DefaultIdleLearnW,
		IdleGPUSeedW:   DefaultIdleGPUSeed,
		IdleCPUSeedW:   DefaultIdleCPUSeed,
		APIAddr:        DefaultAPIAddr,
		Metrics:        &metrics,
		History:        DefaultHistory,
	}
}

// DefaultPath returns the default config file path: ~/.joule/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".joule", "config.yaml")
}

// Load reads a YAML config file from path, then applies environment
// overrides. If the file does not exist (or path is empty) the defaults are
// used and no error is returned. Values that are out of range are reset to
// their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, err
			}
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.sanitize()
	return cfg, nil
}

// MetricsEnabled reports whether the /metrics endpoint should be served.
func (c Config) MetricsEnabled() bool {
	return c.Metrics == nil || *c.Metrics
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	envFloat(lookup, "CPU_TDP_W", &c.CPUTDPW)
	envFloat(lookup, "SMOOTHING", &c.SmoothingAlpha)
	envFloat(lookup, "SAMPLE_HZ", &c.SampleHz)
	envFloat(lookup, "IDLE_LEARN_W", &c.IdleLearnW)
	if v, ok := lookup("JOULE_API_ADDR"); ok && v != "" {
		c.APIAddr = v
	}
	if v, ok := lookup("JOULE_JOURNAL"); ok && v != "" {
		c.Journal = v
	}
}

// envFloat overwrites dst only when key is set and parses as a float.
func envFloat(lookup func(string) (string, bool), key string, dst *float64) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return
	}
	*dst = f
}

func (c *Config) sanitize() {
	d := Default()
	if !(c.SmoothingAlpha > 0 && c.SmoothingAlpha <= 1) {
		c.SmoothingAlpha = d.SmoothingAlpha
	}
	if !(c.SampleHz > 0) || math.IsInf(c.SampleHz, 0) {
		c.SampleHz = d.SampleHz
	}
	if !(c.IdleLearnW >= 0) || math.IsInf(c.IdleLearnW, 0) {
		c.IdleLearnW = d.IdleLearnW
	}
	if !(c.CPUTDPW >= 0) || math.IsInf(c.CPUTDPW, 0) {
		c.CPUTDPW = d.CPUTDPW
	}
	if !(c.IdleGPUSeedW >= 0) || math.IsInf(c.IdleGPUSeedW, 0) {
		c.IdleGPUSeedW = 0
	}
	if !(c.IdleCPUSeedW >= 0) || math.IsInf(c.IdleCPUSeedW, 0) {
		c.IdleCPUSeedW = 0
	}
	if c.APIAddr == "" {
		c.APIAddr = d.APIAddr
	}
	if c.History <= 0 {
		c.History = d.History
	}
}
