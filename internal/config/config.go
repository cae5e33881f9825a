// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aristath/volcorr/internal/modules/dcc"
	"github.com/aristath/volcorr/internal/modules/garch"
	"github.com/aristath/volcorr/internal/utils"
)

// Config holds application configuration
type Config struct {
	DataDir     string // Directory of runs.db, always absolute
	LogLevel    string
	Port        int
	DevMode     bool
	ProfilePath string // Optional YAML profile overriding Search and Optimizer

	// WorkerPoolSize bounds concurrent candidate fits; 0 means one per
	// physical core.
	WorkerPoolSize    int
	SeriesConcurrency int
	RequestTimeout    time.Duration

	Search    garch.SearchConfig
	Optimizer dcc.OptimizerConfig
}

// Profile is the on-disk YAML search profile.
type Profile struct {
	Search    *profileSearch       `yaml:"search"`
	Optimizer *dcc.OptimizerConfig `yaml:"optimizer"`
}

type profileSearch struct {
	MaxP          *int          `yaml:"max_p"`
	MaxQ          *int          `yaml:"max_q"`
	MaxO          *int          `yaml:"max_o"`
	Volatility    []string      `yaml:"volatility"`
	Means         []string      `yaml:"means"`
	Distributions []string      `yaml:"distributions"`
	MaxCandidates *int          `yaml:"max_candidates"`
	FitTimeout    time.Duration `yaml:"fit_timeout"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("VOLCORR_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	defaultOpt := dcc.DefaultOptimizerConfig()
	cfg := &Config{
		DataDir:           dataDir,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Port:              getEnvAsInt("GO_PORT", 8001),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		ProfilePath:       getEnv("VOLCORR_PROFILE", ""),
		WorkerPoolSize:    getEnvAsInt("VOLCORR_WORKERS", 0),
		SeriesConcurrency: getEnvAsInt("VOLCORR_SERIES_CONCURRENCY", 2),
		RequestTimeout:    getEnvAsDuration("VOLCORR_REQUEST_TIMEOUT", 5*time.Minute),
		Search: garch.SearchConfig{
			MaxP:          getEnvAsInt("VOLCORR_MAX_P", 3),
			MaxQ:          getEnvAsInt("VOLCORR_MAX_Q", 3),
			MaxO:          getEnvAsInt("VOLCORR_MAX_O", 0),
			MaxCandidates: getEnvAsInt("VOLCORR_MAX_CANDIDATES", 0),
			FitTimeout:    getEnvAsDuration("VOLCORR_FIT_TIMEOUT", 0),
		},
		Optimizer: dcc.OptimizerConfig{
			InitialAlpha:  getEnvAsFloat("VOLCORR_DCC_ALPHA", defaultOpt.InitialAlpha),
			InitialBeta:   getEnvAsFloat("VOLCORR_DCC_BETA", defaultOpt.InitialBeta),
			MaxIterations: getEnvAsInt("VOLCORR_DCC_MAX_ITERATIONS", defaultOpt.MaxIterations),
			Timeout:       getEnvAsDuration("VOLCORR_DCC_TIMEOUT", 0),
		},
	}

	if err := cfg.setModelLists(
		getEnvAsList("VOLCORR_FAMILIES", []string{"GARCH"}),
		getEnvAsList("VOLCORR_MEANS", []string{"Constant"}),
		getEnvAsList("VOLCORR_DISTRIBUTIONS", []string{"normal"}),
	); err != nil {
		return nil, err
	}

	if cfg.ProfilePath != "" {
		if err := cfg.ApplyProfile(cfg.ProfilePath); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyProfile overlays the YAML profile at path onto the search and
// optimizer settings. Keys missing from the file keep their current values.
func (c *Config) ApplyProfile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to parse profile %s: %w", path, err)
	}

	if s := p.Search; s != nil {
		if s.MaxP != nil {
			c.Search.MaxP = *s.MaxP
		}
		if s.MaxQ != nil {
			c.Search.MaxQ = *s.MaxQ
		}
		if s.MaxO != nil {
			c.Search.MaxO = *s.MaxO
		}
		if s.MaxCandidates != nil {
			c.Search.MaxCandidates = *s.MaxCandidates
		}
		if s.FitTimeout > 0 {
			c.Search.FitTimeout = s.FitTimeout
		}
		if err := c.setModelLists(s.Volatility, s.Means, s.Distributions); err != nil {
			return fmt.Errorf("profile %s: %w", path, err)
		}
	}
	if o := p.Optimizer; o != nil {
		if o.InitialAlpha != 0 {
			c.Optimizer.InitialAlpha = o.InitialAlpha
		}
		if o.InitialBeta != 0 {
			c.Optimizer.InitialBeta = o.InitialBeta
		}
		if o.MaxIterations != 0 {
			c.Optimizer.MaxIterations = o.MaxIterations
		}
		if o.Timeout != 0 {
			c.Optimizer.Timeout = o.Timeout
		}
	}
	return nil
}

// setModelLists parses family, mean and distribution tags. Empty lists leave
// the current values untouched.
func (c *Config) setModelLists(families, means, dists []string) error {
	if len(families) > 0 {
		parsed := make([]garch.VolatilityFamily, 0, len(families))
		for _, s := range families {
			f, err := garch.ParseVolatilityFamily(s)
			if err != nil {
				return err
			}
			parsed = append(parsed, f)
		}
		c.Search.Volatility = parsed
	}
	if len(means) > 0 {
		parsed := make([]garch.MeanModel, 0, len(means))
		for _, s := range means {
			m, err := garch.ParseMeanModel(s)
			if err != nil {
				return err
			}
			parsed = append(parsed, m)
		}
		c.Search.Means = parsed
	}
	if len(dists) > 0 {
		parsed := make([]garch.Distribution, 0, len(dists))
		for _, s := range dists {
			d, err := garch.ParseDistribution(s)
			if err != nil {
				return err
			}
			parsed = append(parsed, d)
		}
		c.Search.Distributions = parsed
	}
	return nil
}

// Validate checks that the configuration can drive an estimation
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.WorkerPoolSize < 0 {
		errs = append(errs, fmt.Errorf("worker pool size must be non-negative, got %d", c.WorkerPoolSize))
	}
	if c.SeriesConcurrency < 1 {
		errs = append(errs, fmt.Errorf("series concurrency must be at least 1, got %d", c.SeriesConcurrency))
	}
	if c.Search.FitTimeout < 0 {
		errs = append(errs, fmt.Errorf("fit timeout must be non-negative, got %s", c.Search.FitTimeout))
	}
	if _, err := c.Search.Specs(); err != nil {
		errs = append(errs, err)
	}
	if !(dcc.Params{Alpha: c.Optimizer.InitialAlpha, Beta: c.Optimizer.InitialBeta}).Valid() {
		errs = append(errs, fmt.Errorf("%w: initial (alpha, beta) = (%g, %g)",
			dcc.ErrInvalidParams, c.Optimizer.InitialAlpha, c.Optimizer.InitialBeta))
	}
	if c.Optimizer.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("dcc iteration budget must be positive, got %d", c.Optimizer.MaxIterations))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if values := utils.ParseCSV(strings.TrimSpace(os.Getenv(key))); values != nil {
		return values
	}
	return defaultValue
}
