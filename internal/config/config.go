// Package config loads and validates the scheduler configuration. The
// configuration is a plain structured record handed to components at
// construction; it is read once at startup from YAML (with environment
// overrides) and may be hot-reloaded via Watch.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/danieleschmidt/nerf-edge-sched/internal/pool"
	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

// Config is the complete scheduler configuration.
type Config struct {
	Planner   PlannerConfig       `mapstructure:"planner"`
	Annealing AnnealingConfig     `mapstructure:"annealing"`
	Scaler    ScalerConfig        `mapstructure:"scaler"`
	Pools     []pool.ResourcePool `mapstructure:"pools"`
	Validator ValidatorConfig     `mapstructure:"validator"`
	Recovery  RecoveryConfig      `mapstructure:"recovery"`
	Logging   LoggingConfig       `mapstructure:"logging"`
}

// PlannerConfig controls the task planner.
type PlannerConfig struct {
	// ReplanIntervalSeconds is the periodic replan cadence while running.
	// Zero disables periodic replanning.
	ReplanIntervalSeconds int `mapstructure:"replan_interval_seconds"`

	// Available is the resource capacity planning schedules against.
	Available task.ResourceVector `mapstructure:"available"`
}

// AnnealingConfig controls the simulated-annealing schedule.
type AnnealingConfig struct {
	InitialTemperature float64 `mapstructure:"initial_temperature"`
	CoolingRate        float64 `mapstructure:"cooling_rate"`
	MinTemperature     float64 `mapstructure:"min_temperature"`
	MaxIterations      int     `mapstructure:"max_iterations"`

	// Seed fixes the random source for reproducible planning. Zero seeds
	// from the clock.
	Seed int64 `mapstructure:"seed"`
}

// ScalerConfig controls the worker pool scaler.
type ScalerConfig struct {
	MinWorkers int `mapstructure:"min_workers"`
	MaxWorkers int `mapstructure:"max_workers"`

	// ScaleUpThreshold and ScaleDownThreshold are utilization bounds in (0, 1).
	ScaleUpThreshold   float64 `mapstructure:"scale_up_threshold"`
	ScaleDownThreshold float64 `mapstructure:"scale_down_threshold"`

	ScaleUpCooldownSeconds   int `mapstructure:"scale_up_cooldown_seconds"`
	ScaleDownCooldownSeconds int `mapstructure:"scale_down_cooldown_seconds"`

	HealthTimeoutSeconds int `mapstructure:"health_timeout_seconds"`
	EvictionGraceSeconds int `mapstructure:"eviction_grace_seconds"`

	ScalingIntervalSeconds int `mapstructure:"scaling_interval_seconds"`
	HealthIntervalSeconds  int `mapstructure:"health_interval_seconds"`
}

// ValidatorConfig controls validation ceilings.
type ValidatorConfig struct {
	MaxResources task.ResourceVector `mapstructure:"max_resources"`
	Available    task.ResourceVector `mapstructure:"available"`

	MaxAffinityLinks    int     `mapstructure:"max_affinity_links"`
	LongDurationSeconds int     `mapstructure:"long_duration_seconds"`
	HighMemory          float64 `mapstructure:"high_memory"`
}

// RecoveryConfig controls the error recovery subsystem.
type RecoveryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Planner: PlannerConfig{
			ReplanIntervalSeconds: 30,
			Available:             task.ResourceVector{CPU: 32, Memory: 65536, GPU: 8, Bandwidth: 4000},
		},
		Annealing: AnnealingConfig{
			InitialTemperature: 100,
			CoolingRate:        0.95,
			MinTemperature:     0.001,
			MaxIterations:      2000,
		},
		Scaler: ScalerConfig{
			MinWorkers:               1,
			MaxWorkers:               10,
			ScaleUpThreshold:         0.8,
			ScaleDownThreshold:       0.3,
			ScaleUpCooldownSeconds:   30,
			ScaleDownCooldownSeconds: 60,
			HealthTimeoutSeconds:     30,
			EvictionGraceSeconds:     120,
			ScalingIntervalSeconds:   5,
			HealthIntervalSeconds:    10,
		},
		Pools: []pool.ResourcePool{
			{
				Name:          "edge",
				Priority:      10,
				Resources:     task.ResourceVector{CPU: 4, Memory: 8192, GPU: 1, Bandwidth: 500},
				MaxConcurrent: 4,
				CostPerHour:   0.5,
				LatencyMs:     2,
				Location:      "edge",
				Availability:  1,
			},
		},
		Validator: ValidatorConfig{
			MaxResources:        task.ResourceVector{CPU: 16, Memory: 16384, GPU: 4, Bandwidth: 1000},
			Available:           task.ResourceVector{CPU: 32, Memory: 65536, GPU: 8, Bandwidth: 4000},
			MaxAffinityLinks:    task.DefaultMaxAffinityLinks,
			LongDurationSeconds: 5,
			HighMemory:          8192,
		},
		Recovery: RecoveryConfig{Enabled: true},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from the given file, falling back to defaults
// for anything unset. An empty path searches the working directory and
// ~/.config/nerfsched for nerfsched.yaml. Environment variables prefixed
// NERFSCHED_ override file values (NERFSCHED_SCALER_MAX_WORKERS=20).
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch loads the configuration and re-invokes onChange with a freshly
// parsed Config every time the file changes on disk. Reloads that fail to
// parse or validate are dropped; the previous configuration stays active.
func Watch(path string, onChange func(*Config)) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		next := Default()
		if err := v.Unmarshal(next); err != nil {
			return
		}
		if errs := next.Validate(); len(errs) > 0 {
			return
		}
		onChange(next)
	})
	v.WatchConfig()
	return cfg, nil
}

// newViper builds a viper instance with defaults, env overrides, and the
// config file located.
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("NERFSCHED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
		return v, nil
	}

	v.SetConfigName("nerfsched")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "nerfsched"))
	}
	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and env cover everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return v, nil
}

// setDefaults registers the default record so partial files merge cleanly.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("planner.replan_interval_seconds", d.Planner.ReplanIntervalSeconds)
	v.SetDefault("planner.available", resourceMap(d.Planner.Available))
	v.SetDefault("annealing.initial_temperature", d.Annealing.InitialTemperature)
	v.SetDefault("annealing.cooling_rate", d.Annealing.CoolingRate)
	v.SetDefault("annealing.min_temperature", d.Annealing.MinTemperature)
	v.SetDefault("annealing.max_iterations", d.Annealing.MaxIterations)
	v.SetDefault("annealing.seed", d.Annealing.Seed)
	v.SetDefault("scaler.min_workers", d.Scaler.MinWorkers)
	v.SetDefault("scaler.max_workers", d.Scaler.MaxWorkers)
	v.SetDefault("scaler.scale_up_threshold", d.Scaler.ScaleUpThreshold)
	v.SetDefault("scaler.scale_down_threshold", d.Scaler.ScaleDownThreshold)
	v.SetDefault("scaler.scale_up_cooldown_seconds", d.Scaler.ScaleUpCooldownSeconds)
	v.SetDefault("scaler.scale_down_cooldown_seconds", d.Scaler.ScaleDownCooldownSeconds)
	v.SetDefault("scaler.health_timeout_seconds", d.Scaler.HealthTimeoutSeconds)
	v.SetDefault("scaler.eviction_grace_seconds", d.Scaler.EvictionGraceSeconds)
	v.SetDefault("scaler.scaling_interval_seconds", d.Scaler.ScalingIntervalSeconds)
	v.SetDefault("scaler.health_interval_seconds", d.Scaler.HealthIntervalSeconds)
	v.SetDefault("validator.max_affinity_links", d.Validator.MaxAffinityLinks)
	v.SetDefault("validator.long_duration_seconds", d.Validator.LongDurationSeconds)
	v.SetDefault("validator.high_memory", d.Validator.HighMemory)
	v.SetDefault("validator.max_resources", resourceMap(d.Validator.MaxResources))
	v.SetDefault("validator.available", resourceMap(d.Validator.Available))
	v.SetDefault("recovery.enabled", d.Recovery.Enabled)
	v.SetDefault("logging.level", d.Logging.Level)
}

func resourceMap(r task.ResourceVector) map[string]any {
	return map[string]any{
		"cpu":       r.CPU,
		"memory":    r.Memory,
		"gpu":       r.GPU,
		"bandwidth": r.Bandwidth,
	}
}

// PlannerReplanInterval converts the configured cadence to a duration.
func (c *Config) PlannerReplanInterval() time.Duration {
	return time.Duration(c.Planner.ReplanIntervalSeconds) * time.Second
}

// ScalerDurations converts the scaler's second-granularity settings.
func (c *Config) ScalerDurations() (up, down, health, grace, scalingTick, healthTick time.Duration) {
	s := c.Scaler
	return time.Duration(s.ScaleUpCooldownSeconds) * time.Second,
		time.Duration(s.ScaleDownCooldownSeconds) * time.Second,
		time.Duration(s.HealthTimeoutSeconds) * time.Second,
		time.Duration(s.EvictionGraceSeconds) * time.Second,
		time.Duration(s.ScalingIntervalSeconds) * time.Second,
		time.Duration(s.HealthIntervalSeconds) * time.Second
}
