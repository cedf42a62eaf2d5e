package config

import (
	"fmt"
	"strings"
)

// ValidationError describes a single invalid configuration field.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors aggregates every problem found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d configuration error(s): %s", len(e), strings.Join(msgs, "; "))
}

// Validate checks the whole configuration and returns every problem found.
// An empty slice means the configuration is usable.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	errs = append(errs, c.Planner.validate()...)
	errs = append(errs, c.Annealing.validate()...)
	errs = append(errs, c.Scaler.validate()...)
	errs = append(errs, c.validatePools()...)
	errs = append(errs, c.Validator.validate()...)
	errs = append(errs, c.Logging.validate()...)
	return errs
}

func (c PlannerConfig) validate() ValidationErrors {
	var errs ValidationErrors
	if c.ReplanIntervalSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "planner.replan_interval_seconds",
			Value:   c.ReplanIntervalSeconds,
			Message: "must be zero or positive",
		})
	}
	if c.Available.CPU <= 0 && c.Available.Memory <= 0 && c.Available.GPU <= 0 && c.Available.Bandwidth <= 0 {
		errs = append(errs, ValidationError{
			Field:   "planner.available",
			Value:   c.Available,
			Message: "at least one capacity dimension must be positive",
		})
	}
	return errs
}

func (c AnnealingConfig) validate() ValidationErrors {
	var errs ValidationErrors
	if c.InitialTemperature <= 0 {
		errs = append(errs, ValidationError{
			Field:   "annealing.initial_temperature",
			Value:   c.InitialTemperature,
			Message: "must be positive",
		})
	}
	if c.CoolingRate <= 0 || c.CoolingRate >= 1 {
		errs = append(errs, ValidationError{
			Field:   "annealing.cooling_rate",
			Value:   c.CoolingRate,
			Message: "must be within (0, 1)",
		})
	}
	if c.MinTemperature <= 0 {
		errs = append(errs, ValidationError{
			Field:   "annealing.min_temperature",
			Value:   c.MinTemperature,
			Message: "must be positive",
		})
	}
	if c.MinTemperature >= c.InitialTemperature {
		errs = append(errs, ValidationError{
			Field:   "annealing.min_temperature",
			Value:   c.MinTemperature,
			Message: "must be below initial_temperature",
		})
	}
	if c.MaxIterations <= 0 {
		errs = append(errs, ValidationError{
			Field:   "annealing.max_iterations",
			Value:   c.MaxIterations,
			Message: "must be positive",
		})
	}
	return errs
}

func (c ScalerConfig) validate() ValidationErrors {
	var errs ValidationErrors
	if c.MinWorkers < 0 {
		errs = append(errs, ValidationError{
			Field:   "scaler.min_workers",
			Value:   c.MinWorkers,
			Message: "must be zero or positive",
		})
	}
	if c.MaxWorkers < 1 {
		errs = append(errs, ValidationError{
			Field:   "scaler.max_workers",
			Value:   c.MaxWorkers,
			Message: "must be at least 1",
		})
	}
	if c.MaxWorkers < c.MinWorkers {
		errs = append(errs, ValidationError{
			Field:   "scaler.max_workers",
			Value:   c.MaxWorkers,
			Message: "must not be below min_workers",
		})
	}
	if c.ScaleUpThreshold <= 0 || c.ScaleUpThreshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "scaler.scale_up_threshold",
			Value:   c.ScaleUpThreshold,
			Message: "must be within (0, 1]",
		})
	}
	if c.ScaleDownThreshold < 0 || c.ScaleDownThreshold >= 1 {
		errs = append(errs, ValidationError{
			Field:   "scaler.scale_down_threshold",
			Value:   c.ScaleDownThreshold,
			Message: "must be within [0, 1)",
		})
	}
	if c.ScaleDownThreshold >= c.ScaleUpThreshold {
		errs = append(errs, ValidationError{
			Field:   "scaler.scale_down_threshold",
			Value:   c.ScaleDownThreshold,
			Message: "must be below scale_up_threshold",
		})
	}
	for field, v := range map[string]int{
		"scaler.scale_up_cooldown_seconds":   c.ScaleUpCooldownSeconds,
		"scaler.scale_down_cooldown_seconds": c.ScaleDownCooldownSeconds,
		"scaler.health_timeout_seconds":      c.HealthTimeoutSeconds,
		"scaler.eviction_grace_seconds":      c.EvictionGraceSeconds,
		"scaler.scaling_interval_seconds":    c.ScalingIntervalSeconds,
		"scaler.health_interval_seconds":     c.HealthIntervalSeconds,
	} {
		if v < 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Value:   v,
				Message: "must be zero or positive",
			})
		}
	}
	return errs
}

func (c *Config) validatePools() ValidationErrors {
	var errs ValidationErrors
	if len(c.Pools) == 0 {
		errs = append(errs, ValidationError{
			Field:   "pools",
			Value:   c.Pools,
			Message: "at least one resource pool is required",
		})
		return errs
	}

	seen := make(map[string]bool, len(c.Pools))
	for i, p := range c.Pools {
		prefix := fmt.Sprintf("pools[%d]", i)
		if p.Name == "" {
			errs = append(errs, ValidationError{
				Field:   prefix + ".name",
				Value:   p.Name,
				Message: "must not be empty",
			})
		} else if seen[p.Name] {
			errs = append(errs, ValidationError{
				Field:   prefix + ".name",
				Value:   p.Name,
				Message: "duplicate pool name",
			})
		}
		seen[p.Name] = true

		if p.MaxConcurrent < 1 {
			errs = append(errs, ValidationError{
				Field:   prefix + ".max_concurrent",
				Value:   p.MaxConcurrent,
				Message: "must be at least 1",
			})
		}
		if p.Availability < 0 || p.Availability > 1 {
			errs = append(errs, ValidationError{
				Field:   prefix + ".availability",
				Value:   p.Availability,
				Message: "must be within [0, 1]",
			})
		}
		if p.CostPerHour < 0 {
			errs = append(errs, ValidationError{
				Field:   prefix + ".cost_per_hour",
				Value:   p.CostPerHour,
				Message: "must be zero or positive",
			})
		}
		if p.Resources.CPU <= 0 {
			errs = append(errs, ValidationError{
				Field:   prefix + ".resources.cpu",
				Value:   p.Resources.CPU,
				Message: "must be positive",
			})
		}
	}
	return errs
}

func (c ValidatorConfig) validate() ValidationErrors {
	var errs ValidationErrors
	if c.MaxAffinityLinks < 0 {
		errs = append(errs, ValidationError{
			Field:   "validator.max_affinity_links",
			Value:   c.MaxAffinityLinks,
			Message: "must be zero or positive",
		})
	}
	if c.LongDurationSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "validator.long_duration_seconds",
			Value:   c.LongDurationSeconds,
			Message: "must be zero or positive",
		})
	}
	if c.HighMemory < 0 {
		errs = append(errs, ValidationError{
			Field:   "validator.high_memory",
			Value:   c.HighMemory,
			Message: "must be zero or positive",
		})
	}
	return errs
}

func (c LoggingConfig) validate() ValidationErrors {
	switch c.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return ValidationErrors{{
		Field:   "logging.level",
		Value:   c.Level,
		Message: "must be one of debug, info, warn, error",
	}}
}
