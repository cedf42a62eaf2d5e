// Package cmd implements the nerfsched command line interface: offline
// inspection of task-graph files against the same planner and validator
// the scheduler runs in-process.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/danieleschmidt/nerf-edge-sched/internal/config"
	"github.com/danieleschmidt/nerf-edge-sched/internal/planner"
	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
	"github.com/danieleschmidt/nerf-edge-sched/internal/validate"
)

var rootCmd = &cobra.Command{
	Use:   "nerfsched",
	Short: "NeRF render task scheduler",
	Long: `Nerfsched plans neural rendering workloads: it validates task graphs,
searches for a resource-feasible schedule with simulated annealing, and
simulates execution with heuristic feedback between runs.`,
	SilenceUsage: true,
}

var cfgFile string

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default searches . and $HOME/.config/nerfsched)")
}

// loadConfig reads the active configuration and rejects an invalid one.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return cfg, nil
}

// plannerConfig maps the file configuration onto the planner.
func plannerConfig(cfg *config.Config) planner.Config {
	return planner.Config{
		Available:          cfg.Planner.Available,
		InitialTemperature: cfg.Annealing.InitialTemperature,
		CoolingRate:        cfg.Annealing.CoolingRate,
		MinTemperature:     cfg.Annealing.MinTemperature,
		MaxIterations:      cfg.Annealing.MaxIterations,
		ReplanInterval:     cfg.PlannerReplanInterval(),
		Seed:               cfg.Annealing.Seed,
	}
}

// validatorLimits maps the file configuration onto the validator.
func validatorLimits(cfg *config.Config) validate.Limits {
	limits := validate.DefaultLimits()
	limits.MaxResources = cfg.Validator.MaxResources
	limits.Available = cfg.Validator.Available
	limits.MaxAffinityLinks = cfg.Validator.MaxAffinityLinks
	limits.LongDuration = secondsToDuration(cfg.Validator.LongDurationSeconds)
	limits.HighMemory = cfg.Validator.HighMemory
	limits.MinWeightNorm = task.MinWeightNorm
	limits.MaxWeightNorm = task.MaxWeightNorm
	limits.ConfidenceFloor = task.ConfidenceFloor
	return limits
}
