package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danieleschmidt/nerf-edge-sched/internal/planner"
	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <task-graph.yaml>",
	Short: "Execute a task-graph file against a simulated executor",
	Long: `Simulate plans the task graph and then drains the schedule through a
simulated executor that sleeps each task's estimated duration, compressed
by the speed factor. Heuristic feedback (weight propagation, confidence
updates) runs exactly as it would in production.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

var simulateSpeed float64

func init() {
	simulateCmd.Flags().Float64Var(&simulateSpeed, "speed", 100,
		"Time compression factor (100 = run 100x faster than estimated)")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	graph, err := loadTaskGraph(args[0])
	if err != nil {
		return err
	}
	if simulateSpeed <= 0 {
		return fmt.Errorf("speed must be positive, got %v", simulateSpeed)
	}

	exec := planner.ExecutorFunc(func(ctx context.Context, t *task.Task) error {
		select {
		case <-time.After(time.Duration(float64(t.EstimatedDuration) / simulateSpeed)):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	p, err := buildPlanner(plannerConfig(cfg), validatorLimits(cfg), graph, exec)
	if err != nil {
		return err
	}
	result, err := p.PlanOptimal()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("SIMULATION"))
	fmt.Fprintf(out, "%d task(s), estimated %s\n", len(result.Ordered), result.TotalTime)

	start := time.Now()
	completed := 0
	for {
		t, err := p.ExecuteNext(cmd.Context())
		if err != nil {
			return fmt.Errorf("after %d task(s): %w", completed, err)
		}
		if t == nil {
			break
		}
		completed++
		fmt.Fprintf(out, "%s %s (%s)\n", okStyle.Render("done"), t.ID, t.EstimatedDuration)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "completed %d task(s) in %s (wall), %s (estimated serial)\n",
		completed, time.Since(start).Round(time.Millisecond), result.TotalTime)
	return nil
}
