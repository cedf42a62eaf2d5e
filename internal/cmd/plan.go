package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieleschmidt/nerf-edge-sched/internal/planner"
	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
	"github.com/danieleschmidt/nerf-edge-sched/internal/util"
	"github.com/danieleschmidt/nerf-edge-sched/internal/validate"
)

var planCmd = &cobra.Command{
	Use:   "plan <task-graph.yaml>",
	Short: "Compute an optimized schedule for a task-graph file",
	Long: `Plan loads a task-graph file, runs the annealing optimizer against the
configured capacity, and prints the resulting execution order with its
estimated time, efficiency, and advantage over serial execution.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

var planJSON bool

func init() {
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Output the plan as JSON")
	rootCmd.AddCommand(planCmd)
}

// buildPlanner assembles an offline planner over a loaded task graph.
func buildPlanner(cfg planner.Config, limits validate.Limits, graph *taskGraph, exec planner.Executor) (*planner.Planner, error) {
	p := planner.New(cfg, exec, nil, nil, validate.New(limits))
	for _, t := range graph.Tasks {
		if err := p.AddTask(t); err != nil {
			return nil, fmt.Errorf("adding task %s: %w", t.ID, err)
		}
	}
	for _, l := range graph.Links {
		if err := p.EntangleTasks(l[0], l[1]); err != nil {
			return nil, fmt.Errorf("linking %s and %s: %w", l[0], l[1], err)
		}
	}
	return p, nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	graph, err := loadTaskGraph(args[0])
	if err != nil {
		return err
	}

	noop := planner.ExecutorFunc(func(context.Context, *task.Task) error { return nil })
	p, err := buildPlanner(plannerConfig(cfg), validatorLimits(cfg), graph, noop)
	if err != nil {
		return err
	}

	result, err := p.PlanOptimal()
	if err != nil {
		return err
	}

	if planJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("SCHEDULE"))
	for i, t := range result.Ordered {
		deps := ""
		if len(t.Dependencies) > 0 {
			deps = mutedStyle.Render(" after " + util.JoinBounded(t.Dependencies, ", ", 4))
		}
		fmt.Fprintf(out, "%3d. %-32s %8s  score %.3f%s\n",
			i+1, util.TruncateString(t.ID, 32), t.EstimatedDuration, t.Score(), deps)
	}
	if len(result.Excluded) > 0 {
		fmt.Fprintf(out, "%s %s\n",
			warnStyle.Render("excluded:"), util.JoinBounded(result.Excluded, ", ", 10))
	}

	fmt.Fprintln(out)
	feasible := okStyle.Render("feasible")
	if !result.Feasible {
		feasible = errStyle.Render("infeasible")
	}
	fmt.Fprintf(out, "total %s  efficiency %.2fx  advantage %.1f%%  objective %.3f  %s\n",
		result.TotalTime, result.Efficiency, result.Advantage*100, result.Objective, feasible)
	return nil
}
