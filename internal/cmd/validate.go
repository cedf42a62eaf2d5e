package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieleschmidt/nerf-edge-sched/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate <task-graph.yaml>",
	Short: "Check a task-graph file against the configured limits",
	Long: `Validate parses a task-graph file and runs the full validation pass:
per-task bounds, reference resolution, affinity symmetry, aggregate
resource feasibility, and dependency cycle detection.

The exit status is non-zero when any blocking finding is present.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var validateJSON bool

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output findings as JSON")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	graph, err := loadTaskGraph(args[0])
	if err != nil {
		return err
	}

	v := validate.New(validatorLimits(cfg))
	result := v.ValidateTaskSet(graph.taskMap())

	if validateJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("VALIDATION"))
	fmt.Fprintf(out, "%s  tasks: %d  score: %.2f\n",
		mutedStyle.Render(args[0]), len(graph.Tasks), result.Score)

	for _, issue := range result.Errors {
		style := errStyle
		if issue.Severity == validate.SeverityCritical {
			style = style.Bold(true)
		}
		loc := ""
		if issue.TaskID != "" {
			loc = " [" + issue.TaskID + "]"
		}
		fmt.Fprintf(out, "%s%s %s\n", style.Render(string(issue.Severity)+" "+issue.Code), loc, issue.Message)
	}
	for _, w := range result.Warnings {
		loc := ""
		if w.TaskID != "" {
			loc = " [" + w.TaskID + "]"
		}
		fmt.Fprintf(out, "%s%s %s\n", warnStyle.Render("warning "+w.Code), loc, w.Message)
		if w.Suggestion != "" {
			fmt.Fprintf(out, "  %s\n", mutedStyle.Render(w.Suggestion))
		}
	}

	if !result.Valid {
		return fmt.Errorf("%d blocking finding(s)", len(result.Errors))
	}
	fmt.Fprintln(out, okStyle.Render("valid"))
	return nil
}
