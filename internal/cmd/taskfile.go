package cmd

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danieleschmidt/nerf-edge-sched/internal/render"
	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

// taskGraph is the in-memory form of a task-graph file: explicit tasks
// plus tasks expanded from frame descriptions, and the affinity links to
// establish between them.
type taskGraph struct {
	Tasks []*task.Task
	Links [][2]string
}

type taskSpec struct {
	ID                string              `yaml:"id"`
	Priority          float64             `yaml:"priority"`
	Duration          string              `yaml:"duration"`
	Dependencies      []string            `yaml:"dependencies"`
	Resources         task.ResourceVector `yaml:"resources"`
	Parallelizability float64             `yaml:"parallelizability"`
}

type frameSpec struct {
	Index    int     `yaml:"index"`
	Quality  string  `yaml:"quality"`
	Priority float64 `yaml:"priority"`
}

type taskFile struct {
	Tasks  []taskSpec  `yaml:"tasks"`
	Frames []frameSpec `yaml:"frames"`
	Links  [][]string  `yaml:"links"`
}

// loadTaskGraph parses a YAML task-graph file. Explicit tasks and frames
// may be mixed; frames expand through the default render pipeline.
func loadTaskGraph(path string) (*taskGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tf taskFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	g := &taskGraph{}
	for i, spec := range tf.Tasks {
		if spec.ID == "" {
			return nil, fmt.Errorf("%s: tasks[%d] has no id", path, i)
		}
		dur, err := time.ParseDuration(spec.Duration)
		if err != nil {
			return nil, fmt.Errorf("%s: task %s duration: %w", path, spec.ID, err)
		}
		t := task.New(spec.ID, spec.Priority, dur)
		t.Dependencies = spec.Dependencies
		t.Resources = spec.Resources
		t.Heuristics.Parallelizability = spec.Parallelizability
		g.Tasks = append(g.Tasks, t)
	}

	if len(tf.Frames) > 0 {
		builder := render.NewBuilder(nil)
		collector := &graphCollector{graph: g}
		frames := make([]render.Frame, len(tf.Frames))
		for i, f := range tf.Frames {
			frames[i] = render.Frame{Index: f.Index, Quality: f.Quality, Priority: f.Priority}
		}
		if err := builder.Submit(collector, frames); err != nil {
			return nil, fmt.Errorf("%s: expanding frames: %w", path, err)
		}
	}

	for i, l := range tf.Links {
		if len(l) != 2 {
			return nil, fmt.Errorf("%s: links[%d] must name exactly two tasks", path, i)
		}
		g.Links = append(g.Links, [2]string{l[0], l[1]})
	}
	return g, nil
}

// taskMap indexes the graph's tasks by ID.
func (g *taskGraph) taskMap() map[string]*task.Task {
	m := make(map[string]*task.Task, len(g.Tasks))
	for _, t := range g.Tasks {
		m[t.ID] = t
	}
	return m
}

// graphCollector adapts a taskGraph to the render.Scheduler surface so
// frame expansion reuses the builder's linking rules.
type graphCollector struct {
	graph *taskGraph
}

func (c *graphCollector) AddTask(t *task.Task) error {
	c.graph.Tasks = append(c.graph.Tasks, t)
	return nil
}

func (c *graphCollector) EntangleTasks(a, b string) error {
	c.graph.Links = append(c.graph.Links, [2]string{a, b})
	return nil
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
