// Package render adapts the NeRF rendering pipeline to the scheduler's
// task model. It knows the stage catalog and their resource profiles;
// everything downstream treats the output as ordinary tasks.
package render

import (
	"fmt"
	"time"

	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

// Stage names of the rendering pipeline, in execution order.
const (
	StageRaySampling  = "ray-sampling"
	StageHashEncoding = "hash-encoding"
	StageDensityQuery = "density-query"
	StageColorQuery   = "color-query"
	StageVolumeRender = "volume-render"
	StagePoseUpdate   = "pose-update"
)

// Quality presets scale stage durations and resource demand.
const (
	QualityLow    = "low"
	QualityMedium = "medium"
	QualityHigh   = "high"
)

// Stage describes one pipeline stage: its baseline cost at medium quality
// and its position in the per-frame dependency graph.
type Stage struct {
	Name              string
	BaseDuration      time.Duration
	Resources         task.ResourceVector
	Parallelizability float64
	DependsOn         []string
}

// DefaultPipeline returns the stage catalog. Ray sampling feeds the hash
// encoder, density and color queries consume the encoded features, volume
// rendering composites both, and the pose update closes the loop.
func DefaultPipeline() []Stage {
	return []Stage{
		{
			Name:              StageRaySampling,
			BaseDuration:      2 * time.Millisecond,
			Resources:         task.ResourceVector{CPU: 2, Memory: 256, Bandwidth: 100},
			Parallelizability: 0.9,
		},
		{
			Name:              StageHashEncoding,
			BaseDuration:      1 * time.Millisecond,
			Resources:         task.ResourceVector{CPU: 1, Memory: 1024, GPU: 0.5},
			Parallelizability: 0.8,
			DependsOn:         []string{StageRaySampling},
		},
		{
			Name:              StageDensityQuery,
			BaseDuration:      3 * time.Millisecond,
			Resources:         task.ResourceVector{CPU: 1, Memory: 512, GPU: 1},
			Parallelizability: 0.7,
			DependsOn:         []string{StageHashEncoding},
		},
		{
			Name:              StageColorQuery,
			BaseDuration:      2 * time.Millisecond,
			Resources:         task.ResourceVector{CPU: 1, Memory: 512, GPU: 1},
			Parallelizability: 0.7,
			DependsOn:         []string{StageDensityQuery},
		},
		{
			Name:              StageVolumeRender,
			BaseDuration:      2 * time.Millisecond,
			Resources:         task.ResourceVector{CPU: 2, Memory: 768, GPU: 0.5, Bandwidth: 200},
			Parallelizability: 0.4,
			DependsOn:         []string{StageDensityQuery, StageColorQuery},
		},
		{
			Name:              StagePoseUpdate,
			BaseDuration:      1 * time.Millisecond,
			Resources:         task.ResourceVector{CPU: 1, Memory: 128},
			Parallelizability: 0.2,
			DependsOn:         []string{StageVolumeRender},
		},
	}
}

// qualityFactor scales medium-quality baselines.
func qualityFactor(quality string) float64 {
	switch quality {
	case QualityLow:
		return 0.5
	case QualityHigh:
		return 1.5
	default:
		return 1
	}
}

// Frame describes one frame to schedule.
type Frame struct {
	Index    int
	Quality  string
	Priority float64
}

// TaskID returns the task ID for a frame and stage.
func TaskID(frameIndex int, stage string) string {
	return fmt.Sprintf("frame-%d-%s", frameIndex, stage)
}

// Builder turns frames into scheduler tasks.
type Builder struct {
	pipeline []Stage
}

// NewBuilder creates a Builder over the given pipeline; nil means the
// default catalog.
func NewBuilder(pipeline []Stage) *Builder {
	if len(pipeline) == 0 {
		pipeline = DefaultPipeline()
	}
	return &Builder{pipeline: pipeline}
}

// Stages returns the builder's stage catalog.
func (b *Builder) Stages() []Stage {
	out := make([]Stage, len(b.pipeline))
	copy(out, b.pipeline)
	return out
}

// FrameTasks builds the per-frame task graph. Durations and resources
// scale with the frame's quality preset; dependencies stay within the
// frame.
func (b *Builder) FrameTasks(f Frame) []*task.Task {
	factor := qualityFactor(f.Quality)

	tasks := make([]*task.Task, 0, len(b.pipeline))
	for _, s := range b.pipeline {
		t := task.New(TaskID(f.Index, s.Name),
			task.ClampUnit(f.Priority),
			time.Duration(float64(s.BaseDuration)*factor))
		t.Resources = task.ResourceVector{
			CPU:       s.Resources.CPU * factor,
			Memory:    s.Resources.Memory * factor,
			GPU:       s.Resources.GPU * factor,
			Bandwidth: s.Resources.Bandwidth * factor,
		}
		t.Heuristics.Parallelizability = s.Parallelizability
		for _, dep := range s.DependsOn {
			t.Dependencies = append(t.Dependencies, TaskID(f.Index, dep))
		}
		t.Metadata = map[string]any{
			"frame":   f.Index,
			"stage":   s.Name,
			"quality": f.Quality,
		}
		tasks = append(tasks, t)
	}
	return tasks
}

// Scheduler is the planner surface the adapter needs.
type Scheduler interface {
	AddTask(t *task.Task) error
	EntangleTasks(a, b string) error
}

// Submit adds every frame's tasks to the scheduler and links the same
// stage across consecutive frames. Temporal coherence makes adjacent
// frames' stages behave alike, so their heuristics should move together.
func (b *Builder) Submit(s Scheduler, frames []Frame) error {
	for _, f := range frames {
		for _, t := range b.FrameTasks(f) {
			if err := s.AddTask(t); err != nil {
				return err
			}
		}
	}

	for i := 1; i < len(frames); i++ {
		prev, cur := frames[i-1], frames[i]
		for _, st := range b.pipeline {
			// Serial stages gain nothing from coupling.
			if st.Parallelizability <= 0.5 {
				continue
			}
			if err := s.EntangleTasks(TaskID(prev.Index, st.Name), TaskID(cur.Index, st.Name)); err != nil {
				return err
			}
		}
	}
	return nil
}
