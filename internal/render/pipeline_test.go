package render

import (
	"testing"
	"time"

	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

func TestDefaultPipeline_DependenciesResolve(t *testing.T) {
	stages := DefaultPipeline()
	names := make(map[string]bool, len(stages))
	for _, s := range stages {
		names[s.Name] = true
	}

	for _, s := range stages {
		for _, dep := range s.DependsOn {
			if !names[dep] {
				t.Errorf("stage %s depends on unknown stage %s", s.Name, dep)
			}
		}
		if s.BaseDuration <= 0 {
			t.Errorf("stage %s has non-positive duration", s.Name)
		}
		if !s.Resources.IsNonNegative() {
			t.Errorf("stage %s has negative resource demand", s.Name)
		}
	}
}

func TestFrameTasks(t *testing.T) {
	b := NewBuilder(nil)
	tasks := b.FrameTasks(Frame{Index: 3, Quality: QualityMedium, Priority: 0.8})

	if len(tasks) != len(DefaultPipeline()) {
		t.Fatalf("got %d tasks, want one per stage", len(tasks))
	}

	byID := make(map[string]*task.Task, len(tasks))
	for _, tk := range tasks {
		byID[tk.ID] = tk
		if tk.Priority != 0.8 {
			t.Errorf("%s priority = %v, want 0.8", tk.ID, tk.Priority)
		}
	}

	vr := byID[TaskID(3, StageVolumeRender)]
	if vr == nil {
		t.Fatal("missing volume-render task")
	}
	if !vr.DependsOn(TaskID(3, StageDensityQuery)) || !vr.DependsOn(TaskID(3, StageColorQuery)) {
		t.Errorf("volume-render deps = %v, want density and color queries", vr.Dependencies)
	}
	if vr.Metadata["stage"] != StageVolumeRender || vr.Metadata["frame"] != 3 {
		t.Errorf("metadata = %v, want stage and frame recorded", vr.Metadata)
	}
}

func TestFrameTasks_QualityScaling(t *testing.T) {
	b := NewBuilder(nil)

	low := b.FrameTasks(Frame{Index: 0, Quality: QualityLow, Priority: 0.5})
	high := b.FrameTasks(Frame{Index: 0, Quality: QualityHigh, Priority: 0.5})

	for i := range low {
		if low[i].EstimatedDuration*3 != high[i].EstimatedDuration {
			t.Errorf("%s durations = (%v, %v), want high = 3x low",
				low[i].ID, low[i].EstimatedDuration, high[i].EstimatedDuration)
		}
		if low[i].Resources.GPU*3 != high[i].Resources.GPU {
			t.Errorf("%s GPU demand = (%v, %v), want high = 3x low",
				low[i].ID, low[i].Resources.GPU, high[i].Resources.GPU)
		}
	}
}

type recordingScheduler struct {
	added   []string
	links   [][2]string
	addErr  error
	linkErr error
}

func (r *recordingScheduler) AddTask(t *task.Task) error {
	if r.addErr != nil {
		return r.addErr
	}
	r.added = append(r.added, t.ID)
	return nil
}

func (r *recordingScheduler) EntangleTasks(a, b string) error {
	if r.linkErr != nil {
		return r.linkErr
	}
	r.links = append(r.links, [2]string{a, b})
	return nil
}

func TestSubmit_LinksParallelStagesAcrossFrames(t *testing.T) {
	b := NewBuilder(nil)
	rec := &recordingScheduler{}

	frames := []Frame{
		{Index: 0, Quality: QualityMedium, Priority: 0.9},
		{Index: 1, Quality: QualityMedium, Priority: 0.9},
	}
	if err := b.Submit(rec, frames); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if want := 2 * len(DefaultPipeline()); len(rec.added) != want {
		t.Errorf("added %d tasks, want %d", len(rec.added), want)
	}

	linked := make(map[[2]string]bool, len(rec.links))
	for _, l := range rec.links {
		linked[l] = true
	}
	if !linked[[2]string{TaskID(0, StageRaySampling), TaskID(1, StageRaySampling)}] {
		t.Errorf("links = %v, want ray-sampling coupled across frames", rec.links)
	}
	for _, l := range rec.links {
		if l[0] == TaskID(0, StagePoseUpdate) || l[1] == TaskID(1, StagePoseUpdate) {
			t.Errorf("pose-update linked (%v); serial stages must not couple", l)
		}
	}
}

func TestSubmit_PropagatesErrors(t *testing.T) {
	b := NewBuilder(nil)

	wantErr := errTest("add failed")
	rec := &recordingScheduler{addErr: wantErr}
	if err := b.Submit(rec, []Frame{{Index: 0}}); err != wantErr {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }

func TestQualityFactor(t *testing.T) {
	tests := []struct {
		quality string
		want    float64
	}{
		{QualityLow, 0.5},
		{QualityMedium, 1},
		{QualityHigh, 1.5},
		{"", 1},
		{"ultra", 1},
	}
	for _, tt := range tests {
		if got := qualityFactor(tt.quality); got != tt.want {
			t.Errorf("qualityFactor(%q) = %v, want %v", tt.quality, got, tt.want)
		}
	}
}

func TestNewBuilder_CustomPipeline(t *testing.T) {
	custom := []Stage{{Name: "single", BaseDuration: time.Millisecond}}
	b := NewBuilder(custom)
	if got := b.Stages(); len(got) != 1 || got[0].Name != "single" {
		t.Errorf("Stages() = %v, want the custom catalog", got)
	}
}
