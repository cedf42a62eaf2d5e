package pool

import (
	"sort"

	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

// minAvailability is the availability score a pool needs before the scaler
// will draw workers from it.
const minAvailability = 0.5

// ResourcePool is a named capacity descriptor workers are instantiated
// from. Pools are static configuration; only Availability is expected to
// change at runtime.
type ResourcePool struct {
	// Name uniquely identifies the pool.
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Priority orders pools for scale-up; higher goes first.
	Priority int `json:"priority" yaml:"priority" mapstructure:"priority"`

	// Resources is the per-worker capacity of this pool.
	Resources task.ResourceVector `json:"resources" yaml:"resources" mapstructure:"resources"`

	// MaxConcurrent bounds simultaneous tasks per worker from this pool.
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent" mapstructure:"max_concurrent"`

	// CostPerHour is the billing rate of one worker.
	CostPerHour float64 `json:"cost_per_hour" yaml:"cost_per_hour" mapstructure:"cost_per_hour"`

	// LatencyMs is the expected dispatch latency class of the pool.
	LatencyMs float64 `json:"latency_ms" yaml:"latency_ms" mapstructure:"latency_ms"`

	// Location is a coarse placement class ("edge", "local", "cloud").
	Location string `json:"location" yaml:"location" mapstructure:"location"`

	// Availability is the live fraction of requested capacity the pool can
	// actually deliver, in [0, 1].
	Availability float64 `json:"availability" yaml:"availability" mapstructure:"availability"`
}

// costPerCPU normalizes cost by CPU capacity so pools of different sizes
// compare fairly. Pools with no CPU rank last.
func (p *ResourcePool) costPerCPU() float64 {
	if p.Resources.CPU <= 0 {
		return p.CostPerHour * 1e6
	}
	return p.CostPerHour / p.Resources.CPU
}

// pickScaleUpPool selects the pool to draw new workers from: available
// pools only, highest priority first, then cheapest per CPU. Returns nil
// when no pool qualifies.
func pickScaleUpPool(pools map[string]*ResourcePool) *ResourcePool {
	candidates := make([]*ResourcePool, 0, len(pools))
	for _, p := range pools {
		if p.Availability > minAvailability {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		if ci, cj := candidates[i].costPerCPU(), candidates[j].costPerCPU(); ci != cj {
			return ci < cj
		}
		return candidates[i].Name < candidates[j].Name
	})
	return candidates[0]
}
