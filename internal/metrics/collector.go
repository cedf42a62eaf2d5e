// Package metrics samples host utilization for scaling decisions.
package metrics

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/danieleschmidt/nerf-edge-sched/internal/logging"
	"github.com/danieleschmidt/nerf-edge-sched/internal/pool"
)

// Sampling seams, replaced in tests.
var (
	cpuPercent    = cpu.Percent
	virtualMemory = mem.VirtualMemory
)

// Collector samples host CPU and memory through gopsutil and merges in
// scheduler-side counts. It implements pool.MetricsSource.
type Collector struct {
	log *logging.Logger

	taskCount     func() int
	avgConfidence func() float64
}

// Option configures a Collector.
type Option func(*Collector)

// WithTaskCounter supplies the active task count included in samples.
func WithTaskCounter(fn func() int) Option {
	return func(c *Collector) { c.taskCount = fn }
}

// WithConfidenceSource supplies the mean task confidence included in
// samples.
func WithConfidenceSource(fn func() float64) Option {
	return func(c *Collector) { c.avgConfidence = fn }
}

// NewCollector creates a Collector. Without options the scheduler-side
// fields sample as zero.
func NewCollector(log *logging.Logger, opts ...Option) *Collector {
	if log == nil {
		log = logging.NopLogger()
	}
	c := &Collector{
		log:           log.WithComponent("metrics"),
		taskCount:     func() int { return 0 },
		avgConfidence: func() float64 { return 0 },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sample reads current host utilization. CPU and memory are fractions in
// [0, 1].
func (c *Collector) Sample() (pool.Metrics, error) {
	m := pool.Metrics{
		ActiveTaskCount:   c.taskCount(),
		AverageConfidence: c.avgConfidence(),
		SampledAt:         time.Now(),
	}

	percents, err := cpuPercent(0, false)
	if err != nil {
		return pool.Metrics{}, err
	}
	if len(percents) > 0 {
		m.CPUUtilization = clampFraction(percents[0] / 100)
	}

	vm, err := virtualMemory()
	if err != nil {
		return pool.Metrics{}, err
	}
	m.MemoryUtilization = clampFraction(vm.UsedPercent / 100)

	c.log.Debug("host sampled",
		"cpu", m.CPUUtilization, "memory", m.MemoryUtilization, "tasks", m.ActiveTaskCount)
	return m, nil
}

func clampFraction(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
