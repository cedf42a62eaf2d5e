package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

func stubSamplers(t *testing.T, cpuPct float64, memPct float64, cpuErr, memErr error) {
	t.Helper()
	origCPU, origMem := cpuPercent, virtualMemory
	cpuPercent = func(time.Duration, bool) ([]float64, error) {
		if cpuErr != nil {
			return nil, cpuErr
		}
		return []float64{cpuPct}, nil
	}
	virtualMemory = func() (*mem.VirtualMemoryStat, error) {
		if memErr != nil {
			return nil, memErr
		}
		return &mem.VirtualMemoryStat{UsedPercent: memPct}, nil
	}
	t.Cleanup(func() {
		cpuPercent = origCPU
		virtualMemory = origMem
	})
}

func TestSample(t *testing.T) {
	stubSamplers(t, 75, 40, nil, nil)

	c := NewCollector(nil,
		WithTaskCounter(func() int { return 7 }),
		WithConfidenceSource(func() float64 { return 0.8 }),
	)

	m, err := c.Sample()
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if m.CPUUtilization != 0.75 {
		t.Errorf("CPUUtilization = %v, want 0.75", m.CPUUtilization)
	}
	if m.MemoryUtilization != 0.4 {
		t.Errorf("MemoryUtilization = %v, want 0.4", m.MemoryUtilization)
	}
	if m.ActiveTaskCount != 7 {
		t.Errorf("ActiveTaskCount = %d, want 7", m.ActiveTaskCount)
	}
	if m.AverageConfidence != 0.8 {
		t.Errorf("AverageConfidence = %v, want 0.8", m.AverageConfidence)
	}
	if m.SampledAt.IsZero() {
		t.Error("SampledAt is zero, want a timestamp")
	}
}

func TestSample_ClampsOverrange(t *testing.T) {
	stubSamplers(t, 130, -5, nil, nil)

	m, err := NewCollector(nil).Sample()
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if m.CPUUtilization != 1 {
		t.Errorf("CPUUtilization = %v, want clamped to 1", m.CPUUtilization)
	}
	if m.MemoryUtilization != 0 {
		t.Errorf("MemoryUtilization = %v, want clamped to 0", m.MemoryUtilization)
	}
}

func TestSample_PropagatesErrors(t *testing.T) {
	cpuErr := errors.New("cpu unavailable")
	stubSamplers(t, 0, 0, cpuErr, nil)
	if _, err := NewCollector(nil).Sample(); !errors.Is(err, cpuErr) {
		t.Errorf("err = %v, want %v", err, cpuErr)
	}

	memErr := errors.New("mem unavailable")
	stubSamplers(t, 50, 0, nil, memErr)
	if _, err := NewCollector(nil).Sample(); !errors.Is(err, memErr) {
		t.Errorf("err = %v, want %v", err, memErr)
	}
}

func TestNewCollector_Defaults(t *testing.T) {
	stubSamplers(t, 10, 10, nil, nil)

	m, err := NewCollector(nil).Sample()
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if m.ActiveTaskCount != 0 || m.AverageConfidence != 0 {
		t.Errorf("defaults = (%d, %v), want zeros", m.ActiveTaskCount, m.AverageConfidence)
	}
}
