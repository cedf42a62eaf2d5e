package pool

import (
	"fmt"

	"github.com/danieleschmidt/nerf-edge-sched/internal/event"
)

// StrategyView is the read-only snapshot an optimization strategy's
// condition is evaluated against.
type StrategyView struct {
	Metrics       Metrics
	WorkerCount   int
	IdleCount     int
	LoadImbalance float64
	AverageEff    float64
}

// OptimizationStrategy is a periodic fleet optimization pass. Conditions
// gate whether the strategy fires; Apply may mutate the fleet through the
// scaler or only return a recommendation.
type OptimizationStrategy struct {
	// Name identifies the strategy in stats and logs.
	Name string

	// Condition reports whether the strategy should fire for this view.
	Condition func(v StrategyView) bool

	// Apply performs the optimization. It runs without the scaler lock
	// held and returns a human-readable description of what it did or
	// recommends.
	Apply func(s *Scaler, v StrategyView) string
}

// lowConfidenceThreshold gates the confidence-boost recommendation.
const lowConfidenceThreshold = 0.5

// imbalanceThreshold gates the rebalance recommendation.
const imbalanceThreshold = 0.3

// defaultOptimizationStrategies returns the built-in strategy set.
func defaultOptimizationStrategies() []*OptimizationStrategy {
	return []*OptimizationStrategy{
		{
			Name: "consolidate-idle",
			Condition: func(v StrategyView) bool {
				return v.IdleCount > 0 && v.WorkerCount > 0 &&
					v.IdleCount > v.WorkerCount/2 &&
					v.Metrics.ActiveTaskCount == 0 &&
					v.Metrics.CPUUtilization < defaultScaleDownThreshold
			},
			Apply: func(s *Scaler, v StrategyView) string {
				s.mu.Lock()
				var removed []string
				for s.idleCountLocked() > s.cfg.IdleBuffer && s.healthyCountLocked() > s.cfg.MinWorkers {
					id := s.scaleDownLocked()
					if id == "" {
						break
					}
					removed = append(removed, id)
				}
				s.mu.Unlock()
				for _, id := range removed {
					s.bus.Publish(event.NewWorkerRemovedEvent(id, "scale_down"))
				}
				if len(removed) == 0 {
					return ""
				}
				return fmt.Sprintf("consolidated %d idle workers", len(removed))
			},
		},
		{
			Name: "confidence-boost",
			Condition: func(v StrategyView) bool {
				return v.Metrics.AverageConfidence > 0 &&
					v.Metrics.AverageConfidence < lowConfidenceThreshold
			},
			Apply: func(s *Scaler, v StrategyView) string {
				return fmt.Sprintf("average task confidence %.2f is low; re-estimate or trim affinity links",
					v.Metrics.AverageConfidence)
			},
		},
		{
			Name: "rebalance",
			Condition: func(v StrategyView) bool {
				return v.LoadImbalance > imbalanceThreshold
			},
			Apply: func(s *Scaler, v StrategyView) string {
				return fmt.Sprintf("load imbalance %.2f across workers; reassign with least-loaded strategy",
					v.LoadImbalance)
			},
		},
	}
}

// AddOptimizationStrategy registers an additional strategy, run after the
// built-in ones on every scaling tick.
func (s *Scaler) AddOptimizationStrategy(strategy *OptimizationStrategy) {
	if strategy == nil || strategy.Condition == nil || strategy.Apply == nil {
		return
	}
	s.mu.Lock()
	s.strategies = append(s.strategies, strategy)
	s.mu.Unlock()
}

// runStrategies evaluates every registered strategy against a fresh view
// and applies the ones whose condition holds. Outcomes land in the stats
// recommendations.
func (s *Scaler) runStrategies(m Metrics) {
	view := s.buildView(m)

	s.mu.Lock()
	strategies := append([]*OptimizationStrategy(nil), s.strategies...)
	s.mu.Unlock()

	var outcomes []string
	for _, strategy := range strategies {
		if !strategy.Condition(view) {
			continue
		}
		if outcome := strategy.Apply(s, view); outcome != "" {
			outcomes = append(outcomes, strategy.Name+": "+outcome)
			s.log.Debug("optimization strategy fired", "strategy", strategy.Name, "outcome", outcome)
		}
	}

	s.mu.Lock()
	s.recommendations = outcomes
	s.mu.Unlock()
}

// buildView snapshots the fleet figures strategies condition on.
func (s *Scaler) buildView(m Metrics) StrategyView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := StrategyView{Metrics: m}
	minUtil, maxUtil := 1.0, 0.0
	var effSum float64
	for _, w := range s.workers {
		if w.Status == StatusFailed {
			continue
		}
		v.WorkerCount++
		if w.Idle() {
			v.IdleCount++
		}
		u := w.Utilization()
		if u < minUtil {
			minUtil = u
		}
		if u > maxUtil {
			maxUtil = u
		}
		effSum += w.Efficiency()
	}
	if v.WorkerCount > 0 {
		v.LoadImbalance = maxUtil - minUtil
		v.AverageEff = effSum / float64(v.WorkerCount)
	}
	return v
}
