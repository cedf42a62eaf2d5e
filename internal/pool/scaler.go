package pool

import (
	"fmt"
	"sync"
	"time"

	"github.com/danieleschmidt/nerf-edge-sched/internal/errors"
	"github.com/danieleschmidt/nerf-edge-sched/internal/event"
	"github.com/danieleschmidt/nerf-edge-sched/internal/logging"
	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

// Scale decision defaults.
const (
	defaultScaleUpThreshold   = 0.8
	defaultScaleDownThreshold = 0.3
	defaultScaleUpCooldown    = 30 * time.Second
	defaultScaleDownCooldown  = 60 * time.Second
	defaultHealthTimeout      = 30 * time.Second
	defaultEvictionGrace      = 2 * time.Minute
	defaultIdleBuffer         = 2
	maxScaleUpStep            = 2
)

// Metrics is one utilization sample fed into a scaling tick.
type Metrics struct {
	// CPUUtilization and MemoryUtilization are fleet averages in [0, 1].
	CPUUtilization    float64
	MemoryUtilization float64

	// ActiveTaskCount is how many tasks are queued or running.
	ActiveTaskCount int

	// AverageConfidence is the mean task confidence across the active set.
	AverageConfidence float64

	// SampledAt is when the sample was taken.
	SampledAt time.Time
}

// MetricsSource supplies periodic utilization samples for scaling ticks.
type MetricsSource interface {
	Sample() (Metrics, error)
}

// Config holds the scaler's construction-time settings.
type Config struct {
	MinWorkers int
	MaxWorkers int

	// ScaleUpThreshold and ScaleDownThreshold bound the utilization band
	// inside which the fleet size is left alone.
	ScaleUpThreshold   float64
	ScaleDownThreshold float64

	// ScaleUpCooldown and ScaleDownCooldown gate how often each direction
	// may fire.
	ScaleUpCooldown   time.Duration
	ScaleDownCooldown time.Duration

	// HealthTimeout marks a worker failed when its last health update is
	// older than this.
	HealthTimeout time.Duration

	// EvictionGrace is how long a failed worker may linger before eviction.
	EvictionGrace time.Duration

	// IdleBuffer is how many idle workers scale-down always preserves.
	IdleBuffer int

	// ScalingInterval and HealthInterval drive the periodic loops started
	// by Run. Zero disables the respective loop.
	ScalingInterval time.Duration
	HealthInterval  time.Duration
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 10
	}
	if c.ScaleUpThreshold <= 0 {
		c.ScaleUpThreshold = defaultScaleUpThreshold
	}
	if c.ScaleDownThreshold <= 0 {
		c.ScaleDownThreshold = defaultScaleDownThreshold
	}
	if c.ScaleUpCooldown <= 0 {
		c.ScaleUpCooldown = defaultScaleUpCooldown
	}
	if c.ScaleDownCooldown <= 0 {
		c.ScaleDownCooldown = defaultScaleDownCooldown
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = defaultHealthTimeout
	}
	if c.EvictionGrace <= 0 {
		c.EvictionGrace = defaultEvictionGrace
	}
	if c.IdleBuffer <= 0 {
		c.IdleBuffer = defaultIdleBuffer
	}
	return c
}

// Stats is a point-in-time summary of the fleet and scaling history.
type Stats struct {
	WorkerCount   int
	IdleCount     int
	BusyCount     int
	FailedCount   int
	ScaleUps      int
	ScaleDowns    int
	Evictions     int
	LastScaleUp   time.Time
	LastScaleDown time.Time

	// AverageEfficiency is the mean rolling efficiency of healthy workers.
	AverageEfficiency float64

	// Recommendations are the latest optimization-strategy suggestions.
	Recommendations []string
}

// Scaler owns the worker fleet. Mutation is serialized on one mutex, like
// the planner's task registry; the periodic loops only ever call exported
// methods, so callers and timers interleave safely.
type Scaler struct {
	cfg Config
	bus *event.Bus
	log *logging.Logger

	mu         sync.Mutex
	workers    map[string]*Worker
	pools      map[string]*ResourcePool
	balancers  map[string]Balancer
	strategies []*OptimizationStrategy

	nextWorkerID    int
	scaleUps        int
	scaleDowns      int
	evictions       int
	lastScaleUp     time.Time
	lastScaleDown   time.Time
	recommendations []string

	stopCh chan struct{}
	wg     sync.WaitGroup
	runMu  sync.Mutex
}

// NewScaler creates a Scaler over the given resource pools and starts the
// fleet at MinWorkers.
func NewScaler(cfg Config, pools []ResourcePool, bus *event.Bus, log *logging.Logger) *Scaler {
	if bus == nil {
		bus = event.NewBus()
	}
	if log == nil {
		log = logging.NopLogger()
	}

	s := &Scaler{
		cfg:       cfg.withDefaults(),
		bus:       bus,
		log:       log.WithComponent("scaler"),
		workers:   make(map[string]*Worker),
		pools:     make(map[string]*ResourcePool, len(pools)),
		balancers: defaultBalancers(),
	}
	for i := range pools {
		p := pools[i]
		s.pools[p.Name] = &p
	}
	s.strategies = defaultOptimizationStrategies()

	s.mu.Lock()
	for len(s.workers) < s.cfg.MinWorkers {
		if s.addWorkerLocked(time.Now()) == nil {
			break
		}
	}
	s.mu.Unlock()
	return s
}

// Run starts the periodic scaling and health loops. The loops run on
// independent timers until Stop is called. Run is a no-op for loops whose
// interval is zero.
func (s *Scaler) Run(src MetricsSource) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})

	if s.cfg.ScalingInterval > 0 && src != nil {
		s.wg.Add(1)
		go s.scalingLoop(src)
	}
	if s.cfg.HealthInterval > 0 {
		s.wg.Add(1)
		go s.healthLoop()
	}
}

// Stop halts the periodic loops.
func (s *Scaler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
	s.stopCh = nil
}

func (s *Scaler) scalingLoop(src MetricsSource) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ScalingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			m, err := src.Sample()
			if err != nil {
				s.log.Warn("metrics sample failed", "error", err)
				continue
			}
			s.ProcessScaling(m)
		}
	}
}

func (s *Scaler) healthLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.CheckHealth()
		}
	}
}

// ProcessScaling evaluates one utilization sample and applies at most one
// scale action, then runs the registered optimization strategies. Each
// direction fires at most once per its cooldown window.
func (s *Scaler) ProcessScaling(m Metrics) {
	now := time.Now()
	util := m.CPUUtilization
	if m.MemoryUtilization > util {
		util = m.MemoryUtilization
	}

	s.mu.Lock()
	count := s.healthyCountLocked()
	idle := s.idleCountLocked()

	switch {
	case s.shouldScaleUpLocked(util, m.ActiveTaskCount, count, now):
		added := s.scaleUpLocked(now)
		if added > 0 {
			s.lastScaleUp = now
			s.scaleUps++
			total := s.healthyCountLocked()
			s.mu.Unlock()
			s.bus.Publish(event.NewScalingActionEvent("scale_up", added,
				fmt.Sprintf("utilization %.2f, active tasks %d", util, m.ActiveTaskCount), total))
			s.log.Info("scaled up", "added", added, "workers", total, "utilization", util)
			s.runStrategies(m)
			return
		}
	case s.shouldScaleDownLocked(util, idle, count, now):
		removed := s.scaleDownLocked()
		if removed != "" {
			s.lastScaleDown = now
			s.scaleDowns++
			total := s.healthyCountLocked()
			s.mu.Unlock()
			s.bus.Publish(event.NewWorkerRemovedEvent(removed, "scale_down"))
			s.bus.Publish(event.NewScalingActionEvent("scale_down", -1,
				fmt.Sprintf("utilization %.2f, %d idle", util, idle), total))
			s.log.Info("scaled down", "worker_id", removed, "workers", total, "utilization", util)
			s.runStrategies(m)
			return
		}
	}
	s.mu.Unlock()

	s.runStrategies(m)
}

func (s *Scaler) shouldScaleUpLocked(util float64, activeTasks, count int, now time.Time) bool {
	if count >= s.cfg.MaxWorkers {
		return false
	}
	if now.Sub(s.lastScaleUp) < s.cfg.ScaleUpCooldown {
		return false
	}
	return util > s.cfg.ScaleUpThreshold || activeTasks > 2*count
}

func (s *Scaler) shouldScaleDownLocked(util float64, idle, count int, now time.Time) bool {
	if count <= s.cfg.MinWorkers {
		return false
	}
	if now.Sub(s.lastScaleDown) < s.cfg.ScaleDownCooldown {
		return false
	}
	return util < s.cfg.ScaleDownThreshold && idle > s.cfg.IdleBuffer
}

// scaleUpLocked adds up to two workers from the best available pool.
func (s *Scaler) scaleUpLocked(now time.Time) int {
	added := 0
	for added < maxScaleUpStep && s.healthyCountLocked() < s.cfg.MaxWorkers {
		w := s.addWorkerLocked(now)
		if w == nil {
			break
		}
		added++
	}
	return added
}

// addWorkerLocked instantiates one worker from the best available pool.
// Returns nil when no pool qualifies.
func (s *Scaler) addWorkerLocked(now time.Time) *Worker {
	p := pickScaleUpPool(s.pools)
	if p == nil {
		s.log.Warn("no resource pool available for scale up")
		return nil
	}
	s.nextWorkerID++
	w := newWorker(fmt.Sprintf("%s-worker-%d", p.Name, s.nextWorkerID), p, now)
	s.workers[w.ID] = w
	s.bus.Publish(event.NewWorkerAddedEvent(w.ID, p.Name))
	return w
}

// scaleDownLocked removes the lowest-efficiency idle worker. Returns the
// removed worker's ID, or empty when no worker was removable.
func (s *Scaler) scaleDownLocked() string {
	var victim *Worker
	for _, w := range s.workers {
		if !w.Idle() {
			continue
		}
		if victim == nil || w.Efficiency() < victim.Efficiency() ||
			(w.Efficiency() == victim.Efficiency() && w.ID < victim.ID) {
			victim = w
		}
	}
	if victim == nil {
		return ""
	}
	delete(s.workers, victim.ID)
	return victim.ID
}

// ScaleToTarget grows or shrinks the fleet toward n healthy workers,
// clamped into [MinWorkers, MaxWorkers]. Shrinking removes idle workers
// only; busy workers are left to drain.
func (s *Scaler) ScaleToTarget(n int) error {
	if n < s.cfg.MinWorkers {
		n = s.cfg.MinWorkers
	}
	if n > s.cfg.MaxWorkers {
		n = s.cfg.MaxWorkers
	}

	now := time.Now()
	var added, removed []string

	s.mu.Lock()
	for s.healthyCountLocked() < n {
		w := s.addWorkerLocked(now)
		if w == nil {
			s.mu.Unlock()
			return errors.NewPoolError("cannot reach target worker count", errors.ErrPoolExhausted)
		}
		added = append(added, w.ID)
	}
	for s.healthyCountLocked() > n {
		id := s.scaleDownLocked()
		if id == "" {
			break // remaining workers are busy; let them drain
		}
		removed = append(removed, id)
	}
	total := s.healthyCountLocked()
	s.mu.Unlock()

	for _, id := range removed {
		s.bus.Publish(event.NewWorkerRemovedEvent(id, "target"))
	}
	if len(added) > 0 || len(removed) > 0 {
		s.log.Info("scaled to target", "target", n, "added", len(added), "removed", len(removed), "workers", total)
	}
	return nil
}

// AssignTasks distributes tasks across healthy workers using the named
// strategy and records the assignments on each worker. Unknown strategy
// names fall back to round-robin.
func (s *Scaler) AssignTasks(tasks []*task.Task, strategy string) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	workers := healthySorted(s.workers)
	if len(workers) == 0 {
		return nil, errors.NewPoolError("no healthy workers to assign to", errors.ErrNoWorkers)
	}

	b, ok := s.balancers[strategy]
	if !ok {
		s.log.Debug("unknown balancing strategy, using round-robin", "strategy", strategy)
		b = s.balancers[StrategyRoundRobin]
	}

	assignments := b.Assign(tasks, workers)
	now := time.Now()
	for workerID, taskIDs := range assignments {
		w := s.workers[workerID]
		for _, id := range taskIDs {
			w.Running[id] = now
		}
		w.LastHealth = now
		w.refreshStatus()
	}
	return assignments, nil
}

// HandleTaskCompletion records a successful finish on a worker.
func (s *Scaler) HandleTaskCompletion(workerID, taskID string, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[workerID]
	if !ok {
		return errors.NewNotFoundError("worker", workerID)
	}
	delete(w.Running, taskID)
	w.Completed++
	w.TotalBusy += duration
	w.LastHealth = time.Now()
	w.refreshStatus()
	return nil
}

// HandleTaskFailure records a failed finish on a worker.
func (s *Scaler) HandleTaskFailure(workerID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[workerID]
	if !ok {
		return errors.NewNotFoundError("worker", workerID)
	}
	delete(w.Running, taskID)
	w.Failed++
	w.LastHealth = time.Now()
	w.refreshStatus()
	return nil
}

// Heartbeat refreshes a worker's health timestamp. A heartbeat from a
// failed worker recovers it before the grace period expires.
func (s *Scaler) Heartbeat(workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[workerID]
	if !ok {
		return errors.NewNotFoundError("worker", workerID)
	}
	w.LastHealth = time.Now()
	if w.Status == StatusFailed && w.FailureRate() <= failureRateLimit {
		w.Status = StatusIdle
		w.FailedSince = time.Time{}
		w.refreshStatus()
		s.log.Info("worker recovered", "worker_id", workerID)
	}
	return nil
}

// CheckHealth runs one health pass: stale or failure-prone workers are
// marked failed, and failed workers past the grace period are evicted.
func (s *Scaler) CheckHealth() {
	now := time.Now()
	type finding struct {
		id, reason string
		evicted    bool
	}
	var findings []finding

	s.mu.Lock()
	for id, w := range s.workers {
		if w.Status == StatusFailed {
			if now.Sub(w.FailedSince) > s.cfg.EvictionGrace {
				delete(s.workers, id)
				s.evictions++
				findings = append(findings, finding{id: id, evicted: true})
			}
			continue
		}
		if now.Sub(w.LastHealth) > s.cfg.HealthTimeout {
			w.markFailed(now)
			findings = append(findings, finding{id: id, reason: "stale_heartbeat"})
			continue
		}
		if w.Completed+w.Failed >= failureRateMinSamples && w.FailureRate() > failureRateLimit {
			w.markFailed(now)
			findings = append(findings, finding{id: id, reason: "failure_rate"})
		}
	}
	s.mu.Unlock()

	for _, f := range findings {
		if f.evicted {
			s.bus.Publish(event.NewWorkerRemovedEvent(f.id, "unhealthy"))
			s.log.Warn("worker evicted", "worker_id", f.id)
		} else {
			s.bus.Publish(event.NewWorkerUnhealthyEvent(f.id, f.reason))
			s.log.Warn("worker unhealthy", "worker_id", f.id, "reason", f.reason)
		}
	}
}

// GetWorker returns a copy of one worker.
func (s *Scaler) GetWorker(id string) (*Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return nil, errors.NewNotFoundError("worker", id)
	}
	return w.snapshot(), nil
}

// WorkerCount returns the number of non-failed workers.
func (s *Scaler) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthyCountLocked()
}

// GetScalingStats summarizes the fleet and scaling history.
func (s *Scaler) GetScalingStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		ScaleUps:        s.scaleUps,
		ScaleDowns:      s.scaleDowns,
		Evictions:       s.evictions,
		LastScaleUp:     s.lastScaleUp,
		LastScaleDown:   s.lastScaleDown,
		Recommendations: append([]string(nil), s.recommendations...),
	}
	var effSum float64
	for _, w := range s.workers {
		st.WorkerCount++
		switch w.Status {
		case StatusFailed:
			st.FailedCount++
			continue
		case StatusIdle:
			st.IdleCount++
		default:
			st.BusyCount++
		}
		effSum += w.Efficiency()
	}
	if healthy := st.WorkerCount - st.FailedCount; healthy > 0 {
		st.AverageEfficiency = effSum / float64(healthy)
	}
	return st
}

func (s *Scaler) healthyCountLocked() int {
	n := 0
	for _, w := range s.workers {
		if w.Status != StatusFailed {
			n++
		}
	}
	return n
}

func (s *Scaler) idleCountLocked() int {
	n := 0
	for _, w := range s.workers {
		if w.Idle() {
			n++
		}
	}
	return n
}
