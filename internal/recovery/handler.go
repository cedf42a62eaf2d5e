package recovery

import (
	"runtime/debug"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/danieleschmidt/nerf-edge-sched/internal/errors"
	"github.com/danieleschmidt/nerf-edge-sched/internal/event"
	"github.com/danieleschmidt/nerf-edge-sched/internal/logging"
	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

// failureWindow bounds how many failure records the handler retains.
const failureWindow = 512

// localCorrectionBoost is the confidence nudge applied before strategies
// run, when the snapshot still has room to recover.
const localCorrectionBoost = 0.05

// Report is the outcome of one HandleError call.
type Report struct {
	// FailureID identifies the recorded failure.
	FailureID string

	// Success reports whether a strategy resolved the failure.
	Success bool

	// StrategyID names the resolving strategy, when Success is true.
	StrategyID string

	// Attempts counts strategy attempts consumed by this call.
	Attempts int

	// Escalated reports that every applicable strategy is exhausted.
	Escalated bool

	// Deferred reports that a re-attempt was scheduled instead of a
	// terminal outcome.
	Deferred bool
}

// Stats summarizes recovery history.
type Stats struct {
	Total     int
	Resolved  int
	Escalated int
	Active    int
	ByKind    map[FailureKind]int
}

// Status is the handler's current operational state.
type Status struct {
	Enabled   bool
	Active    int
	Escalated int
}

// Handler records failures and drives recovery strategies. Safe for
// concurrent use; recovery chains run synchronously inside HandleError,
// deferred re-attempts run on their own timers.
type Handler struct {
	bus *event.Bus
	log *logging.Logger

	mu         sync.Mutex
	enabled    bool
	strategies []*Strategy
	failures   *lru.Cache[string, *Failure]
	timers     map[string]*time.Timer

	total     int
	resolved  int
	escalated int
	byKind    map[FailureKind]int
}

// NewHandler creates a Handler with the default strategy set bound to the
// given hooks.
func NewHandler(hooks Hooks, bus *event.Bus, log *logging.Logger) *Handler {
	if bus == nil {
		bus = event.NewBus()
	}
	if log == nil {
		log = logging.NopLogger()
	}
	failures, _ := lru.New[string, *Failure](failureWindow)

	h := &Handler{
		bus:      bus,
		log:      log.WithComponent("recovery"),
		enabled:  true,
		failures: failures,
		timers:   make(map[string]*time.Timer),
		byKind:   make(map[FailureKind]int),
	}
	for _, s := range DefaultStrategies(hooks) {
		h.strategies = append(h.strategies, s)
	}
	h.sortStrategiesLocked()
	return h
}

// AddRecoveryStrategy registers a strategy. Re-registering an ID replaces
// the previous strategy; budgets already consumed under that ID persist.
func (h *Handler) AddRecoveryStrategy(s *Strategy) {
	if s == nil || s.ID == "" || s.Recover == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, existing := range h.strategies {
		if existing.ID == s.ID {
			h.strategies[i] = s
			h.sortStrategiesLocked()
			return
		}
	}
	h.strategies = append(h.strategies, s)
	h.sortStrategiesLocked()
}

func (h *Handler) sortStrategiesLocked() {
	sort.SliceStable(h.strategies, func(i, j int) bool {
		return h.strategies[i].Priority > h.strategies[j].Priority
	})
}

// SetEnabled toggles the handler. While disabled, HandleError records
// nothing and reports failure.
func (h *Handler) SetEnabled(enabled bool) {
	h.mu.Lock()
	h.enabled = enabled
	h.mu.Unlock()
	h.log.Info("recovery toggled", "enabled", enabled)
}

// HandleError records a failure and runs the recovery chain: optional
// cheap local correction on the snapshot, then kind-matched strategies in
// priority order, each bounded by its per-failure retry budget and
// cooldown. It never panics and never returns an error; exhaustion is
// reported through the Report and an escalation event.
func (h *Handler) HandleError(kind FailureKind, severity errors.Severity, cause error, taskID string, snap *Snapshot) Report {
	return h.handle(kind, severity, cause, taskID, snap, nil)
}

// HandleErrorWithContext is HandleError with extra context attached to the
// failure record (for example the reported cycle path).
func (h *Handler) HandleErrorWithContext(kind FailureKind, severity errors.Severity, cause error, taskID string, snap *Snapshot, ctx map[string]any) Report {
	return h.handle(kind, severity, cause, taskID, snap, ctx)
}

func (h *Handler) handle(kind FailureKind, severity errors.Severity, cause error, taskID string, snap *Snapshot, ctx map[string]any) Report {
	h.mu.Lock()
	if !h.enabled {
		h.mu.Unlock()
		h.log.Warn("failure ignored, recovery disabled", "kind", string(kind))
		return Report{}
	}

	f := newFailure(kind, severity, cause, taskID)
	f.Snapshot = snap
	f.Context = ctx
	h.failures.Add(f.ID, f)
	h.total++
	h.byKind[kind]++
	h.mu.Unlock()

	h.bus.Publish(event.NewErrorOccurredEvent(f.ID, string(kind), severity.String(), taskID))
	h.log.Warn("failure recorded",
		"failure_id", f.ID, "kind", string(kind), "severity", severity.String(), "task_id", taskID)

	h.applyLocalCorrection(f)
	return h.runChain(f)
}

// applyLocalCorrection nudges the snapshot before strategies run: when
// confidence is above the floor and the link count leaves headroom, a
// small boost often avoids a full strategy pass.
func (h *Handler) applyLocalCorrection(f *Failure) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := f.Snapshot
	if s == nil {
		return
	}
	if s.Confidence <= task.ConfidenceFloor || s.LinkCount >= task.DefaultMaxAffinityLinks {
		return
	}
	s.Confidence = task.ClampConfidence(s.Confidence + localCorrectionBoost)
	s.RecoveryProbability = deriveRecoveryProbability(s)
}

// runChain tries every applicable strategy once, in priority order. The
// first success stops the chain. If budget remains on cooling strategies a
// deferred re-attempt is scheduled; full exhaustion escalates.
func (h *Handler) runChain(f *Failure) Report {
	now := time.Now()
	attempts := 0

	h.mu.Lock()
	applicable := make([]*Strategy, 0, len(h.strategies))
	for _, s := range h.strategies {
		if s.applies(f.Kind) {
			applicable = append(applicable, s)
		}
	}
	h.mu.Unlock()

	if len(applicable) == 0 {
		return h.escalate(f, attempts)
	}

	for _, s := range applicable {
		h.mu.Lock()
		b := f.budget(s.ID)
		if b.attempts >= s.MaxRetries {
			h.mu.Unlock()
			continue
		}
		if b.attempts > 0 && now.Sub(b.lastAttempt) < s.Cooldown {
			h.mu.Unlock()
			continue
		}
		b.attempts++
		b.lastAttempt = now
		f.Attempts++
		f.Status = StatusRetrying
		h.mu.Unlock()
		attempts++

		out := h.safeRecover(s, f)
		if out.Note != "" {
			h.log.Debug("recovery attempt", "failure_id", f.ID, "strategy", s.ID, "note", out.Note)
		}

		if out.Resolved {
			h.mu.Lock()
			f.Status = StatusResolved
			h.resolved++
			totalAttempts := f.Attempts
			h.mu.Unlock()

			h.bus.Publish(event.NewErrorResolvedEvent(f.ID, string(f.Kind), s.ID, totalAttempts))
			h.log.Info("failure resolved", "failure_id", f.ID, "strategy", s.ID, "attempts", totalAttempts)
			return Report{FailureID: f.ID, Success: true, StrategyID: s.ID, Attempts: attempts}
		}

		if out.RetryAfter > 0 {
			h.scheduleRetry(f, out.RetryAfter)
			return Report{FailureID: f.ID, Attempts: attempts, Deferred: true}
		}
	}

	// Nothing resolved. Escalate only when every applicable strategy has
	// spent its budget; otherwise wait out the cooldowns.
	h.mu.Lock()
	var earliest time.Duration
	exhausted := true
	for _, s := range applicable {
		b := f.budget(s.ID)
		if b.attempts >= s.MaxRetries {
			continue
		}
		exhausted = false
		wait := s.Cooldown - now.Sub(b.lastAttempt)
		if wait <= 0 {
			wait = s.Cooldown
		}
		if earliest == 0 || wait < earliest {
			earliest = wait
		}
	}
	h.mu.Unlock()

	if exhausted {
		return h.escalate(f, attempts)
	}
	h.scheduleRetry(f, earliest)
	return Report{FailureID: f.ID, Attempts: attempts, Deferred: true}
}

// safeRecover runs a strategy attempt, converting panics into a failed
// attempt.
func (h *Handler) safeRecover(s *Strategy, f *Failure) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("recovery strategy panicked",
				"strategy", s.ID, "failure_id", f.ID, "panic", r, "stack", string(debug.Stack()))
			out = Outcome{}
		}
	}()
	return s.Recover(f)
}

// scheduleRetry arms a timer to re-run the chain later. One pending timer
// per failure; a newer request replaces the older timer.
func (h *Handler) scheduleRetry(f *Failure, after time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.timers[f.ID]; ok {
		t.Stop()
	}
	h.timers[f.ID] = time.AfterFunc(after, func() {
		h.mu.Lock()
		delete(h.timers, f.ID)
		enabled := h.enabled
		done := f.Status == StatusResolved || f.Status == StatusEscalated
		h.mu.Unlock()
		if !enabled || done {
			return
		}
		h.runChain(f)
	})
	h.log.Debug("recovery re-attempt scheduled", "failure_id", f.ID, "after", after)
}

// escalate marks the failure terminal and raises the escalation events.
func (h *Handler) escalate(f *Failure, attempts int) Report {
	h.mu.Lock()
	f.Status = StatusEscalated
	h.escalated++
	h.mu.Unlock()

	h.bus.Publish(event.NewErrorEscalatedEvent(f.ID, string(f.Kind), f.Severity.String()))
	h.log.Error("failure escalated", "failure_id", f.ID, "kind", string(f.Kind), "attempts", f.Attempts)

	if f.Severity >= errors.SeverityCritical {
		msg := "critical failure exhausted recovery"
		if f.Cause != nil {
			msg = f.Cause.Error()
		}
		h.bus.Publish(event.NewCriticalAlertEvent(f.ID, string(f.Kind), msg))
	}
	return Report{FailureID: f.ID, Attempts: attempts, Escalated: true}
}

// GetFailure returns a recorded failure by ID.
func (h *Handler) GetFailure(id string) (*Failure, bool) {
	return h.failures.Get(id)
}

// GetErrorStats summarizes recovery history across the retained window.
func (h *Handler) GetErrorStats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := Stats{
		Total:     h.total,
		Resolved:  h.resolved,
		Escalated: h.escalated,
		ByKind:    make(map[FailureKind]int, len(h.byKind)),
	}
	for k, n := range h.byKind {
		st.ByKind[k] = n
	}
	for _, id := range h.failures.Keys() {
		if f, ok := h.failures.Peek(id); ok {
			if f.Status == StatusRecorded || f.Status == StatusRetrying {
				st.Active++
			}
		}
	}
	return st
}

// GetStatus reports the handler's operational state.
func (h *Handler) GetStatus() Status {
	st := h.GetErrorStats()
	h.mu.Lock()
	enabled := h.enabled
	h.mu.Unlock()
	return Status{Enabled: enabled, Active: st.Active, Escalated: st.Escalated}
}

// Close stops pending re-attempt timers.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, t := range h.timers {
		t.Stop()
		delete(h.timers, id)
	}
}
