package validate

import (
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultStatsWindow is how many recent validation results feed the
// rolling statistics.
const defaultStatsWindow = 256

// Stats summarizes recent validation activity.
type Stats struct {
	// TotalValidations is the lifetime count of validation passes.
	TotalValidations uint64 `json:"total_validations"`

	// AverageScore is the moving average of result scores over the window.
	AverageScore float64 `json:"average_score"`

	// ErrorRate is the fraction of windowed results that were invalid.
	ErrorRate float64 `json:"error_rate"`

	// TopCodes are the most frequent finding codes in the window, most
	// frequent first, at most five entries.
	TopCodes []CodeCount `json:"top_codes,omitempty"`

	// Trend compares the newer half of the window against the older half:
	// "improving", "degrading", or "stable".
	Trend string `json:"trend"`
}

// CodeCount pairs a finding code with its occurrence count.
type CodeCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// statsEntry is one windowed validation outcome.
type statsEntry struct {
	seq   uint64
	score float64
	valid bool
	codes []string
	at    time.Time
}

// statsWindow keeps a bounded history of validation outcomes. The LRU
// evicts the oldest entries once the window is full, so the statistics
// always reflect recent behavior.
type statsWindow struct {
	window *lru.Cache[uint64, statsEntry]
	seq    uint64
	total  uint64
}

func newStatsWindow(size int) *statsWindow {
	// Size is a small positive constant; construction cannot fail.
	c, _ := lru.New[uint64, statsEntry](size)
	return &statsWindow{window: c}
}

// record adds one validation result to the window.
func (v *Validator) record(r *Result) {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := v.stats
	s.seq++
	s.total++

	var codes []string
	for _, i := range r.Errors {
		codes = append(codes, i.Code)
	}
	for _, w := range r.Warnings {
		codes = append(codes, w.Code)
	}

	s.window.Add(s.seq, statsEntry{
		seq:   s.seq,
		score: r.Score,
		valid: r.Valid,
		codes: codes,
		at:    time.Now(),
	})
}

// Stats returns a snapshot of the rolling validation statistics.
func (v *Validator) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := v.stats
	out := Stats{TotalValidations: s.total, Trend: "stable"}

	keys := s.window.Keys()
	if len(keys) == 0 {
		return out
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var (
		scoreSum   float64
		invalid    int
		codeCounts = make(map[string]int)
		scores     []float64
	)
	for _, k := range keys {
		e, ok := s.window.Peek(k)
		if !ok {
			continue
		}
		scoreSum += e.score
		scores = append(scores, e.score)
		if !e.valid {
			invalid++
		}
		for _, c := range e.codes {
			codeCounts[c]++
		}
	}

	n := len(scores)
	out.AverageScore = scoreSum / float64(n)
	out.ErrorRate = float64(invalid) / float64(n)

	for code, count := range codeCounts {
		out.TopCodes = append(out.TopCodes, CodeCount{Code: code, Count: count})
	}
	sort.Slice(out.TopCodes, func(i, j int) bool {
		if out.TopCodes[i].Count != out.TopCodes[j].Count {
			return out.TopCodes[i].Count > out.TopCodes[j].Count
		}
		return out.TopCodes[i].Code < out.TopCodes[j].Code
	})
	if len(out.TopCodes) > 5 {
		out.TopCodes = out.TopCodes[:5]
	}

	// Trend: compare mean score of the newer half against the older half.
	if n >= 4 {
		mid := n / 2
		var oldSum, newSum float64
		for _, sc := range scores[:mid] {
			oldSum += sc
		}
		for _, sc := range scores[mid:] {
			newSum += sc
		}
		oldMean := oldSum / float64(mid)
		newMean := newSum / float64(n-mid)
		const margin = 0.05
		switch {
		case newMean > oldMean+margin:
			out.Trend = "improving"
		case newMean < oldMean-margin:
			out.Trend = "degrading"
		}
	}

	return out
}
