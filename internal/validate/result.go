package validate

// Severity classifies a validation finding.
type Severity string

const (
	// SeverityCritical findings block the whole operation: missing IDs,
	// self-dependencies, dependency cycles, order violations.
	SeverityCritical Severity = "critical"

	// SeverityError findings block the offending item: bounds violations,
	// unresolved references, insufficient aggregate resources.
	SeverityError Severity = "error"

	// SeverityWarning findings are informational only.
	SeverityWarning Severity = "warning"
)

// Issue is a blocking validation finding.
type Issue struct {
	Severity Severity       `json:"severity"`
	Code     string         `json:"code"`
	Field    string         `json:"field,omitempty"`
	TaskID   string         `json:"task_id,omitempty"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
}

// Warning is a non-blocking validation finding.
type Warning struct {
	Code       string `json:"code"`
	Field      string `json:"field,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Result aggregates the findings of one validation pass.
type Result struct {
	Valid    bool      `json:"valid"`
	Errors   []Issue   `json:"errors,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`

	// Score summarizes finding weight in [0, 1]:
	// 1 - 0.5*criticals - 0.2*errors - 0.05*warnings, floored at 0.
	Score float64 `json:"score"`
}

// addIssue records a blocking finding. Critical and error findings both
// mark the result invalid.
func (r *Result) addIssue(i Issue) {
	r.Errors = append(r.Errors, i)
	r.Valid = false
}

// addWarning records a non-blocking finding.
func (r *Result) addWarning(w Warning) {
	r.Warnings = append(r.Warnings, w)
}

// CriticalCount returns the number of critical findings.
func (r *Result) CriticalCount() int {
	n := 0
	for _, i := range r.Errors {
		if i.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// ErrorCount returns the number of error-severity findings.
func (r *Result) ErrorCount() int {
	n := 0
	for _, i := range r.Errors {
		if i.Severity == SeverityError {
			n++
		}
	}
	return n
}

// finalize computes the score from the recorded findings.
func (r *Result) finalize() {
	score := 1.0 -
		0.5*float64(r.CriticalCount()) -
		0.2*float64(r.ErrorCount()) -
		0.05*float64(len(r.Warnings))
	if score < 0 {
		score = 0
	}
	r.Score = score
}

// newResult returns a Result that is valid until a finding is added.
func newResult() *Result {
	return &Result{Valid: true}
}
