package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RunID tipe untuk AnalysisRun
type RunID string

// SuggestionID identifier type
type SuggestionID string

// ChangeSetID identifies the change set (pull request) under review.
// On the wire it may arrive as a JSON string or a JSON number.
type ChangeSetID string

func (c *ChangeSetID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = ChangeSetID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("pr_id must be a string or number: %w", err)
	}
	*c = ChangeSetID(n.String())
	return nil
}

// Status enum
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Active reports whether a run in this status blocks a new run for the same change set.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusInProgress
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition validates one step of pending -> in_progress -> {completed, failed}.
// A pending run may fail directly (e.g. cancelled before it started).
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusInProgress || to == StatusFailed
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Run is one attempt to review a change set.
type Run struct {
	ID          RunID       `json:"id"`
	ChangeSetID ChangeSetID `json:"pr_id"`
	RequestedBy string      `json:"requested_by"`
	Status      Status      `json:"status"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Transition moves the run to the next status, stamping completion time on terminal states.
func (r *Run) Transition(to Status, at time.Time, errMsg string) error {
	if !r.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	if to == StatusFailed {
		r.Error = errMsg
	}
	if to.Terminal() {
		t := at.UTC()
		r.CompletedAt = &t
	}
	return nil
}

// Category is the fixed finding-type set.
type Category string

const (
	CategoryImprovement Category = "improvement"
	CategorySecurity    Category = "security"
	CategoryPerformance Category = "performance"
	CategoryStyle       Category = "style"
)

// Valid reports membership in the finding-type set.
func (c Category) Valid() bool {
	switch c {
	case CategoryImprovement, CategorySecurity, CategoryPerformance, CategoryStyle:
		return true
	}
	return false
}

// Disposition is the reviewer's verdict on a suggestion.
type Disposition string

const (
	DispositionPending  Disposition = "pending"
	DispositionAccepted Disposition = "accepted"
	DispositionRejected Disposition = "rejected"
)

// ParseDisposition normalizes and validates a disposition string.
func ParseDisposition(s string) (Disposition, error) {
	d := Disposition(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DispositionPending, DispositionAccepted, DispositionRejected:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDisposition, s)
}

// LineRange value object
type LineRange struct {
	Start int `json:"line_start"`
	End   int `json:"line_end"`
}

// Suggestion is one finding attached to a run.
type Suggestion struct {
	ID            SuggestionID `json:"id"`
	RunID         RunID        `json:"analysis_id"`
	ChangeSetID   ChangeSetID  `json:"pr_id"`
	FilePath      string       `json:"file_path"`
	Lines         LineRange    `json:"lines"`
	Category      Category     `json:"type"`
	Message       string       `json:"message"`
	Explanation   string       `json:"explanation"`
	OriginalCode  string       `json:"original_code"`
	SuggestedCode string       `json:"suggested_code"`
	Confidence    float64      `json:"confidence"`
	Disposition   Disposition  `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     *time.Time   `json:"updated_at,omitempty"`
}

// ChangedFile describes one file of a change set as reported by the hosting platform.
type ChangedFile struct {
	Path         string `json:"filename"`
	ChangeStatus string `json:"status"`
	IsBinary     bool   `json:"binary"`
	ChangedLines int    `json:"changes"`
	ContentRef   string `json:"raw_url"`
	Patch        string `json:"patch,omitempty"`
}

// InferenceRequest is what the inference collaborator reviews.
type InferenceRequest struct {
	Path    string
	Content string
	Diff    string
}

// Handle is returned to callers of StartAnalysis.
type Handle struct {
	RunID             RunID `json:"analysis_id"`
	AlreadyInProgress bool  `json:"already_in_progress"`
}

// helper untuk konversi angka dari payload model yang kadang berupa string
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case int:
		return float64(n), true
	}
	return 0, false
}
