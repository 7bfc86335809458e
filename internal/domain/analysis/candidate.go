package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Candidate is one raw finding as returned by the inference service, before validation.
type Candidate map[string]any

// RequiredCandidateFields must all be present (and non-null) for a candidate to survive.
var RequiredCandidateFields = []string{
	"type", "message", "line_start", "line_end",
	"original_code", "suggested_code", "explanation", "confidence",
}

// Finding is a validated candidate, not yet tied to a run.
type Finding struct {
	Category      Category
	Message       string
	Explanation   string
	Lines         LineRange
	OriginalCode  string
	SuggestedCode string
	Confidence    float64
}

// ParseCandidates decodes an inference payload of the form {"suggestions": [...]}.
// A payload that is not a JSON object (after stripping markdown fences) is malformed;
// a missing suggestions key yields no candidates.
func ParseCandidates(raw string) ([]Candidate, error) {
	body := stripFences(raw)
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedResponse)
	}

	v, ok := doc["suggestions"]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: suggestions is %T, want array", ErrMalformedResponse, v)
	}

	out := make([]Candidate, 0, len(items))
	for _, it := range items {
		// non-object entries cannot satisfy the required fields; keep them so
		// Validate reports why they were dropped
		m, _ := it.(map[string]any)
		out = append(out, Candidate(m))
	}
	return out, nil
}

// Validate applies the acceptance rules: required fields, known category,
// confidence coerced to float within [0, 1].
func (c Candidate) Validate() (Finding, error) {
	if c == nil {
		return Finding{}, fmt.Errorf("candidate is not an object")
	}
	for _, k := range RequiredCandidateFields {
		if v, ok := c[k]; !ok || v == nil {
			return Finding{}, fmt.Errorf("missing field %q", k)
		}
	}

	var f Finding
	var err error

	typ, ok := c["type"].(string)
	if !ok || !Category(typ).Valid() {
		return Finding{}, fmt.Errorf("unknown type %v", c["type"])
	}
	f.Category = Category(typ)

	conf, ok := toFloat(c["confidence"])
	if !ok {
		return Finding{}, fmt.Errorf("confidence %v is not numeric", c["confidence"])
	}
	if !(conf >= 0 && conf <= 1) {
		return Finding{}, fmt.Errorf("confidence %v out of range", conf)
	}
	f.Confidence = conf

	if f.Lines.Start, err = lineNumber(c["line_start"]); err != nil {
		return Finding{}, fmt.Errorf("line_start: %w", err)
	}
	if f.Lines.End, err = lineNumber(c["line_end"]); err != nil {
		return Finding{}, fmt.Errorf("line_end: %w", err)
	}
	if f.Lines.End < f.Lines.Start {
		return Finding{}, fmt.Errorf("line_end %d before line_start %d", f.Lines.End, f.Lines.Start)
	}

	if f.Message, err = text(c, "message"); err != nil {
		return Finding{}, err
	}
	if f.Explanation, err = text(c, "explanation"); err != nil {
		return Finding{}, err
	}
	if f.OriginalCode, err = text(c, "original_code"); err != nil {
		return Finding{}, err
	}
	if f.SuggestedCode, err = text(c, "suggested_code"); err != nil {
		return Finding{}, err
	}
	return f, nil
}

// NewSuggestion ties a finding to a run and file.
func NewSuggestion(id SuggestionID, run *Run, path string, f Finding, now time.Time) *Suggestion {
	return &Suggestion{
		ID:            id,
		RunID:         run.ID,
		ChangeSetID:   run.ChangeSetID,
		FilePath:      path,
		Lines:         f.Lines,
		Category:      f.Category,
		Message:       f.Message,
		Explanation:   f.Explanation,
		OriginalCode:  f.OriginalCode,
		SuggestedCode: f.SuggestedCode,
		Confidence:    f.Confidence,
		Disposition:   DispositionPending,
		CreatedAt:     now.UTC(),
	}
}

// lineNumber accepts whole numbers in [1, MaxInt32]; kolom line_* di DB cuma INT.
func lineNumber(v any) (int, error) {
	n, ok := toFloat(v)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%v is not a number", v)
	}
	if n != math.Trunc(n) {
		return 0, fmt.Errorf("%v is not a whole number", v)
	}
	if n < 1 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%v out of range", v)
	}
	return int(n), nil
}

func text(c Candidate, key string) (string, error) {
	s, ok := c[key].(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, want string", key, c[key])
	}
	return s, nil
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
