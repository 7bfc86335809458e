package analysis_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
)

func validCandidate() analysis.Candidate {
	return analysis.Candidate{
		"type":           "security",
		"message":        "SQL built by concatenation",
		"line_start":     float64(10),
		"line_end":       float64(12),
		"original_code":  `q := "SELECT * FROM t WHERE id=" + id`,
		"suggested_code": `q := "SELECT * FROM t WHERE id=?"`,
		"explanation":    "Use placeholders to avoid injection.",
		"confidence":     0.9,
	}
}

func TestCandidate_Validate_ConfidenceBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		confidence any
		ok         bool
	}{
		{"above one", 1.5, false},
		{"negative", -0.1, false},
		{"lower bound", 0.0, true},
		{"upper bound", 1.0, true},
		{"numeric string", "0.75", true},
		{"garbage string", "high", false},
		{"NaN string", "NaN", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validCandidate()
			c["confidence"] = tt.confidence
			_, err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestCandidate_Validate_LineBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		start, end any
		ok         bool
	}{
		{"single line", float64(1), float64(1), true},
		{"json number", json.Number("7"), json.Number("9"), true},
		{"max int32", float64(math.MaxInt32), float64(math.MaxInt32), true},
		{"zero", float64(0), float64(3), false},
		{"negative", float64(-5), float64(3), false},
		{"end before start", float64(10), float64(2), false},
		{"fraction", 1.5, float64(2), false},
		{"above int32", 3e10, 3e10, false},
		{"huge", 1e300, 1e300, false},
		{"numeric string fraction", "2.5", "3", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validCandidate()
			c["line_start"] = tt.start
			c["line_end"] = tt.end
			f, err := c.Validate()
			if tt.ok {
				require.NoError(t, err)
				assert.LessOrEqual(t, f.Lines.Start, f.Lines.End)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestCandidate_Validate_MissingExplanation(t *testing.T) {
	t.Parallel()

	c := validCandidate()
	delete(c, "explanation")

	_, err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "explanation")
}

func TestCandidate_Validate_NullFieldRejected(t *testing.T) {
	t.Parallel()

	c := validCandidate()
	c["suggested_code"] = nil

	_, err := c.Validate()
	assert.Error(t, err)
}

func TestCandidate_Validate_UnknownType(t *testing.T) {
	t.Parallel()

	c := validCandidate()
	c["type"] = "bug"

	_, err := c.Validate()
	assert.Error(t, err)
}

func TestParseCandidates(t *testing.T) {
	t.Parallel()

	raw := "```json\n" + `{"suggestions": [
		{"type":"style","message":"m","line_start":"3","line_end":4,"original_code":"a","suggested_code":"b","explanation":"e","confidence":"1"},
		{"type":"style","message":"m"},
		"not an object"
	]}` + "\n```"

	cands, err := analysis.ParseCandidates(raw)
	require.NoError(t, err)
	require.Len(t, cands, 3)

	f, err := cands[0].Validate()
	require.NoError(t, err)
	assert.Equal(t, analysis.CategoryStyle, f.Category)
	assert.Equal(t, analysis.LineRange{Start: 3, End: 4}, f.Lines)
	assert.InDelta(t, 1.0, f.Confidence, 1e-9)

	_, err = cands[1].Validate()
	assert.Error(t, err)
	_, err = cands[2].Validate()
	assert.Error(t, err)
}

func TestParseCandidates_Malformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "I could not review this file.", `["a"]`, `{"suggestions": {"type":"style"}}`, "null"} {
		_, err := analysis.ParseCandidates(raw)
		assert.ErrorIs(t, err, analysis.ErrMalformedResponse, "payload %q", raw)
	}
}

func TestParseCandidates_NoSuggestionsKey(t *testing.T) {
	t.Parallel()

	cands, err := analysis.ParseCandidates(`{"summary": "looks fine"}`)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestNewSuggestion(t *testing.T) {
	t.Parallel()

	f, err := validCandidate().Validate()
	require.NoError(t, err)

	run := &analysis.Run{ID: "run-1", ChangeSetID: "acme/api#7"}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("WIB", 7*3600))
	s := analysis.NewSuggestion("sug-1", run, "db/query.go", f, now)

	assert.Equal(t, analysis.RunID("run-1"), s.RunID)
	assert.Equal(t, analysis.ChangeSetID("acme/api#7"), s.ChangeSetID)
	assert.Equal(t, analysis.DispositionPending, s.Disposition)
	assert.Equal(t, time.UTC, s.CreatedAt.Location())
}
