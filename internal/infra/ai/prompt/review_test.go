package prompt_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-review/internal/infra/ai/prompt"
)

func TestGetUserPrompt(t *testing.T) {
	t.Parallel()

	p := prompt.GetUserPrompt(analysis.InferenceRequest{
		Path:    "svc/handler.go",
		Content: "package svc\n",
		Diff:    "   12 + return nil",
	})

	assert.Contains(t, p, "svc/handler.go (Go)")
	assert.Contains(t, p, "package svc")
	assert.Contains(t, p, "--- BEGIN DIFF ---\n   12 + return nil")
}

func TestGetUserPrompt_NoDiffAndTruncation(t *testing.T) {
	t.Parallel()

	p := prompt.GetUserPrompt(analysis.InferenceRequest{
		Path:    "notes.txt",
		Content: strings.Repeat("x", prompt.MaxContentChars+10),
	})

	assert.NotContains(t, p, "BEGIN DIFF")
	assert.Contains(t, p, "[... truncated ...]")
	assert.NotContains(t, p, "notes.txt (")
}

func TestGetSystemPrompt_ListsEveryField(t *testing.T) {
	t.Parallel()

	sys := prompt.GetSystemPrompt()
	for _, field := range analysis.RequiredCandidateFields {
		assert.Contains(t, sys, `"`+field+`"`)
	}
}
