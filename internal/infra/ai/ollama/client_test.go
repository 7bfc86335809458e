package ollama_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-review/internal/infra/ai/ollama"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	c, err := ollama.NewClient("http://localhost:11434", "")
	require.NoError(t, err)
	assert.Equal(t, ollama.DefaultModel, c.Model)

	_, err = ollama.NewClient("://no-scheme", "llama3")
	assert.Error(t, err)
}

func TestAnalyze_CancelledContext(t *testing.T) {
	t.Parallel()

	c, err := ollama.NewClient("http://localhost:11434", "llama3")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Analyze(ctx, analysis.InferenceRequest{Path: "a.go"})
	assert.ErrorIs(t, err, context.Canceled)
}
