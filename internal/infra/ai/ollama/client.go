package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/JexSrs/go-ollama"

	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-review/internal/infra/ai/prompt"
)

const DefaultModel = "llama3"

// Client implements analysis.Inference on a local Ollama server.
type Client struct {
	client *ollama.Ollama
	Model  string
}

var _ analysis.Inference = (*Client)(nil)

func NewClient(host, model string) (*Client, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: ollama.New(*u), Model: model}, nil
}

type result struct {
	text string
	err  error
}

// Analyze sends one generate request. The library call takes no context, so it
// runs in its own goroutine and ctx only bounds how long the caller waits.
func (c *Client) Analyze(ctx context.Context, in analysis.InferenceRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	done := make(chan result, 1)
	go func() {
		res, err := c.client.Generate(
			c.client.Generate.WithModel(c.Model),
			c.client.Generate.WithSystem(prompt.GetSystemPrompt()),
			c.client.Generate.WithPrompt(prompt.GetUserPrompt(in)),
		)
		switch {
		case err != nil:
			done <- result{err: fmt.Errorf("ollama generate: %w", err)}
		case !res.Done:
			done <- result{err: errors.New("ollama response not finished (unexpected streaming)")}
		case res.Response == "":
			done <- result{err: errors.New("ollama returned an empty response")}
		default:
			done <- result{text: res.Response}
		}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}
