package mcpserver_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/bryanwahyu/automaton-review/internal/application/analysis"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-review/internal/infra/mcpserver"
	"github.com/bryanwahyu/automaton-review/internal/logging"
	"github.com/bryanwahyu/automaton-review/internal/mock"
)

const oneFinding = `{"suggestions":[{"type":"style","message":"m","line_start":1,"line_end":1,
"original_code":"a","suggested_code":"b","explanation":"e","confidence":0.5}]}`

func newService() *app.Service {
	return &app.Service{
		Runs:        mock.NewRunRepo(),
		Suggestions: &mock.SuggestionRepo{},
		Hosting: &mock.Hosting{
			ListChangedFilesFn: func(context.Context, domain.ChangeSetID) ([]domain.ChangedFile, error) {
				return []domain.ChangedFile{{Path: "a.go", ChangeStatus: "modified", ChangedLines: 2, ContentRef: "raw/a.go"}}, nil
			},
		},
		Inference: &mock.Inference{
			AnalyzeFn: func(context.Context, domain.InferenceRequest) (string, error) { return oneFinding, nil },
		},
		Publisher:  &mock.Publisher{},
		Gate:       domain.NewFileGate(0, nil),
		Supervisor: app.NewSupervisor(2),
		Log:        logging.Discard(),
	}
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return ""
}

func TestTools_Flow(t *testing.T) {
	t.Parallel()

	svc := newService()
	tools := mcpserver.NewTools(svc)
	ctx := context.Background()

	res, err := tools.StartAnalysis(ctx, call(map[string]any{"pr_id": "acme/api#3"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	var h domain.Handle
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &h))
	assert.NotEmpty(t, h.RunID)

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Supervisor.Shutdown(wctx))

	res, err = tools.AnalysisStatus(ctx, call(map[string]any{"pr_id": "acme/api#3"}))
	require.NoError(t, err)
	var run domain.Run
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &run))
	assert.Equal(t, h.RunID, run.ID)
	assert.Equal(t, domain.StatusCompleted, run.Status)
	assert.Equal(t, mcpserver.Client, run.RequestedBy)

	res, err = tools.ListSuggestions(ctx, call(map[string]any{"pr_id": "acme/api#3"}))
	require.NoError(t, err)
	var sugs []domain.Suggestion
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &sugs))
	require.Len(t, sugs, 1)

	res, err = tools.UpdateSuggestion(ctx, call(map[string]any{"suggestion_id": string(sugs[0].ID), "status": "rejected"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	assert.Contains(t, text(t, res), `"rejected"`)
}

func TestTools_Errors(t *testing.T) {
	t.Parallel()

	tools := mcpserver.NewTools(newService())
	ctx := context.Background()

	res, err := tools.StartAnalysis(ctx, call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tools.StartAnalysis(ctx, call(map[string]any{"pr_id": "../x#1"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tools.AnalysisStatus(ctx, call(map[string]any{"pr_id": "99"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "not found", text(t, res))

	res, err = tools.UpdateSuggestion(ctx, call(map[string]any{"suggestion_id": "s1", "status": "maybe"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestNew(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, mcpserver.New(newService(), "test"))
}
