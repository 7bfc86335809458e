package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	domain "github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-review/internal/middleware"
)

// Controller is the slice of the analysis service exposed as MCP tools.
type Controller interface {
	StartAnalysis(ctx context.Context, cs domain.ChangeSetID, requestedBy string) (domain.Handle, error)
	Status(ctx context.Context, cs domain.ChangeSetID) (*domain.Run, error)
	ListSuggestions(ctx context.Context, cs domain.ChangeSetID) ([]*domain.Suggestion, error)
	UpdateDisposition(ctx context.Context, id domain.SuggestionID, status string) (*domain.Suggestion, error)
}

// Client is recorded as requested_by for runs started over MCP.
const Client = "mcp"

type Tools struct {
	ctl Controller
}

func NewTools(ctl Controller) *Tools { return &Tools{ctl: ctl} }

// New builds the MCP server with every review tool registered.
func New(ctl Controller, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"reviewd",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	t := NewTools(ctl)

	s.AddTool(mcp.NewTool("start_analysis",
		mcp.WithDescription("Start an AI review of a pull request. Returns the active run if one is already pending or in progress."),
		mcp.WithString("pr_id", mcp.Required(), mcp.Description("Pull request id, e.g. owner/repo#42")),
	), t.StartAnalysis)

	s.AddTool(mcp.NewTool("analysis_status",
		mcp.WithDescription("Latest review run of a pull request"),
		mcp.WithString("pr_id", mcp.Required(), mcp.Description("Pull request id")),
	), t.AnalysisStatus)

	s.AddTool(mcp.NewTool("list_suggestions",
		mcp.WithDescription("All review suggestions recorded for a pull request"),
		mcp.WithString("pr_id", mcp.Required(), mcp.Description("Pull request id")),
	), t.ListSuggestions)

	s.AddTool(mcp.NewTool("update_suggestion",
		mcp.WithDescription("Accept or reject a suggestion"),
		mcp.WithString("suggestion_id", mcp.Required()),
		mcp.WithString("status", mcp.Required(), mcp.Enum("pending", "accepted", "rejected")),
	), t.UpdateSuggestion)

	return s
}

// Serve runs the server over stdin/stdout until the client disconnects.
func Serve(ctl Controller, version string) error {
	return server.ServeStdio(New(ctl, version))
}

func (t *Tools) StartAnalysis(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cs, res := changeSet(req)
	if res != nil {
		return res, nil
	}
	h, err := t.ctl.StartAnalysis(ctx, cs, Client)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(h)
}

func (t *Tools) AnalysisStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cs, res := changeSet(req)
	if res != nil {
		return res, nil
	}
	run, err := t.ctl.Status(ctx, cs)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(run)
}

func (t *Tools) ListSuggestions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cs, res := changeSet(req)
	if res != nil {
		return res, nil
	}
	list, err := t.ctl.ListSuggestions(ctx, cs)
	if err != nil {
		return toolError(err), nil
	}
	if list == nil {
		list = []*domain.Suggestion{}
	}
	return jsonResult(list)
}

func (t *Tools) UpdateSuggestion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("suggestion_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := middleware.ValidateID(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := req.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sug, err := t.ctl.UpdateDisposition(ctx, domain.SuggestionID(id), status)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(sug)
}

// helper

func changeSet(req mcp.CallToolRequest) (domain.ChangeSetID, *mcp.CallToolResult) {
	raw, err := req.RequireString("pr_id")
	if err != nil {
		return "", mcp.NewToolResultError(err.Error())
	}
	if err := middleware.ValidateChangeSetID(raw); err != nil {
		return "", mcp.NewToolResultError(err.Error())
	}
	return domain.ChangeSetID(raw), nil
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, domain.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}
