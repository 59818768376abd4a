package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"gristmigrate/internal/service"
)

func (s *Server) registerMigrationTools() {
	s.mcp.AddTool(mcp.NewTool("list_steps",
		mcp.WithDescription("List the migration steps in execution order, with their target table, sync mode and source tables"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListSteps)

	s.mcp.AddTool(mcp.NewTool("preview_step",
		mcp.WithDescription("Fetch and transform the rows of one step without writing anything. Reference names are resolved against the target document as it is now."),
		mcp.WithString("step", mcp.Description("Step name (see list_steps)"), mcp.Required()),
		mcp.WithNumber("maxRows", mcp.Description("Maximum number of rows (default 10)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handlePreviewStep)

	s.mcp.AddTool(mcp.NewTool("run_migration",
		mcp.WithDescription("🛑 DESTRUCTIVE: Clear and rewrite target tables from the source document. Requires operator approval."),
		mcp.WithString("steps", mcp.Description("Comma-separated step names (optional, defaults to every step)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunMigration)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent migration runs, newest first"),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListRuns)

	s.mcp.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Get one migration run with per-step row counts and errors"),
		mcp.WithString("runId", mcp.Description("Run ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleGetRun)
}

func (s *Server) handleListSteps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.migration.Steps())
}

func (s *Server) handlePreviewStep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	step := req.GetString("step", "")
	if step == "" {
		return nil, fmt.Errorf("step is required")
	}
	rows, err := s.migration.Preview(ctx, step, intArg(req.GetArguments(), "maxRows", 10))
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w", step, err)
	}
	return jsonResult(rows)
}

func (s *Server) handleRunMigration(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	steps := splitList(req.GetString("steps", ""))
	what := "every step"
	if len(steps) > 0 {
		what = strings.Join(steps, ", ")
	}

	if s.approval == nil {
		return textResult("Action rejected: no approval queue configured"), nil
	}
	approved, err := s.approval.Request(ctx, "run_migration",
		fmt.Sprintf("Run %s (%s); target tables will be cleared and rewritten", s.migration.Plan().Name, what))
	if err != nil || !approved {
		s.log.Warn().Err(err).Str("steps", what).Msg("run_migration not approved")
		return textResult("Action rejected by operator"), nil
	}

	result, err := s.migration.Run(ctx, service.TriggerMCP, steps...)
	if errors.Is(err, service.ErrAlreadyRunning) {
		return textResult("A migration is already running; try again once it finishes"), nil
	}
	if result == nil {
		return nil, fmt.Errorf("run migration: %w", err)
	}
	// A failed run still reports which steps completed.
	return jsonResult(result)
}

func (s *Server) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.migration.History(intArg(req.GetArguments(), "limit", 20))
	if err != nil {
		return nil, err
	}
	return jsonResult(runs)
}

func (s *Server) handleGetRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("runId", "")
	if id == "" {
		return nil, fmt.Errorf("runId is required")
	}
	run, err := s.migration.RunDetail(id)
	if err != nil {
		return nil, err
	}
	return jsonResult(run)
}
