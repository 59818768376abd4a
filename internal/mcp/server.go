package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"gristmigrate/internal/domain"
	"gristmigrate/internal/service"
)

// Catalog is the read-only view of one document the tools work on.
type Catalog interface {
	ListTables(ctx context.Context) ([]domain.Table, error)
	ListColumns(ctx context.Context, table string) ([]domain.Column, error)
	ListRecords(ctx context.Context, table string, filter domain.Filter) ([]domain.Record, error)
}

// Server is the MCP server of the migration tool.
// It lets AI agents inspect both documents, preview steps and run the plan.
type Server struct {
	mcp      *server.MCPServer
	approval *ApprovalQueue
	log      zerolog.Logger

	migration *service.MigrationService
	source    Catalog
	target    Catalog
}

// Deps holds everything the server needs from the command layer.
type Deps struct {
	Migration *service.MigrationService
	Source    Catalog
	Target    Catalog
	// Approval gates run_migration. Nil rejects every run.
	Approval *ApprovalQueue
	Log      zerolog.Logger
	Version  string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		approval:  deps.Approval,
		log:       deps.Log.With().Str("component", "mcp").Logger(),
		migration: deps.Migration,
		source:    deps.Source,
		target:    deps.Target,
	}

	s.mcp = server.NewMCPServer(
		"gristmigrate",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerDocumentTools()
	s.registerMigrationTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info().Msg("starting stdio server")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// catalog picks the document named by the "document" argument.
func (s *Server) catalog(req mcp.CallToolRequest) (Catalog, string, error) {
	switch doc := req.GetString("document", "target"); doc {
	case "source":
		return s.source, doc, nil
	case "target":
		return s.target, doc, nil
	default:
		return nil, doc, fmt.Errorf("document must be \"source\" or \"target\", got %q", doc)
	}
}
