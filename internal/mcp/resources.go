package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	planURI   = "gristmigrate://plan"
	runPrefix = "gristmigrate://runs/"
)

func (s *Server) registerResources() {
	// ── gristmigrate://plan ────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		planURI,
		"Migration Plan",
		mcp.WithMIMEType("application/json"),
	), s.handlePlanResource)

	// ── gristmigrate://runs/{runId} ────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			runPrefix+"{runId}",
			"Migration Run",
		),
		s.handleRunResource,
	)
}

func (s *Server) handlePlanResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	plan := s.migration.Plan()
	summary := struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		External    []string `json:"external,omitempty"`
		Steps       any      `json:"steps"`
	}{plan.Name, plan.Description, plan.External, s.migration.Steps()}

	return jsonResource(planURI, summary)
}

func (s *Server) handleRunResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	id := runIDFromURI(uri)
	if id == "" {
		return nil, fmt.Errorf("could not extract runId from URI: %s", uri)
	}
	run, err := s.migration.RunDetail(id)
	if err != nil {
		return nil, err
	}
	return jsonResource(uri, run)
}

// runIDFromURI extracts the id from "gristmigrate://runs/{id}".
func runIDFromURI(uri string) string {
	id, ok := strings.CutPrefix(uri, runPrefix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
