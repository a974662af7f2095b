package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cityfix/cityfix/internal/filter"
	"github.com/cityfix/cityfix/internal/models"
	"github.com/cityfix/cityfix/internal/render"
	"github.com/cityfix/cityfix/internal/report"
	"github.com/cityfix/cityfix/internal/severity"
	"github.com/cityfix/cityfix/internal/store"
)

// Loader fetches the remote feature collection.
type Loader interface {
	GetFeatures(ctx context.Context) ([]models.Feature, error)
}

// Server wraps the cityfix data layer and exposes it as MCP tools.
type Server struct {
	store    store.Store
	engine   *filter.Engine
	workflow *report.Workflow
	loader   Loader
}

// NewServer creates the MCP server wrapper with all required dependencies.
func NewServer(s store.Store, e *filter.Engine, w *report.Workflow, l Loader) *Server {
	return &Server{
		store:    s,
		engine:   e,
		workflow: w,
		loader:   l,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("cityfix", "1.0.0", server.WithToolCapabilities(true))

	// Register all tools
	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.loadIssuesTool())
	srv.AddTool(s.reportIssueTool())
	srv.AddTool(s.setFilterTool())
	srv.AddTool(s.reportStatusTool())
	srv.AddTool(s.cancelReportTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// cityfix_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cityfix_list_issues",
		mcp.WithDescription("List loaded city issues. Returns a JSON array with id, category (broken_light/roadwork/blockage), status (open/in_progress/resolved), severity, tier (severe/moderate/minor), description, timestamp, lat, lon, and visible (whether current filters show it)."),
		mcp.WithString("category", mcp.Description("Filter by category: broken_light, roadwork, blockage")),
		mcp.WithString("status", mcp.Description("Filter by status: open, in_progress, resolved")),
		mcp.WithBoolean("visible_only", mcp.Description("Only return issues shown under the current filter toggles")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := request.GetString("category", "")
	if category != "" && !models.ValidCategory(models.Category(category)) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown category: %s", category)), nil
	}
	status := request.GetString("status", "")
	if status != "" && !models.ValidStatus(models.Status(status)) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown status: %s", status)), nil
	}
	visibleOnly := request.GetBool("visible_only", false)

	entries, err := s.store.All(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}

	type issueOut struct {
		ID          string  `json:"id"`
		Category    string  `json:"category"`
		Status      string  `json:"status"`
		Severity    int     `json:"severity"`
		Tier        string  `json:"tier"`
		Description string  `json:"description"`
		Timestamp   string  `json:"timestamp"`
		Lat         float64 `json:"lat"`
		Lon         float64 `json:"lon"`
		Visible     bool    `json:"visible"`
	}

	out := make([]issueOut, 0, len(entries))
	for _, e := range entries {
		if category != "" && string(e.Issue.Category) != category {
			continue
		}
		if status != "" && string(e.Issue.Status) != status {
			continue
		}
		visible := s.engine.Attached(e.Issue.ID)
		if visibleOnly && !visible {
			continue
		}
		out = append(out, issueOut{
			ID:          e.Issue.ID,
			Category:    string(e.Issue.Category),
			Status:      string(e.Issue.Status),
			Severity:    e.Issue.Severity,
			Tier:        string(severity.Classify(e.Issue.Severity)),
			Description: e.Issue.Description,
			Timestamp:   e.Issue.Timestamp,
			Lat:         e.Issue.Latitude,
			Lon:         e.Issue.Longitude,
			Visible:     visible,
		})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal issues: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// cityfix_load_issues
func (s *Server) loadIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cityfix_load_issues",
		mcp.WithDescription("Fetch the current issue layer from the WFS service and load it into the session. Features with malformed geometry are skipped. Returns loaded and skipped counts."),
	)
	return tool, s.handleLoadIssues
}

func (s *Server) handleLoadIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	feats, err := s.loader.GetFeatures(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch features: %v", err)), nil
	}

	loaded, skipped, err := s.store.BulkLoad(ctx, feats, func(i models.Issue) render.Handle {
		return render.NewMarker(i)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load features: %v", err)), nil
	}
	if err := s.engine.Recompute(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to refresh filters: %v", err)), nil
	}

	data, _ := json.Marshal(map[string]int{"loaded": loaded, "skipped": skipped})
	return mcp.NewToolResultText(string(data)), nil
}

// cityfix_report_issue
func (s *Server) reportIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cityfix_report_issue",
		mcp.WithDescription("Report a new issue at a map coordinate and submit it to the WFS service in one step. Runs the full reporting flow: arm, pick location, set details, submit."),
		mcp.WithNumber("lat", mcp.Required(), mcp.Description("Latitude of the issue (WGS84)")),
		mcp.WithNumber("lon", mcp.Required(), mcp.Description("Longitude of the issue (WGS84)")),
		mcp.WithString("category", mcp.Description("Issue category: broken_light, roadwork, blockage (default broken_light)")),
		mcp.WithNumber("severity", mcp.Description("Severity 1-5 (default 1)")),
		mcp.WithString("description", mcp.Description("Free-text description of the issue")),
	)
	return tool, s.handleReportIssue
}

func (s *Server) handleReportIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lat, err := request.RequireFloat("lat")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: lat"), nil
	}
	lon, err := request.RequireFloat("lon")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: lon"), nil
	}

	if err := s.workflow.Arm(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot start report: %v", err)), nil
	}
	s.workflow.Pick(report.Coordinate{Lat: lat, Lon: lon})

	draft := report.Draft{
		Category:    models.Category(request.GetString("category", string(models.CategoryBrokenLight))),
		Severity:    request.GetInt("severity", 1),
		Description: request.GetString("description", ""),
	}
	if err := s.workflow.SetDraft(draft); err != nil {
		s.workflow.Cancel()
		return mcp.NewToolResultError(fmt.Sprintf("invalid report: %v", err)), nil
	}

	issue, err := s.workflow.Submit(ctx)
	if err != nil {
		s.workflow.Cancel()
		return mcp.NewToolResultError(fmt.Sprintf("submission failed: %v", err)), nil
	}

	data, _ := json.Marshal(map[string]any{
		"id":       issue.ID,
		"category": string(issue.Category),
		"severity": issue.Severity,
		"lat":      issue.Latitude,
		"lon":      issue.Longitude,
	})
	return mcp.NewToolResultText(string(data)), nil
}

// cityfix_set_filter
func (s *Server) setFilterTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cityfix_set_filter",
		mcp.WithDescription("Enable or disable a filter toggle. An issue is visible only when both its category and its status toggles are enabled. Returns the enabled tags per dimension."),
		mcp.WithString("dimension", mcp.Required(), mcp.Description("Filter dimension: category or status")),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag to toggle, e.g. roadwork or resolved")),
		mcp.WithBoolean("enabled", mcp.Required(), mcp.Description("Desired state for the tag")),
	)
	return tool, s.handleSetFilter
}

func (s *Server) handleSetFilter(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dim, err := request.RequireString("dimension")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: dimension"), nil
	}
	tag, err := request.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: tag"), nil
	}
	enabled, err := request.RequireBool("enabled")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: enabled"), nil
	}

	if err := s.engine.Toggle(ctx, filter.Dimension(strings.ToLower(dim)), tag, enabled); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set filter: %v", err)), nil
	}

	data, err := json.Marshal(s.engine.Enabled())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal filters: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// cityfix_report_status
func (s *Server) reportStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cityfix_report_status",
		mcp.WithDescription("Get the current reporting session: phase (idle/armed/located/submitting), picked location if any, and the draft details."),
	)
	return tool, s.handleReportStatus
}

func (s *Server) handleReportStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(s.workflow.State())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal session: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// cityfix_cancel_report
func (s *Server) cancelReportTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cityfix_cancel_report",
		mcp.WithDescription("Abort the current reporting session and discard its location and draft."),
	)
	return tool, s.handleCancelReport
}

func (s *Server) handleCancelReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.workflow.Cancel()
	data, _ := json.Marshal(s.workflow.State())
	return mcp.NewToolResultText(string(data)), nil
}
