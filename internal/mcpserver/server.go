// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes ticket desk tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ticketdesk/internal/apperr"
	"github.com/starford/ticketdesk/internal/connectivity"
	"github.com/starford/ticketdesk/internal/models"
	"github.com/starford/ticketdesk/internal/store"
)

const (
	formatURI    = "ticketdesk://ticket-format"
	defaultLimit = 50
)

// Server wraps the MCP server with ticket desk tools.
type Server struct {
	mcp     *server.MCPServer
	store   *store.Store
	monitor *connectivity.Monitor
}

// New creates a new MCP server with all ticket tools registered.
// monitor may be nil.
func New(s *store.Store, monitor *connectivity.Monitor) *Server {
	srv := &Server{store: s, monitor: monitor}

	srv.mcp = server.NewMCPServer(
		"TicketDesk",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	srv.mcp.AddTool(mcp.NewTool("list_tickets",
		mcp.WithDescription("List tickets matching optional filters, using the desk's current sort order. "+
			"Filters here do not change the shared view."),
		mcp.WithString("search", mcp.Description("Case-insensitive substring of the title")),
		mcp.WithString("status", mcp.Description("Only tickets with this status"),
			mcp.Enum("open", "in_progress", "blocked", "closed")),
		mcp.WithString("tag", mcp.Description("Only tickets carrying this tag")),
		mcp.WithNumber("limit", mcp.Description("Maximum tickets to return (default 50)")),
	), srv.listTickets)

	srv.mcp.AddTool(mcp.NewTool("get_ticket",
		mcp.WithDescription("Read one ticket by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Ticket id")),
	), srv.getTicket)

	srv.mcp.AddTool(mcp.NewTool("update_ticket",
		mcp.WithDescription("Edit a ticket. Only the given fields change. "+
			"Edits must satisfy the rules in the ticketdesk://ticket-format resource. "+
			"If the remote source is unreachable the edit is queued for replay."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Ticket id")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("status", mcp.Description("New status"),
			mcp.Enum("open", "in_progress", "blocked", "closed")),
		mcp.WithNumber("priority", mcp.Description("New priority, 1 (critical) to 5 (minimal)")),
		mcp.WithString("assignee", mcp.Description("New assignee; empty unassigns")),
		mcp.WithArray("tags", mcp.Description("Replacement tag list"), mcp.WithStringItems()),
		mcp.WithString("blocked_reason", mcp.Description("Why the ticket is blocked; required with status blocked")),
	), srv.updateTicket)

	srv.mcp.AddTool(mcp.NewTool("sync_pending",
		mcp.WithDescription("Replay queued edits against the remote source now."),
	), srv.syncPending)

	srv.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report connectivity, loading state, last error and queued edit count."),
	), srv.syncStatus)

	// Resource: ticket format contract.
	srv.mcp.AddResource(
		mcp.NewResource(formatURI, "Ticket Format Contract",
			mcp.WithResourceDescription("Canonical ticket shape and edit rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		srv.readTicketFormatResource,
	)

	return srv
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listTickets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := models.Filters{SearchText: req.GetString("search", "")}
	if st := models.Status(req.GetString("status", "")); st != "" {
		if !st.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("unknown status %q", st)), nil
		}
		f.Statuses = []models.Status{st}
	}
	if tag := strings.ToLower(strings.TrimSpace(req.GetString("tag", ""))); tag != "" {
		f.Tags = []string{tag}
	}
	limit := req.GetInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}

	tickets := store.Project(s.store.Tickets().Get(), f, s.store.Sort().Get())
	total := len(tickets)
	if len(tickets) > limit {
		tickets = tickets[:limit]
	}
	return jsonResult(map[string]any{
		"tickets": tickets,
		"total":   total,
	})
}

func (s *Server) getTicket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, ok := s.store.Ticket(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(t)
}

func (s *Server) updateTicket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	patch := patchFromArgs(req)

	if err := s.store.CheckEdit(id, patch); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := s.store.UpdateOne(ctx, id, patch)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(t)
}

// patchFromArgs builds a patch from the arguments actually present.
func patchFromArgs(req mcp.CallToolRequest) models.Patch {
	args := req.GetArguments()
	has := func(key string) bool {
		_, ok := args[key]
		return ok
	}

	var p models.Patch
	if has("title") {
		p.Title = models.Ptr(strings.TrimSpace(req.GetString("title", "")))
	}
	if has("status") {
		p.Status = models.Ptr(models.Status(req.GetString("status", "")))
	}
	if has("priority") {
		p.Priority = models.Ptr(models.Priority(req.GetInt("priority", 0)))
	}
	if has("assignee") {
		p.Assignee = models.Ptr(req.GetString("assignee", ""))
	}
	if has("tags") {
		p.Tags = req.GetStringSlice("tags", []string{})
	}
	if has("blocked_reason") {
		p.BlockedReason = models.Ptr(req.GetString("blocked_reason", ""))
	}
	return p
}

func (s *Server) syncPending(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.store.SyncPendingChanges(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) syncStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	online, forced := true, false
	if s.monitor != nil {
		online, forced = s.monitor.Online(), s.monitor.Forced()
	}
	return jsonResult(map[string]any{
		"online":        online,
		"forcedOffline": forced,
		"loading":       s.store.Loading().Get(),
		"error":         s.store.Error().Get(),
		"pendingCount":  s.store.PendingCount().Get(),
		"tickets":       len(s.store.Tickets().Get()),
	})
}

func (s *Server) readTicketFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     TicketFormatContract,
		},
	}, nil
}
