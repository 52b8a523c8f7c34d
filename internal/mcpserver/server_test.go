package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ticketdesk/internal/connectivity"
	"github.com/starford/ticketdesk/internal/models"
	"github.com/starford/ticketdesk/internal/store"
	"github.com/starford/ticketdesk/internal/testutil"
)

func testServer(t *testing.T) (*Server, *store.Store, *testutil.Gateway) {
	t.Helper()

	gw := testutil.NewGateway(testutil.RawTickets()...)
	monitor := connectivity.NewMonitor(true)
	t.Cleanup(monitor.Close)

	s := store.New(gw, testutil.TestCache(t),
		store.WithMonitor(monitor),
		store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	t.Cleanup(s.Close)
	s.LoadFromSnapshot(testutil.SeedTickets())

	return New(s, monitor), s, gw
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_tickets":
		result, err = srv.listTickets(ctx, req)
	case "get_ticket":
		result, err = srv.getTicket(ctx, req)
	case "update_ticket":
		result, err = srv.updateTicket(ctx, req)
	case "sync_pending":
		result, err = srv.syncPending(ctx, req)
	case "sync_status":
		result, err = srv.syncStatus(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func resultJSON[T any](t *testing.T, r *mcp.CallToolResult) T {
	t.Helper()
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	var v T
	if err := json.Unmarshal([]byte(resultText(r)), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

type listResult struct {
	Tickets []models.Ticket `json:"tickets"`
	Total   int             `json:"total"`
}

func TestListTickets(t *testing.T) {
	srv, _, _ := testServer(t)

	got := resultJSON[listResult](t, callTool(t, srv, "list_tickets", map[string]interface{}{}))
	if got.Total != 5 || len(got.Tickets) != 5 {
		t.Fatalf("total = %d, len = %d", got.Total, len(got.Tickets))
	}

	got = resultJSON[listResult](t, callTool(t, srv, "list_tickets", map[string]interface{}{
		"status": "open",
		"tag":    "Bug",
	}))
	if len(got.Tickets) != 1 || got.Tickets[0].ID != "T1" {
		t.Errorf("filtered = %+v", got.Tickets)
	}

	got = resultJSON[listResult](t, callTool(t, srv, "list_tickets", map[string]interface{}{"limit": 2}))
	if got.Total != 5 || len(got.Tickets) != 2 {
		t.Errorf("limited total = %d, len = %d", got.Total, len(got.Tickets))
	}
}

func TestListTickets_LeavesViewAlone(t *testing.T) {
	srv, s, _ := testServer(t)

	callTool(t, srv, "list_tickets", map[string]interface{}{"search": "login"})
	if f := s.Filters().Get(); f.SearchText != "" {
		t.Errorf("shared filters changed: %+v", f)
	}
}

func TestListTickets_BadStatus(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "list_tickets", map[string]interface{}{"status": "done"})
	if !r.IsError {
		t.Error("expected error for unknown status")
	}
}

func TestGetTicket(t *testing.T) {
	srv, _, _ := testServer(t)

	got := resultJSON[models.Ticket](t, callTool(t, srv, "get_ticket", map[string]interface{}{"id": "T4"}))
	if got.Title != "Update docs" {
		t.Errorf("title = %q", got.Title)
	}

	r := callTool(t, srv, "get_ticket", map[string]interface{}{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing ticket")
	}
	r = callTool(t, srv, "get_ticket", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing id")
	}
}

func TestUpdateTicket(t *testing.T) {
	srv, s, gw := testServer(t)

	got := resultJSON[models.Ticket](t, callTool(t, srv, "update_ticket", map[string]interface{}{
		"id":       "T2",
		"priority": 2,
		"tags":     []interface{}{"feature", "export"},
		"assignee": "Dana Lee",
	}))
	if got.Priority != 2 || got.Assignee == nil || *got.Assignee != "Dana Lee" {
		t.Errorf("updated = %+v", got)
	}
	if strings.Join(got.Tags, ",") != "feature,export" {
		t.Errorf("tags = %v", got.Tags)
	}
	if got.Title != "Export to CSV" {
		t.Errorf("untouched title changed to %q", got.Title)
	}

	s.Wait()
	calls := gw.Calls()
	if len(calls) != 1 || calls[0].Patch.Title != nil {
		t.Errorf("gateway calls = %+v", calls)
	}
}

func TestUpdateTicket_EditRules(t *testing.T) {
	srv, s, gw := testServer(t)

	r := callTool(t, srv, "update_ticket", map[string]interface{}{"id": "T2", "status": "blocked"})
	if !r.IsError {
		t.Fatal("blocked without reason should fail")
	}
	r = callTool(t, srv, "update_ticket", map[string]interface{}{"id": "T1", "assignee": ""})
	if !r.IsError {
		t.Fatal("unassigning a critical ticket should fail")
	}
	r = callTool(t, srv, "update_ticket", map[string]interface{}{"id": "ghost", "title": "x"})
	if !r.IsError || !strings.Contains(resultText(r), "not found") {
		t.Fatalf("missing ticket = %q", resultText(r))
	}

	r = callTool(t, srv, "update_ticket", map[string]interface{}{
		"id":             "T2",
		"status":         "blocked",
		"blocked_reason": "waiting on vendor",
	})
	got := resultJSON[models.Ticket](t, r)
	if got.Status != models.StatusBlocked || got.BlockedReason != "waiting on vendor" {
		t.Errorf("updated = %+v", got)
	}

	s.Wait()
	if n := len(gw.Calls()); n != 1 {
		t.Errorf("gateway calls = %d, want 1", n)
	}
}

func TestSyncTools(t *testing.T) {
	srv, s, gw := testServer(t)
	gw.FailUpdate(true)
	callTool(t, srv, "update_ticket", map[string]interface{}{"id": "T5", "title": "Slow dashboard load"})
	s.Wait()

	status := resultJSON[map[string]any](t, callTool(t, srv, "sync_status", map[string]interface{}{}))
	if status["pendingCount"] != float64(1) || status["online"] != true {
		t.Fatalf("status = %v", status)
	}

	gw.FailUpdate(false)
	res := resultJSON[store.SyncResult](t, callTool(t, srv, "sync_pending", map[string]interface{}{}))
	if res.Attempted != 1 || res.Succeeded != 1 {
		t.Errorf("sync = %+v", res)
	}
	if n := s.PendingCount().Get(); n != 0 {
		t.Errorf("pending after sync = %d", n)
	}
}

func TestTicketFormatResource(t *testing.T) {
	srv, _, _ := testServer(t)
	contents, err := srv.readTicketFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != formatURI || !strings.Contains(tc.Text, "Edit rules") {
		t.Errorf("resource = %+v", contents[0])
	}
}
