package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/briefwire/briefwire/internal/tool"
)

func newFeedExecutor(t *testing.T, handler tool.Handler) *tool.Executor {
	t.Helper()
	reg := tool.NewRegistry()
	if err := reg.Register(tool.Registration{Name: "fetch_feed", Handler: handler}); err != nil {
		t.Fatalf("registering fetch_feed: %v", err)
	}
	return tool.NewExecutor(reg)
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func feedHandler(exec *tool.Executor) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcpInvoke(exec, "fetch_feed", func(req mcp.CallToolRequest) (map[string]any, error) {
		feedURL, err := req.RequireString("feed_url")
		if err != nil {
			return nil, err
		}
		return withMaxItems(req, map[string]any{"feed_url": feedURL}), nil
	})
}

func TestMCPInvoke_ReturnsEnvelope(t *testing.T) {
	var gotPayload map[string]any
	exec := newFeedExecutor(t, func(_ context.Context, payload map[string]any) (*tool.Result, error) {
		gotPayload = payload
		return &tool.Result{Items: []tool.Item{
			{Title: "Story", URL: "https://techcrunch.com/story", Source: "TechCrunch"},
		}}, nil
	})

	result, err := feedHandler(exec)(context.Background(), makeCallToolRequest("fetch_feed", map[string]interface{}{
		"feed_url":  "https://feeds.techcrunch.com/rss",
		"max_items": 5,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	if gotPayload["feed_url"] != "https://feeds.techcrunch.com/rss" {
		t.Errorf("feed_url = %v", gotPayload["feed_url"])
	}
	if gotPayload["max_items"] != float64(5) {
		t.Errorf("max_items = %v (%T)", gotPayload["max_items"], gotPayload["max_items"])
	}

	var res tool.Result
	if err := json.Unmarshal([]byte(toolText(t, result)), &res); err != nil {
		t.Fatalf("result is not a JSON envelope: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].URL != "https://techcrunch.com/story" {
		t.Errorf("items = %+v", res.Items)
	}
	if res.Meta.Tool != "fetch_feed" || res.Meta.ItemCount != 1 {
		t.Errorf("meta = %+v", res.Meta)
	}
}

func TestMCPInvoke_TotalFailureFlagged(t *testing.T) {
	exec := newFeedExecutor(t, func(_ context.Context, _ map[string]any) (*tool.Result, error) {
		return nil, tool.NewFailure(tool.CodeFetchFailed, "connection refused")
	})

	result, err := feedHandler(exec)(context.Background(), makeCallToolRequest("fetch_feed", map[string]interface{}{
		"feed_url": "https://feeds.techcrunch.com/rss",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("total failure not flagged as error")
	}

	// The classified envelope still comes through for inspection.
	var res tool.Result
	if err := json.Unmarshal([]byte(toolText(t, result)), &res); err != nil {
		t.Fatalf("error result is not a JSON envelope: %v", err)
	}
	if len(res.Errors) != 1 || res.Errors[0].Code != tool.CodeFetchFailed {
		t.Errorf("errors = %+v", res.Errors)
	}
	if !res.Errors[0].Retryable {
		t.Error("FETCH_FAILED should be retryable")
	}
}

func TestMCPInvoke_MissingRequiredArg(t *testing.T) {
	exec := newFeedExecutor(t, func(_ context.Context, _ map[string]any) (*tool.Result, error) {
		t.Fatal("handler should not run without feed_url")
		return nil, nil
	})

	result, err := feedHandler(exec)(context.Background(), makeCallToolRequest("fetch_feed", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("missing required argument not flagged")
	}
}

func TestMCPInvoke_UnregisteredTool(t *testing.T) {
	exec := tool.NewExecutor(tool.NewRegistry())

	result, err := feedHandler(exec)(context.Background(), makeCallToolRequest("fetch_feed", map[string]interface{}{
		"feed_url": "https://feeds.techcrunch.com/rss",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("unregistered tool not flagged")
	}
}

func TestNewMCPServer_Builds(t *testing.T) {
	exec := newFeedExecutor(t, func(_ context.Context, _ map[string]any) (*tool.Result, error) {
		return &tool.Result{}, nil
	})
	if s := NewMCPServer(exec); s == nil {
		t.Fatal("nil MCP server")
	}
}
