package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/briefwire/briefwire/internal/source"
	"github.com/briefwire/briefwire/internal/tool"
)

// NewMCPServer exposes the acquisition tools over MCP. Every tool routes
// through the executor, so external agents get the same result envelope,
// rate limits, and failure classification as the pipeline itself.
func NewMCPServer(exec *tool.Executor) *server.MCPServer {
	s := server.NewMCPServer(
		"briefwire",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("briefwire content acquisition tools for newsletter curation."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("fetch_feed",
			mcp.WithDescription("Fetch and normalize entries from an RSS or Atom feed URL."),
			mcp.WithString("feed_url", mcp.Description("Feed URL to fetch"), mcp.Required()),
			mcp.WithNumber("max_items", mcp.Description("Maximum entries to return (default 25, max 100)")),
		),
		mcpInvoke(exec, "fetch_feed", func(req mcp.CallToolRequest) (map[string]any, error) {
			feedURL, err := req.RequireString("feed_url")
			if err != nil {
				return nil, errors.New("feed_url is required")
			}
			return withMaxItems(req, map[string]any{"feed_url": feedURL}), nil
		}),
	)

	for _, name := range []string{"search_news", "search_posts", "web_search"} {
		s.AddTool(
			mcp.NewTool(name,
				mcp.WithDescription(searchToolDescription(name)),
				mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
				mcp.WithNumber("max_items", mcp.Description("Maximum results to return (default 25, max 100)")),
			),
			mcpInvoke(exec, name, func(req mcp.CallToolRequest) (map[string]any, error) {
				query, err := req.RequireString("query")
				if err != nil {
					return nil, errors.New("query is required")
				}
				return withMaxItems(req, map[string]any{"query": query}), nil
			}),
		)
	}

	return s
}

func searchToolDescription(name string) string {
	switch name {
	case "search_news":
		return "Search recent news articles by keyword."
	case "search_posts":
		return "Search recent social posts by keyword."
	default:
		return "Search the web by keyword."
	}
}

func withMaxItems(req mcp.CallToolRequest, payload map[string]any) map[string]any {
	if n := req.GetInt("max_items", 0); n > 0 {
		payload["max_items"] = float64(n)
	}
	return payload
}

// mcpInvoke adapts one registered tool to an MCP handler. The result envelope
// is returned as JSON; a total failure is flagged as an MCP error but still
// carries the classified errors so callers can inspect codes.
func mcpInvoke(exec *tool.Executor, name string, buildPayload func(mcp.CallToolRequest) (map[string]any, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload, err := buildPayload(req)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		res, err := exec.Invoke(ctx, name, payload)
		if err != nil {
			return mcpError(fmt.Sprintf("invoking %s: %v", name, err)), nil
		}

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		if len(res.Items) == 0 && len(res.Errors) > 0 {
			return mcpError(string(b)), nil
		}
		return mcpText(string(b)), nil
	}
}

// RegisterSourceTools wires the four provider adapters into a fresh registry
// and returns an executor over it. Convenience for the serve command and the
// MCP surface, which share one registry.
func RegisterSourceTools(reg *tool.Registry, feeds *source.FeedAdapter, news *source.NewsAdapter, social *source.SocialAdapter, web *source.WebSearchAdapter) (*tool.Executor, error) {
	if err := source.Register(reg, feeds, news, social, web); err != nil {
		return nil, err
	}
	return tool.NewExecutor(reg), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
