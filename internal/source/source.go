// Package source implements one adapter per external content provider. Each
// adapter validates its own input, applies URL policy before any network
// call, performs the fetch, and maps provider-native entries to the
// normalized tool item shape with native failures classified into the
// standard taxonomy.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/briefwire/briefwire/internal/budget"
	"github.com/briefwire/briefwire/internal/tool"
)

const (
	// DefaultMaxItems bounds how many entries an adapter returns.
	DefaultMaxItems = 25
	// MaxItemsCeiling is the hard upper bound a caller may request.
	MaxItemsCeiling = 100

	defaultFetchTimeout = 15 * time.Second
	maxResponseBytes    = 5 << 20 // 5MB
)

// Deps carries the shared collaborators every adapter uses.
type Deps struct {
	HTTPClient *http.Client
	Limiter    *budget.RateLimiter
}

func (d Deps) client() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: defaultFetchTimeout}
}

// allow consumes a rate-limiter slot for the provider key, if a limiter is
// configured.
func (d Deps) allow(key string) error {
	if d.Limiter == nil {
		return nil
	}
	if !d.Limiter.Allow(key) {
		return tool.NewFailure(tool.CodeRateLimited, "rate limit exceeded for %q", key)
	}
	return nil
}

// maxItemsFromPayload extracts and bounds the max_items parameter.
func maxItemsFromPayload(payload map[string]any) (int, error) {
	v, ok := payload["max_items"]
	if !ok {
		return DefaultMaxItems, nil
	}
	var n int
	switch t := v.(type) {
	case int:
		n = t
	case float64:
		n = int(t)
	default:
		return 0, tool.NewFailure(tool.CodeInvalidInput, "max_items must be a number")
	}
	if n < 1 || n > MaxItemsCeiling {
		return 0, tool.NewFailure(tool.CodeInvalidInput, "max_items must be between 1 and %d", MaxItemsCeiling)
	}
	return n, nil
}

func stringParam(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// getJSON fetches url and decodes the JSON body into out, classifying
// transport and decode failures.
func getJSON(ctx context.Context, client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return tool.NewFailure(tool.CodeFetchFailed, "reading response: %v", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return tool.NewFailure(tool.CodeParseFailed, "decoding response: %v", err)
	}
	return nil
}

func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return tool.NewFailure(tool.CodeTimeout, "request timed out: %v", err)
	}
	if errors.Is(err, context.Canceled) {
		return tool.NewFailure(tool.CodeTimeout, "request cancelled: %v", err)
	}
	return tool.NewFailure(tool.CodeFetchFailed, "request failed: %v", err)
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return tool.NewFailure(tool.CodeAuthFailed, "provider returned status %d", status)
	case status == http.StatusTooManyRequests:
		return tool.NewFailure(tool.CodeRateLimited, "provider returned status %d", status)
	default:
		return tool.NewFailure(tool.CodeProviderError, "provider returned status %d", status)
	}
}

// Register wires every adapter into the registry under its tool name.
func Register(reg *tool.Registry, feeds *FeedAdapter, news *NewsAdapter, social *SocialAdapter, web *WebSearchAdapter) error {
	regs := []tool.Registration{
		{
			Name:          "fetch_feed",
			Description:   "Fetch entries from an RSS/Atom feed and normalize them.",
			ValidateInput: requireString("feed_url"),
			Handler:       feeds.Fetch,
		},
		{
			Name:          "search_news",
			Description:   "Search the news API for recent articles matching a query.",
			ValidateInput: requireString("query"),
			Handler:       news.Search,
		},
		{
			Name:          "search_posts",
			Description:   "Search the social API for recent posts matching a query.",
			ValidateInput: requireString("query"),
			Handler:       social.Search,
		},
		{
			Name:          "web_search",
			Description:   "Run a grounded web search and normalize the results.",
			ValidateInput: requireString("query"),
			Handler:       web.Search,
		},
	}
	for _, r := range regs {
		if err := reg.Register(r); err != nil {
			return fmt.Errorf("registering source tools: %w", err)
		}
	}
	return nil
}

func requireString(key string) tool.Validator {
	return func(payload map[string]any) error {
		if stringParam(payload, key) == "" {
			return tool.NewFailure(tool.CodeInvalidInput, "missing required parameter: %s", key)
		}
		if _, err := maxItemsFromPayload(payload); err != nil {
			return err
		}
		return nil
	}
}
