package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/briefwire/briefwire/internal/policy"
	"github.com/briefwire/briefwire/internal/tool"
)

// WebSearchAdapter runs a grounded web search against a Bing-compatible
// endpoint.
type WebSearchAdapter struct {
	deps    Deps
	baseURL string
	apiKey  string
}

func NewWebSearchAdapter(deps Deps, baseURL, apiKey string) *WebSearchAdapter {
	return &WebSearchAdapter{deps: deps, baseURL: baseURL, apiKey: apiKey}
}

func (a *WebSearchAdapter) Configured() bool { return a.apiKey != "" && a.baseURL != "" }

type webSearchResponse struct {
	WebPages struct {
		Value []struct {
			Name          string `json:"name"`
			URL           string `json:"url"`
			Snippet       string `json:"snippet"`
			DatePublished string `json:"datePublished"`
		} `json:"value"`
	} `json:"webPages"`
}

func (a *WebSearchAdapter) Search(ctx context.Context, payload map[string]any) (*tool.Result, error) {
	query := stringParam(payload, "query")
	maxItems, err := maxItemsFromPayload(payload)
	if err != nil {
		return nil, err
	}
	if !a.Configured() {
		return nil, tool.NewFailure(tool.CodeAuthFailed, "web search API is not configured")
	}
	if err := a.deps.allow("websearch"); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(maxItems))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/search?%s", a.baseURL, params.Encode()), nil)
	if err != nil {
		return nil, tool.NewFailure(tool.CodeInvalidInput, "building request: %v", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.apiKey)

	var decoded webSearchResponse
	if err := getJSON(ctx, a.deps.client(), req, &decoded); err != nil {
		return nil, err
	}

	result := &tool.Result{}
	for _, page := range decoded.WebPages.Value {
		if len(result.Items) >= maxItems {
			break
		}
		if page.URL == "" || page.Name == "" {
			result.AddWarning("skipping result without a URL or title")
			continue
		}
		link, err := policy.NormalizeURL(page.URL)
		if err != nil {
			result.AddWarning("skipping result with invalid URL %q: %v", page.URL, err)
			continue
		}
		if err := policy.IsSafeURL(link); err != nil {
			result.AddWarning("skipping result with unsafe URL %q: %v", page.URL, err)
			continue
		}
		result.Items = append(result.Items, tool.Item{
			Title:       policy.SanitizeHTML(page.Name),
			URL:         link,
			PublishedAt: page.DatePublished,
			Snippet:     policy.CleanSnippet(page.Snippet, policy.DefaultSnippetLength),
			Source:      policy.Host(link),
		})
	}
	return result, nil
}
