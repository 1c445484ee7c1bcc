package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/briefwire/briefwire/internal/policy"
	"github.com/briefwire/briefwire/internal/tool"
)

// NewsAdapter searches an article-search API for recent coverage of a query.
type NewsAdapter struct {
	deps    Deps
	baseURL string
	apiKey  string
}

func NewNewsAdapter(deps Deps, baseURL, apiKey string) *NewsAdapter {
	return &NewsAdapter{deps: deps, baseURL: baseURL, apiKey: apiKey}
}

// Configured reports whether the adapter has credentials to call out with.
func (a *NewsAdapter) Configured() bool { return a.apiKey != "" && a.baseURL != "" }

type newsResponse struct {
	Response struct {
		Docs []struct {
			Headline struct {
				Main string `json:"main"`
			} `json:"headline"`
			Abstract string `json:"abstract"`
			WebURL   string `json:"web_url"`
			PubDate  string `json:"pub_date"`
			Byline   struct {
				Original string `json:"original"`
			} `json:"byline"`
			Source string `json:"source"`
			ID     string `json:"_id"`
		} `json:"docs"`
	} `json:"response"`
}

func (a *NewsAdapter) Search(ctx context.Context, payload map[string]any) (*tool.Result, error) {
	query := stringParam(payload, "query")
	maxItems, err := maxItemsFromPayload(payload)
	if err != nil {
		return nil, err
	}
	if !a.Configured() {
		return nil, tool.NewFailure(tool.CodeAuthFailed, "news API is not configured")
	}
	if err := a.deps.allow("news"); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "newest")
	params.Set("api-key", a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/articlesearch.json?%s", a.baseURL, params.Encode()), nil)
	if err != nil {
		return nil, tool.NewFailure(tool.CodeInvalidInput, "building request: %v", err)
	}

	var decoded newsResponse
	if err := getJSON(ctx, a.deps.client(), req, &decoded); err != nil {
		return nil, err
	}

	result := &tool.Result{}
	for _, doc := range decoded.Response.Docs {
		if len(result.Items) >= maxItems {
			break
		}
		if doc.WebURL == "" || doc.Headline.Main == "" {
			result.AddWarning("skipping article without a URL or headline")
			continue
		}
		link, err := policy.NormalizeURL(doc.WebURL)
		if err != nil {
			result.AddWarning("skipping article with invalid URL %q: %v", doc.WebURL, err)
			continue
		}
		if err := policy.IsSafeURL(link); err != nil {
			result.AddWarning("skipping article with unsafe URL %q: %v", doc.WebURL, err)
			continue
		}
		source := doc.Source
		if source == "" {
			source = policy.Host(link)
		}
		result.Items = append(result.Items, tool.Item{
			Title:       policy.SanitizeHTML(doc.Headline.Main),
			URL:         link,
			PublishedAt: doc.PubDate,
			Snippet:     policy.CleanSnippet(doc.Abstract, policy.DefaultSnippetLength),
			Author:      doc.Byline.Original,
			Source:      source,
			RawID:       doc.ID,
		})
	}
	return result, nil
}
