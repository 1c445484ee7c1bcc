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

// SocialAdapter searches a social platform's recent-post API.
type SocialAdapter struct {
	deps        Deps
	baseURL     string
	bearerToken string
}

func NewSocialAdapter(deps Deps, baseURL, bearerToken string) *SocialAdapter {
	return &SocialAdapter{deps: deps, baseURL: baseURL, bearerToken: bearerToken}
}

func (a *SocialAdapter) Configured() bool { return a.bearerToken != "" && a.baseURL != "" }

type socialResponse struct {
	Data []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		AuthorID  string `json:"author_id"`
		CreatedAt string `json:"created_at"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
}

func (a *SocialAdapter) Search(ctx context.Context, payload map[string]any) (*tool.Result, error) {
	query := stringParam(payload, "query")
	maxItems, err := maxItemsFromPayload(payload)
	if err != nil {
		return nil, err
	}
	if !a.Configured() {
		return nil, tool.NewFailure(tool.CodeAuthFailed, "social API is not configured")
	}
	if err := a.deps.allow("social"); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", strconv.Itoa(maxItems))
	params.Set("tweet.fields", "created_at,author_id")
	params.Set("expansions", "author_id")
	params.Set("user.fields", "username")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/2/tweets/search/recent?%s", a.baseURL, params.Encode()), nil)
	if err != nil {
		return nil, tool.NewFailure(tool.CodeInvalidInput, "building request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.bearerToken)

	var decoded socialResponse
	if err := getJSON(ctx, a.deps.client(), req, &decoded); err != nil {
		return nil, err
	}

	usernames := make(map[string]string, len(decoded.Includes.Users))
	for _, user := range decoded.Includes.Users {
		usernames[user.ID] = user.Username
	}

	result := &tool.Result{}
	for _, post := range decoded.Data {
		if len(result.Items) >= maxItems {
			break
		}
		if post.ID == "" || post.Text == "" {
			result.AddWarning("skipping post without an id or text")
			continue
		}
		text := policy.SanitizeHTML(post.Text)
		result.Items = append(result.Items, tool.Item{
			Title:       policy.Truncate(text, 120),
			URL:         fmt.Sprintf("https://x.com/i/status/%s", post.ID),
			PublishedAt: post.CreatedAt,
			Snippet:     policy.CleanSnippet(text, policy.DefaultSnippetLength),
			Author:      usernames[post.AuthorID],
			Source:      "x.com",
			RawID:       post.ID,
		})
	}
	return result, nil
}
