package source

import (
	"context"
	"errors"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/briefwire/briefwire/internal/policy"
	"github.com/briefwire/briefwire/internal/tool"
)

// FeedAdapter fetches RSS/Atom feeds and normalizes their entries.
type FeedAdapter struct {
	deps   Deps
	parser *gofeed.Parser
}

func NewFeedAdapter(deps Deps) *FeedAdapter {
	parser := gofeed.NewParser()
	parser.Client = deps.client()
	parser.UserAgent = "briefwire/1.0"
	return &FeedAdapter{deps: deps, parser: parser}
}

// Fetch retrieves a single feed. A malformed entry is skipped with a warning;
// only a failure to fetch or parse the feed itself fails the call.
func (a *FeedAdapter) Fetch(ctx context.Context, payload map[string]any) (*tool.Result, error) {
	rawURL := stringParam(payload, "feed_url")
	maxItems, err := maxItemsFromPayload(payload)
	if err != nil {
		return nil, err
	}

	feedURL, err := policy.NormalizeURL(rawURL)
	if err != nil {
		return nil, tool.NewFailure(tool.CodeInvalidInput, "invalid feed URL: %v", err)
	}
	if err := policy.ValidateURL(feedURL, nil); err != nil {
		return nil, tool.NewFailure(tool.CodeInvalidInput, "invalid feed URL: %v", err)
	}
	if err := policy.IsSafeURL(feedURL); err != nil {
		return nil, tool.NewFailure(tool.CodeInvalidInput, "unsafe feed URL: %v", err)
	}
	if err := a.deps.allow("feed"); err != nil {
		return nil, err
	}

	feed, err := a.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, classifyFeedError(err)
	}

	result := &tool.Result{}
	for _, entry := range feed.Items {
		if len(result.Items) >= maxItems {
			break
		}
		item, ok := a.normalizeEntry(entry, feed.Title, result)
		if !ok {
			continue
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

func (a *FeedAdapter) normalizeEntry(entry *gofeed.Item, feedTitle string, result *tool.Result) (tool.Item, bool) {
	if entry == nil || entry.Link == "" {
		result.AddWarning("skipping entry without a link")
		return tool.Item{}, false
	}
	link, err := policy.NormalizeURL(entry.Link)
	if err != nil {
		result.AddWarning("skipping entry with invalid link %q: %v", entry.Link, err)
		return tool.Item{}, false
	}
	if err := policy.IsSafeURL(link); err != nil {
		result.AddWarning("skipping entry with unsafe link %q: %v", entry.Link, err)
		return tool.Item{}, false
	}

	title := policy.SanitizeHTML(entry.Title)
	if title == "" {
		result.AddWarning("skipping entry without a title: %s", link)
		return tool.Item{}, false
	}

	snippet := entry.Description
	if snippet == "" {
		snippet = entry.Content
	}

	item := tool.Item{
		Title:   title,
		URL:     link,
		Snippet: policy.CleanSnippet(snippet, policy.DefaultSnippetLength),
		Source:  feedTitle,
		RawID:   entry.GUID,
	}
	if entry.PublishedParsed != nil {
		item.PublishedAt = entry.PublishedParsed.UTC().Format(time.RFC3339)
	} else {
		item.PublishedAt = entry.Published
	}
	if entry.Author != nil {
		item.Author = entry.Author.Name
	}
	return item, true
}

// classifyFeedError maps gofeed failures onto the taxonomy. gofeed wraps
// HTTP status failures in its own error type and surfaces parse problems
// directly.
func classifyFeedError(err error) error {
	if httpErr, ok := err.(gofeed.HTTPError); ok {
		return classifyStatus(httpErr.StatusCode)
	}
	if httpErr, ok := err.(*gofeed.HTTPError); ok {
		return classifyStatus(httpErr.StatusCode)
	}
	if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		return tool.NewFailure(tool.CodeParseFailed, "feed type not detected")
	}
	return classifyTransport(err)
}
