// Package acquire coordinates candidate acquisition across the configured
// providers. Feeds fan out concurrently with a bounded limit; provider
// failures become recorded run errors, never a failed acquisition.
package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/briefwire/briefwire/internal/budget"
	"github.com/briefwire/briefwire/internal/digest"
	"github.com/briefwire/briefwire/internal/policy"
	"github.com/briefwire/briefwire/internal/tool"
)

const (
	// maxConcurrentFeeds bounds the feed fan-out.
	maxConcurrentFeeds = 4
	// searchQueryTopics is how many subscription topics form a search query.
	searchQueryTopics = 3
)

// Providers flags which optional providers are wired and credentialed.
// Feeds are always available.
type Providers struct {
	News      bool
	Social    bool
	WebSearch bool
}

// Coordinator drives one acquisition pass over a subscription's sources.
type Coordinator struct {
	exec      *tool.Executor
	allowlist []string
	providers Providers
	logger    *slog.Logger
}

func New(exec *tool.Executor, allowlist []string, providers Providers, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{exec: exec, allowlist: allowlist, providers: providers, logger: logger}
}

// Result is everything one acquisition pass produced.
type Result struct {
	Candidates []digest.Candidate
	Errors     []digest.Error
}

// Run fetches candidates from every applicable source. Feed fetches run
// concurrently; each feed accumulates into its own slot and the slots merge
// after the group joins, so output order only depends on source order.
func (c *Coordinator) Run(ctx context.Context, sub digest.Subscription) Result {
	var result Result

	feeds := sub.FeedSources()
	capped, capErr := budget.CapFeeds(len(feeds))
	if capErr != nil {
		result.Errors = append(result.Errors, *capErr)
		feeds = feeds[:capped]
	}

	type feedSlot struct {
		candidates []digest.Candidate
		errs       []digest.Error
	}
	slots := make([]feedSlot, len(feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFeeds)
	for i, src := range feeds {
		g.Go(func() error {
			slot := &slots[i]
			host := policy.Host(src.Value)
			if !policy.IsDomainAllowed(host, c.allowlist) {
				slot.errs = append(slot.errs, digest.Error{
					Origin:  "feed",
					Code:    "domain_not_allowed",
					Message: fmt.Sprintf("feed domain %q is not in the allow-list", host),
					Context: map[string]string{"feed_url": src.Value, "domain": host},
				})
				return nil
			}
			slot.candidates, slot.errs = c.invokeFeed(gctx, src.Value, sub.Topics)
			return nil
		})
	}
	// Workers never return errors; failures land in their slot.
	_ = g.Wait()

	for _, slot := range slots {
		result.Candidates = append(result.Candidates, slot.candidates...)
		result.Errors = append(result.Errors, slot.errs...)
	}

	query := searchQuery(sub.Topics)
	if query != "" {
		if c.providers.News {
			c.invokeSearch(ctx, "search_news", "news", query, sub.Topics, &result)
		}
		if c.providers.Social {
			c.invokeSearch(ctx, "search_posts", "social", query, sub.Topics, &result)
		}
	}

	c.logger.Info("acquisition pass complete",
		"subscription_id", sub.ID,
		"candidates", len(result.Candidates),
		"errors", len(result.Errors))
	return result
}

// Augment runs grounded web search for the subscription topics, charging the
// per-run search budget. It is a separate stage so the pipeline can account
// for it as its own node.
func (c *Coordinator) Augment(ctx context.Context, sub digest.Subscription, b *budget.RunBudget) Result {
	var result Result

	query := searchQuery(sub.Topics)
	if !c.providers.WebSearch || query == "" {
		return result
	}
	if budgetErr := b.TakeSearchCall(); budgetErr != nil {
		result.Errors = append(result.Errors, *budgetErr)
		return result
	}

	c.invokeSearch(ctx, "web_search", "websearch", query, sub.Topics, &result)
	return result
}

func (c *Coordinator) invokeFeed(ctx context.Context, feedURL string, topics []string) ([]digest.Candidate, []digest.Error) {
	res, err := c.exec.Invoke(ctx, "fetch_feed", map[string]any{"feed_url": feedURL})
	if err != nil {
		return nil, []digest.Error{{
			Origin:  "feed",
			Code:    "fetch_failure",
			Message: err.Error(),
			Context: map[string]string{"feed_url": feedURL},
		}}
	}

	var tags []string
	if len(topics) > 0 {
		tags = topics[:1]
	}
	candidates := toCandidates(res.Items, tags)
	errs := toErrors(res.Errors, map[string]string{"feed_url": feedURL})
	for _, warning := range res.Warnings {
		c.logger.Debug("feed entry skipped", "feed_url", feedURL, "reason", warning)
	}
	return candidates, errs
}

func (c *Coordinator) invokeSearch(ctx context.Context, toolName, origin, query string, topics []string, result *Result) {
	res, err := c.exec.Invoke(ctx, toolName, map[string]any{"query": query})
	if err != nil {
		result.Errors = append(result.Errors, digest.Error{
			Origin:  origin,
			Code:    "fetch_failure",
			Message: err.Error(),
			Context: map[string]string{"query": query},
		})
		return
	}

	tags := topics
	if len(tags) > searchQueryTopics {
		tags = tags[:searchQueryTopics]
	}
	result.Candidates = append(result.Candidates, toCandidates(res.Items, tags)...)
	result.Errors = append(result.Errors, toErrors(res.Errors, map[string]string{"query": query})...)
}

func searchQuery(topics []string) string {
	if len(topics) > searchQueryTopics {
		topics = topics[:searchQueryTopics]
	}
	return strings.Join(topics, " OR ")
}

func toCandidates(items []tool.Item, tags []string) []digest.Candidate {
	out := make([]digest.Candidate, 0, len(items))
	for _, item := range items {
		out = append(out, digest.Candidate{
			ID:          digest.CandidateID(item.URL),
			Title:       item.Title,
			URL:         item.URL,
			Source:      item.Source,
			PublishedAt: item.PublishedAt,
			Author:      item.Author,
			Snippet:     item.Snippet,
			TopicTags:   tags,
		})
	}
	return out
}

func toErrors(errs []tool.Error, extra map[string]string) []digest.Error {
	out := make([]digest.Error, 0, len(errs))
	for _, e := range errs {
		ctx := make(map[string]string, len(e.Context)+len(extra))
		for k, v := range e.Context {
			ctx[k] = v
		}
		for k, v := range extra {
			ctx[k] = v
		}
		out = append(out, digest.Error{
			Origin:  e.Tool,
			Code:    strings.ToLower(string(e.Code)),
			Message: e.Message,
			Context: ctx,
		})
	}
	return out
}
