package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/briefwire/briefwire/internal/budget"
	"github.com/briefwire/briefwire/internal/digest"
	"github.com/briefwire/briefwire/internal/llm"
	"github.com/briefwire/briefwire/internal/policy"
)

type draftOutput struct {
	Subject string `json:"subject"`
	Items   []struct {
		ID           string `json:"id"`
		Title        string `json:"title"`
		Source       string `json:"source"`
		URL          string `json:"url"`
		WhyItMatters string `json:"why_it_matters"`
		Summary      string `json:"summary"`
	} `json:"items"`
}

// DraftItems writes the subject line and per-item copy for the picked
// candidates. URLs and publication dates are always taken from the inputs,
// never from model output; a model response that rewrites a URL is rejected
// wholesale.
func (c *Composer) DraftItems(ctx context.Context, sub digest.Subscription, picked []digest.Candidate) (string, []digest.SelectedItem, Outcome) {
	if len(picked) == 0 {
		return fallbackSubjectFor(sub), nil, fallbackOutcome("no_items")
	}
	if c.completer == nil || !c.completer.Configured() {
		return fallbackSubjectFor(sub), fallbackDraft(picked), fallbackOutcome("model_not_configured")
	}

	prompt := buildDraftPrompt(sub, picked)
	if !budget.WithinTokenLimit(prompt) {
		return fallbackSubjectFor(sub), fallbackDraft(picked), fallbackOutcome("prompt_token_limit")
	}

	content, err := c.completer.Complete(ctx, []llm.Message{
		{Role: "system", Content: draftSystemPrompt(sub.Tone)},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return fallbackSubjectFor(sub), fallbackDraft(picked), fallbackOutcome(fmt.Sprintf("tool_error: %v", err))
	}

	var out draftOutput
	if err := json.Unmarshal([]byte(stripCodeFences(content)), &out); err != nil {
		return fallbackSubjectFor(sub), fallbackDraft(picked), fallbackOutcome(fmt.Sprintf("invalid_output: %v", err))
	}
	items, reason := buildDraftedItems(out, picked)
	if reason != "" {
		return fallbackSubjectFor(sub), fallbackDraft(picked), fallbackOutcome("invalid_output: " + reason)
	}
	return out.Subject, items, modelOutcome()
}

// buildDraftedItems validates the model output against the inputs and
// assembles the final items. A non-empty reason rejects the whole draft.
func buildDraftedItems(out draftOutput, picked []digest.Candidate) ([]digest.SelectedItem, string) {
	if strings.TrimSpace(out.Subject) == "" {
		return nil, "empty subject"
	}
	if len(out.Items) == 0 {
		return nil, "no items drafted"
	}

	byID := make(map[string]digest.Candidate, len(picked))
	for _, c := range picked {
		byID[c.ID] = c
	}

	items := make([]digest.SelectedItem, 0, len(out.Items))
	for _, drafted := range out.Items {
		source, ok := byID[drafted.ID]
		if !ok {
			return nil, fmt.Sprintf("invalid item id: %s", drafted.ID)
		}
		if drafted.URL != source.URL {
			return nil, fmt.Sprintf("URL mismatch for id %s", drafted.ID)
		}
		item := digest.SelectedItem{
			Title:        drafted.Title,
			URL:          source.URL,
			Source:       source.Source,
			PublishedAt:  source.PublishedAt,
			WhyItMatters: drafted.WhyItMatters,
			Summary:      drafted.Summary,
		}
		if item.Title == "" {
			item.Title = source.Title
		}
		if item.WhyItMatters == "" {
			item.WhyItMatters = fallbackWhyItMatters
		}
		if item.Summary == "" {
			item.Summary = fallbackSummary
		}
		items = append(items, item)
	}
	return items, ""
}

// fallbackSubjectFor derives the subject line from the first topic.
func fallbackSubjectFor(sub digest.Subscription) string {
	if len(sub.Topics) == 0 {
		return fallbackSubject
	}
	return fmt.Sprintf("Newsletter Update - Latest in %s", sub.Topics[0])
}

// fallbackDraft produces templated copy from the candidates themselves.
func fallbackDraft(picked []digest.Candidate) []digest.SelectedItem {
	items := make([]digest.SelectedItem, 0, len(picked))
	for _, c := range picked {
		summary := c.Snippet
		switch {
		case summary == "":
			summary = fallbackSummary
		case len(summary) > 300:
			summary = summary[:300] + "..."
		}
		items = append(items, digest.SelectedItem{
			Title:        c.Title,
			URL:          c.URL,
			Source:       c.Source,
			PublishedAt:  c.PublishedAt,
			WhyItMatters: fallbackWhyItMatters,
			Summary:      summary,
		})
	}
	return items
}

func draftSystemPrompt(tone string) string {
	return fmt.Sprintf(
		"You are an expert newsletter editor. Generate a compelling newsletter subject line "+
			"and draft content for each item in the specified tone: %s. "+
			"Keep summaries to %d sentences maximum. "+
			"Use only information supported by the title and snippet. Do not invent facts. "+
			"Preserve URLs exactly as provided. Each 'why_it_matters' should be exactly 1 sentence. "+
			"Respond with JSON: {\"subject\": string, \"items\": [{id, title, source, url, why_it_matters, summary}]}.",
		tone, maxSummarySentences)
}

func buildDraftPrompt(sub digest.Subscription, picked []digest.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Newsletter tone: %s\n", sub.Tone)
	fmt.Fprintf(&b, "Max summary sentences: %d\n\nItems to draft:\n", maxSummarySentences)
	for i, c := range picked {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		snippet := c.Snippet
		if snippet == "" {
			snippet = "No snippet available"
		}
		published := c.PublishedAt
		if published == "" {
			published = "Unknown"
		}
		fmt.Fprintf(&b, "ID: %s\nTitle: %s\nSource: %s\nURL: %s\nPublished: %s\nSnippet: %s\n",
			c.ID,
			policy.SanitizeForPrompt(c.Title, promptTitleLimit),
			policy.SanitizeForPrompt(c.Source, promptTitleLimit),
			c.URL,
			published,
			policy.SanitizeForPrompt(snippet, promptSnippetLimit))
	}
	return b.String()
}
