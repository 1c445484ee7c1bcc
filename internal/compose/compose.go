// Package compose turns ranked candidates into finished newsletter copy.
// Both strategies here consult a completion model when one is configured and
// always have a deterministic fallback, so a run can finish without any
// model at all.
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
	"github.com/briefwire/briefwire/internal/rank"
)

const (
	// DefaultMaxPerDomain caps how many selections share a domain.
	DefaultMaxPerDomain = 2
	// maxSummarySentences bounds per-item summary length in the drafting
	// prompt.
	maxSummarySentences = 3

	fallbackSubject      = "Newsletter Update - Latest News"
	fallbackWhyItMatters = "This story provides important updates for our readers."
	fallbackSummary      = "Summary not available."

	promptTitleLimit   = 200
	promptSnippetLimit = 300
)

// Completer is the slice of the completion client the strategies need.
type Completer interface {
	Configured() bool
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Outcome records how a strategy produced its result: via the completion
// model, or via the deterministic fallback and why.
type Outcome struct {
	usedModel      bool
	fallbackReason string
}

func modelOutcome() Outcome                 { return Outcome{usedModel: true} }
func fallbackOutcome(reason string) Outcome { return Outcome{fallbackReason: reason} }

func (o Outcome) UsedModel() bool        { return o.usedModel }
func (o Outcome) FallbackReason() string { return o.fallbackReason }

// Composer runs the selection and drafting strategies.
type Composer struct {
	completer Completer
}

func New(completer Completer) *Composer {
	return &Composer{completer: completer}
}

type selectionOutput struct {
	SelectedIDs []string          `json:"selected_ids"`
	Reasons     map[string]string `json:"reasons,omitempty"`
}

// SelectItems picks up to sub.ItemCount candidates. The model's choice is
// validated before use; any defect in it falls back to the deterministic
// ranking. The domain diversity cap is enforced on both paths.
func (c *Composer) SelectItems(ctx context.Context, sub digest.Subscription, candidates []digest.Candidate) ([]digest.Candidate, Outcome) {
	target := sub.ItemCount
	if target <= 0 {
		target = digest.DefaultItems
	}

	ids, outcome := c.selectIDs(ctx, sub, candidates, target)
	ids = rank.EnforceMaxPerDomain(ids, candidates, DefaultMaxPerDomain, target)

	byID := make(map[string]digest.Candidate, len(candidates))
	for _, cand := range candidates {
		byID[cand.ID] = cand
	}
	picked := make([]digest.Candidate, 0, len(ids))
	for _, id := range ids {
		if cand, ok := byID[id]; ok {
			picked = append(picked, cand)
		}
	}
	return picked, outcome
}

func (c *Composer) selectIDs(ctx context.Context, sub digest.Subscription, candidates []digest.Candidate, target int) ([]string, Outcome) {
	if c.completer == nil || !c.completer.Configured() {
		return fallbackSelect(sub, candidates, target), fallbackOutcome("model_not_configured")
	}

	prompt := buildSelectionPrompt(sub, candidates, target)
	if !budget.WithinTokenLimit(prompt) {
		return fallbackSelect(sub, candidates, target), fallbackOutcome("prompt_token_limit")
	}

	content, err := c.completer.Complete(ctx, []llm.Message{
		{Role: "system", Content: selectionSystemPrompt(target)},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return fallbackSelect(sub, candidates, target), fallbackOutcome(fmt.Sprintf("tool_error: %v", err))
	}

	var out selectionOutput
	if err := json.Unmarshal([]byte(stripCodeFences(content)), &out); err != nil {
		return fallbackSelect(sub, candidates, target), fallbackOutcome(fmt.Sprintf("invalid_output: %v", err))
	}
	if reason := validateSelection(out.SelectedIDs, candidates, target); reason != "" {
		return fallbackSelect(sub, candidates, target), fallbackOutcome("invalid_output: " + reason)
	}
	return out.SelectedIDs, modelOutcome()
}

// validateSelection rejects duplicate ids, ids not present in the input, and
// over-selection. An empty reason means the selection is acceptable.
func validateSelection(ids []string, candidates []digest.Candidate, target int) string {
	if len(ids) > target {
		return fmt.Sprintf("selected too many items: %d > %d", len(ids), target)
	}
	valid := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		valid[c.ID] = true
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return "selected_ids contains duplicates"
		}
		seen[id] = true
		if !valid[id] {
			return fmt.Sprintf("invalid id: %s", id)
		}
	}
	return ""
}

func fallbackSelect(sub digest.Subscription, candidates []digest.Candidate, target int) []string {
	weights := make(map[string]float64, len(sub.Topics))
	for _, topic := range sub.Topics {
		weights[topic] = 1.0
	}
	ranked := rank.SimpleRank(candidates, weights)
	if len(ranked) > target {
		ranked = ranked[:target]
	}
	ids := make([]string, len(ranked))
	for i, c := range ranked {
		ids[i] = c.ID
	}
	return ids
}

func selectionSystemPrompt(target int) string {
	return fmt.Sprintf(
		"You are an expert newsletter curator. Select the best items from the candidates "+
			"considering recency, topic relevance to the given topics, and source diversity. "+
			"You must select up to %d items. Try to respect the max_per_domain limit of %d. "+
			"Return only IDs that exist in the candidate list. Do not modify URLs or invent content. "+
			"Respond with JSON: {\"selected_ids\": [...], \"reasons\": {id: reason}}.",
		target, DefaultMaxPerDomain)
}

// buildSelectionPrompt assembles the user message. Candidate text is
// sanitized before it is placed next to instructions, and ids are the stable
// content hashes, never positions.
func buildSelectionPrompt(sub digest.Subscription, candidates []digest.Candidate, target int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topics of interest: %s\n", strings.Join(sub.Topics, ", "))
	fmt.Fprintf(&b, "Target count: %d\n", target)
	fmt.Fprintf(&b, "Max per domain: %d\n\nCandidates:\n", DefaultMaxPerDomain)
	for i, c := range candidates {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		snippet := c.Snippet
		if snippet == "" {
			snippet = "No snippet"
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

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
