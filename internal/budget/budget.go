// Package budget enforces the per-run resource ceilings and the process-wide
// request rate limiter. Ceilings are runaway guards, not performance tuning:
// exceeding one records a structured error and stops the offending work.
package budget

import (
	"fmt"

	"github.com/briefwire/briefwire/internal/digest"
)

const (
	// MaxNodeExecutions caps pipeline stage entries within one run.
	MaxNodeExecutions = 20
	// MaxPromptTokens caps any text assembled for the completion service.
	MaxPromptTokens = 10000
	// CharsPerToken is the fixed estimation ratio; no tokenizer dependency.
	CharsPerToken = 4
	// MaxFeedsPerRun caps feed fetches per run.
	MaxFeedsPerRun = 10
	// MaxSearchCallsPerRun caps external grounded-search calls per run.
	MaxSearchCallsPerRun = 2
)

// RunBudget tracks execution counters for a single run. It is owned by one
// run's goroutine and never shared across runs.
type RunBudget struct {
	nodeExecutions int
	searchCalls    int
}

// EnterNode increments the node-execution counter on stage entry. When the
// ceiling is already reached it returns a fatal execution-limit error and the
// stage must return without doing work.
func (b *RunBudget) EnterNode(node string) *digest.Error {
	if b.nodeExecutions >= MaxNodeExecutions {
		return &digest.Error{
			Origin:  "system",
			Code:    "execution_limit_exceeded",
			Message: fmt.Sprintf("maximum node execution limit (%d) exceeded", MaxNodeExecutions),
			Context: map[string]string{
				"node":            node,
				"execution_count": fmt.Sprintf("%d", b.nodeExecutions),
			},
		}
	}
	b.nodeExecutions++
	return nil
}

// NodeExecutions returns the number of stage entries so far.
func (b *RunBudget) NodeExecutions() int { return b.nodeExecutions }

// EstimateTokens estimates the token count of text with the fixed
// chars-per-token ratio.
func EstimateTokens(text string) int {
	return len(text) / CharsPerToken
}

// WithinTokenLimit reports whether text fits the prompt token ceiling.
func WithinTokenLimit(text string) bool {
	return EstimateTokens(text) <= MaxPromptTokens
}

// CapFeeds truncates a requested feed count to the per-run ceiling. When the
// request exceeds the ceiling it returns the capped count and a rate-limit
// error noting requested versus allowed.
func CapFeeds(requested int) (int, *digest.Error) {
	if requested <= MaxFeedsPerRun {
		return requested, nil
	}
	return MaxFeedsPerRun, &digest.Error{
		Origin:  "feed",
		Code:    "rate_limit_exceeded",
		Message: fmt.Sprintf("number of feeds (%d) exceeds limit of %d", requested, MaxFeedsPerRun),
		Context: map[string]string{
			"requested":   fmt.Sprintf("%d", requested),
			"max_allowed": fmt.Sprintf("%d", MaxFeedsPerRun),
		},
	}
}

// TakeSearchCall consumes one external-search slot. The counter increments on
// every attempt; once exhausted further calls are refused.
func (b *RunBudget) TakeSearchCall() *digest.Error {
	if b.searchCalls >= MaxSearchCallsPerRun {
		return &digest.Error{
			Origin:  "websearch",
			Code:    "rate_limit_exceeded",
			Message: fmt.Sprintf("external search call limit (%d) exceeded", MaxSearchCallsPerRun),
			Context: map[string]string{
				"search_count": fmt.Sprintf("%d", b.searchCalls),
			},
		}
	}
	b.searchCalls++
	return nil
}

// SearchCalls returns the number of external search attempts so far.
func (b *RunBudget) SearchCalls() int { return b.searchCalls }
