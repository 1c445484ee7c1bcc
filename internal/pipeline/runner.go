// Package pipeline sequences one newsletter run: acquire candidates, augment
// with grounded search, then select and write. Stages run in order on one
// goroutine; concurrency lives inside the acquisition step. Stage failures
// degrade the run and are recorded; only an empty candidate pool or an
// exhausted run budget fails it.
package pipeline

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/briefwire/briefwire/internal/acquire"
	"github.com/briefwire/briefwire/internal/budget"
	"github.com/briefwire/briefwire/internal/compose"
	"github.com/briefwire/briefwire/internal/digest"
	"github.com/briefwire/briefwire/internal/rank"
	"github.com/briefwire/briefwire/internal/render"
)

const emptySubject = "No content available"

// newRunBudget builds the per-run budget. Tests swap it to exercise the
// budget gates without twenty real stage entries.
var newRunBudget = func() *budget.RunBudget { return &budget.RunBudget{} }

// placeholderNewsletter is the best-effort output of a run that produced
// nothing to send. A failed run still carries exactly one system-authored
// item so downstream consumers never see an empty newsletter.
func placeholderNewsletter() digest.Newsletter {
	items := []digest.SelectedItem{{
		Title:        "No articles available",
		URL:          "https://example.com",
		Source:       "system",
		WhyItMatters: "We couldn't find any articles matching your topics today.",
		Summary:      "Please check back later or adjust your subscription settings.",
	}}
	newsletter, err := render.Newsletter(emptySubject, items)
	if err != nil {
		return digest.Newsletter{Subject: emptySubject, Items: items}
	}
	return newsletter
}

// Runner executes runs for subscriptions.
type Runner struct {
	acquirer *acquire.Coordinator
	composer *compose.Composer
	logger   *slog.Logger
	now      func() time.Time
}

func NewRunner(acquirer *acquire.Coordinator, composer *compose.Composer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		acquirer: acquirer,
		composer: composer,
		logger:   logger,
		now:      time.Now,
	}
}

// Outcome is the full record of one run.
type Outcome struct {
	Newsletter     digest.Newsletter `json:"newsletter"`
	Status         digest.Status     `json:"status"`
	Errors         []digest.Error    `json:"errors,omitempty"`
	CandidateCount int               `json:"candidate_count"`
	SelectedCount  int               `json:"selected_count"`
	UsedModel      bool              `json:"used_model"`
	FallbackReason string            `json:"fallback_reason,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
}

// Run executes the three stages for one subscription. The subscription is
// validated up front; a run never starts on unvalidated input.
func (r *Runner) Run(ctx context.Context, sub digest.Subscription) Outcome {
	outcome := Outcome{StartedAt: r.now().UTC()}

	if err := sub.Validate(); err != nil {
		outcome.Status = digest.StatusFailed
		outcome.Errors = append(outcome.Errors, digest.Error{
			Origin:  "system",
			Code:    "invalid_input",
			Message: err.Error(),
		})
		outcome.Newsletter = digest.Newsletter{Subject: emptySubject}
		outcome.FinishedAt = r.now().UTC()
		return outcome
	}

	b := newRunBudget()
	var candidates []digest.Candidate

	if budgetErr := b.EnterNode("fetch_candidates"); budgetErr != nil {
		outcome.Errors = append(outcome.Errors, *budgetErr)
		outcome.Status = digest.StatusFailed
	} else {
		acquired := r.acquirer.Run(ctx, sub)
		candidates = append(candidates, acquired.Candidates...)
		outcome.Errors = append(outcome.Errors, acquired.Errors...)
	}

	if budgetErr := b.EnterNode("grounded_search"); budgetErr != nil {
		outcome.Errors = append(outcome.Errors, *budgetErr)
		outcome.Status = digest.StatusFailed
	} else {
		augmented := r.acquirer.Augment(ctx, sub, b)
		candidates = append(candidates, augmented.Candidates...)
		outcome.Errors = append(outcome.Errors, augmented.Errors...)
	}

	if budgetErr := b.EnterNode("select_and_write"); budgetErr != nil {
		outcome.Errors = append(outcome.Errors, *budgetErr)
		outcome.Status = digest.StatusFailed
		outcome.Newsletter = placeholderNewsletter()
		outcome.FinishedAt = r.now().UTC()
		return outcome
	}

	return r.selectAndWrite(ctx, sub, candidates, outcome)
}

// Compose runs selection, drafting, and rendering over already-acquired
// candidates. The generate command uses it to produce a newsletter from a
// prefetched input file without touching the network.
func (r *Runner) Compose(ctx context.Context, sub digest.Subscription, candidates []digest.Candidate) Outcome {
	outcome := Outcome{StartedAt: r.now().UTC()}

	if err := sub.Validate(); err != nil {
		outcome.Status = digest.StatusFailed
		outcome.Errors = append(outcome.Errors, digest.Error{
			Origin:  "system",
			Code:    "invalid_input",
			Message: err.Error(),
		})
		outcome.Newsletter = digest.Newsletter{Subject: emptySubject}
		outcome.FinishedAt = r.now().UTC()
		return outcome
	}

	// Prefetched candidates arrive without ids; derive the same stable ids
	// the acquisition path assigns so selection can tell them apart.
	for i := range candidates {
		if candidates[i].ID == "" {
			candidates[i].ID = digest.CandidateID(candidates[i].URL)
		}
	}

	return r.selectAndWrite(ctx, sub, candidates, outcome)
}

func (r *Runner) selectAndWrite(ctx context.Context, sub digest.Subscription, candidates []digest.Candidate, outcome Outcome) Outcome {
	candidates = rank.Dedup(candidates)
	candidates, dropped := rank.FilterReasonable(candidates, r.now())
	if dropped > 0 {
		outcome.Errors = append(outcome.Errors, digest.Error{
			Origin:  "system",
			Code:    "candidates_filtered",
			Message: "some candidates failed sanity checks",
			Context: map[string]string{"filtered_count": strconv.Itoa(dropped)},
		})
	}
	outcome.CandidateCount = len(candidates)

	if len(candidates) == 0 {
		r.logger.Warn("no candidates available for selection", "subscription_id", sub.ID)
		outcome.Status = digest.StatusFailed
		outcome.Newsletter = placeholderNewsletter()
		outcome.FinishedAt = r.now().UTC()
		return outcome
	}

	picked, selectOutcome := r.composer.SelectItems(ctx, sub, candidates)
	r.recordFallback("rank_and_select", selectOutcome, &outcome)

	subject, items, draftOutcome := r.composer.DraftItems(ctx, sub, picked)
	r.recordFallback("draft_newsletter_items", draftOutcome, &outcome)
	outcome.UsedModel = selectOutcome.UsedModel() && draftOutcome.UsedModel()
	outcome.SelectedCount = len(items)

	newsletter, err := render.Newsletter(subject, items)
	if err != nil {
		outcome.Errors = append(outcome.Errors, digest.Error{
			Origin:  "system",
			Code:    "render_failed",
			Message: err.Error(),
		})
		outcome.Status = digest.StatusFailed
		outcome.Newsletter = digest.Newsletter{Subject: subject, Items: items}
		outcome.FinishedAt = r.now().UTC()
		return outcome
	}
	outcome.Newsletter = newsletter

	switch {
	case outcome.Status == digest.StatusFailed:
		// an earlier budget gate already failed the run
	case sub.RequireApproval:
		outcome.Status = digest.StatusDraft
	default:
		outcome.Status = digest.StatusApproved
	}
	outcome.FinishedAt = r.now().UTC()

	r.logger.Info("run complete",
		"subscription_id", sub.ID,
		"status", string(outcome.Status),
		"candidates", outcome.CandidateCount,
		"selected", outcome.SelectedCount,
		"used_model", outcome.UsedModel,
		"errors", len(outcome.Errors))
	return outcome
}

// recordFallback notes why a strategy fell back. An unconfigured model is
// normal operation, not an error.
func (r *Runner) recordFallback(strategy string, o compose.Outcome, outcome *Outcome) {
	reason := o.FallbackReason()
	if o.UsedModel() || reason == "" || reason == "model_not_configured" {
		return
	}
	if outcome.FallbackReason == "" {
		outcome.FallbackReason = reason
	}
	outcome.Errors = append(outcome.Errors, digest.Error{
		Origin:  "llm",
		Code:    strategy + "_failed",
		Message: reason,
	})
}
