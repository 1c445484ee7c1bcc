package rank

import (
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/briefwire/briefwire/internal/digest"
)

const (
	// MaxTitleLength drops candidates with absurdly long titles.
	MaxTitleLength = 500
	// MaxSnippetLength drops candidates with absurdly long snippets.
	MaxSnippetLength = 5000
	// MaxAgeDays marks candidates older than this as stale.
	MaxAgeDays = 90
	// MinAgeDays tolerates slight clock skew; dates further in the future
	// are suspicious.
	MinAgeDays = -7
)

// spamPhrases flag obvious junk in titles. Matching is case-insensitive
// substring.
var spamPhrases = []string{
	"click here now",
	"act now",
	"limited time offer",
	"buy now",
	"free money",
	"you won",
	"congratulations you",
}

// Dedup collapses candidates that share a canonical URL. Within a duplicate
// group the candidate with the newest parseable publication date wins; when
// no date settles it, the first occurrence is kept. Input order of the
// surviving candidates is preserved.
func Dedup(candidates []digest.Candidate) []digest.Candidate {
	type slot struct {
		index int
		at    time.Time
		hasAt bool
	}
	byKey := make(map[string]slot, len(candidates))
	out := make([]digest.Candidate, 0, len(candidates))

	for _, c := range candidates {
		key := CanonicalKey(c.URL)
		at, hasAt := parseTime(c.PublishedAt)

		existing, seen := byKey[key]
		if !seen {
			byKey[key] = slot{index: len(out), at: at, hasAt: hasAt}
			out = append(out, c)
			continue
		}
		if hasAt && (!existing.hasAt || at.After(existing.at)) {
			out[existing.index] = c
			byKey[key] = slot{index: existing.index, at: at, hasAt: true}
		}
	}
	return out
}

// FilterReasonable removes candidates that fail the sanity checks: oversized
// title or snippet, stale or future-dated articles, and spammy titles. An
// unparseable date skips the age check rather than failing it. The second
// return value is how many were dropped.
func FilterReasonable(candidates []digest.Candidate, now time.Time) ([]digest.Candidate, int) {
	kept := make([]digest.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if reasonable(c, now) {
			kept = append(kept, c)
		}
	}
	return kept, len(candidates) - len(kept)
}

func reasonable(c digest.Candidate, now time.Time) bool {
	if len(c.Title) > MaxTitleLength {
		return false
	}
	if len(c.Snippet) > MaxSnippetLength {
		return false
	}
	if at, ok := parseTime(c.PublishedAt); ok {
		ageDays := int(now.Sub(at).Hours() / 24)
		if ageDays > MaxAgeDays || ageDays < MinAgeDays {
			return false
		}
	}
	title := strings.ToLower(c.Title)
	for _, phrase := range spamPhrases {
		if strings.Contains(title, phrase) {
			return false
		}
	}
	return true
}

func parseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	at, err := dateparse.ParseAny(value)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

// Score is the deterministic ranking heuristic: having a snippet beats not
// having one, topic tags add a flat bonus plus a weighted per-tag bonus.
func Score(c digest.Candidate, topicWeights map[string]float64) float64 {
	var s float64
	if c.Snippet != "" {
		s += 1.0
	}
	if len(c.TopicTags) > 0 {
		s += 0.5
		for _, tag := range c.TopicTags {
			s += 0.2 * topicWeights[tag]
		}
	}
	return s
}

// SimpleRank orders candidates by Score, highest first, preserving input
// order among equals. The input slice is not modified.
func SimpleRank(candidates []digest.Candidate, topicWeights map[string]float64) []digest.Candidate {
	ranked := make([]digest.Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return Score(ranked[i], topicWeights) > Score(ranked[j], topicWeights)
	})
	return ranked
}

// EnforceMaxPerDomain keeps at most maxPerDomain selections per domain, in
// selection order, then backfills up to targetCount from the unselected
// candidates in SimpleRank order under the same constraint. Selected ids
// that do not name a known candidate are skipped. The result never exceeds
// targetCount.
func EnforceMaxPerDomain(selectedIDs []string, candidates []digest.Candidate, maxPerDomain, targetCount int) []string {
	byID := make(map[string]digest.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	domainCounts := make(map[string]int)
	final := make([]string, 0, targetCount)
	chosen := make(map[string]bool)

	for _, id := range selectedIDs {
		c, ok := byID[id]
		if !ok || chosen[id] {
			continue
		}
		domain := Domain(c.URL)
		if domainCounts[domain] < maxPerDomain {
			final = append(final, id)
			chosen[id] = true
			domainCounts[domain]++
		}
	}

	if len(final) < targetCount {
		unselected := make([]digest.Candidate, 0, len(candidates))
		for _, c := range candidates {
			if !chosen[c.ID] {
				unselected = append(unselected, c)
			}
		}
		for _, c := range SimpleRank(unselected, nil) {
			if len(final) >= targetCount {
				break
			}
			domain := Domain(c.URL)
			if domainCounts[domain] < maxPerDomain {
				final = append(final, c.ID)
				chosen[c.ID] = true
				domainCounts[domain]++
			}
		}
	}

	if len(final) > targetCount {
		final = final[:targetCount]
	}
	return final
}
