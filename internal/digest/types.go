// Package digest defines the entities shared across the curation pipeline:
// subscriptions, candidates, selected items, newsletters, and the structured
// errors accumulated during a run.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/briefwire/briefwire/internal/policy"
)

// SourceKind identifies the provider class of a subscription source.
type SourceKind string

const (
	SourceFeed   SourceKind = "feed"
	SourceNews   SourceKind = "news-api"
	SourceSocial SourceKind = "social-api"
	SourceDomain SourceKind = "domain"
)

// SourceSpec names one content source for a subscription.
type SourceSpec struct {
	Kind  SourceKind `json:"kind"`
	Value string     `json:"value"`
}

// Frequency is accepted and stored but not evaluated; due computation is a
// stub (all enabled subscriptions are due).
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
	FrequencyCron   Frequency = "custom_cron"
)

const (
	MaxTopicLength = 200
	MaxToneLength  = 100
	MinItemCount   = 1
	MaxItemCount   = 50
	DefaultItems   = 8
)

// AllowedTones is the closed set of tones a subscription may request.
var AllowedTones = []string{
	"concise, professional",
	"friendly, casual",
	"technical, detailed",
	"brief, conversational",
}

// Subscription describes one recurring digest for one user.
type Subscription struct {
	ID              string       `json:"id"`
	UserID          string       `json:"user_id"`
	Topics          []string     `json:"topics"`
	Sources         []SourceSpec `json:"sources"`
	Frequency       Frequency    `json:"frequency"`
	Cron            string       `json:"cron,omitempty"`
	ItemCount       int          `json:"item_count"`
	Tone            string       `json:"tone"`
	Enabled         bool         `json:"enabled"`
	RequireApproval bool         `json:"require_approval"`
}

// Validate enforces the construction-time invariants: bounded, injection-free
// topics, an allow-listed tone, and a bounded item count. Callers must reject
// a subscription that fails validation rather than filtering it later.
func (s *Subscription) Validate() error {
	for _, topic := range s.Topics {
		if len(topic) > MaxTopicLength {
			return fmt.Errorf("topic exceeds maximum length of %d characters", MaxTopicLength)
		}
		if policy.ContainsControlPhrase(topic) {
			return fmt.Errorf("topic contains prohibited control phrases")
		}
	}
	if len(s.Tone) > MaxToneLength {
		return fmt.Errorf("tone exceeds maximum length of %d characters", MaxToneLength)
	}
	if s.Tone != "" {
		allowed := false
		for _, t := range AllowedTones {
			if s.Tone == t {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("tone %q is not in the allowed set", s.Tone)
		}
		if policy.ContainsControlPhrase(s.Tone) {
			return fmt.Errorf("tone contains prohibited control phrases")
		}
	}
	if s.ItemCount < MinItemCount || s.ItemCount > MaxItemCount {
		return fmt.Errorf("item count must be between %d and %d", MinItemCount, MaxItemCount)
	}
	return nil
}

// FeedSources returns the feed-kind sources in declaration order.
func (s *Subscription) FeedSources() []SourceSpec {
	var out []SourceSpec
	for _, src := range s.Sources {
		if src.Kind == SourceFeed {
			out = append(out, src)
		}
	}
	return out
}

// Candidate is a normalized, provenance-tagged content item before selection.
// Candidates are never mutated after creation; dedup keeps or discards whole
// values.
type Candidate struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	URL         string            `json:"url"`
	Source      string            `json:"source"`
	PublishedAt string            `json:"published_at,omitempty"` // ISO-8601 when present
	Author      string            `json:"author,omitempty"`
	Snippet     string            `json:"snippet,omitempty"`
	TopicTags   []string          `json:"topic_tags,omitempty"`
	Raw         map[string]string `json:"raw,omitempty"`
}

// CandidateID derives the stable identifier for a URL: a truncated content
// hash, so the same URL always yields the same id within and across runs.
func CandidateID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:24]
}

// SelectedItem is a chosen candidate plus the authored copy. URL is copied
// verbatim from the source candidate and must never be re-derived.
type SelectedItem struct {
	Title        string `json:"title"`
	URL          string `json:"url"`
	Source       string `json:"source"`
	PublishedAt  string `json:"published_at,omitempty"`
	WhyItMatters string `json:"why_it_matters"`
	Summary      string `json:"summary"`
}

// Newsletter is the composed output of one run.
type Newsletter struct {
	Subject string         `json:"subject"`
	HTML    string         `json:"html"`
	Text    string         `json:"text"`
	Items   []SelectedItem `json:"items"`
}

// Status is the terminal state of a run.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusSent     Status = "sent"
	StatusFailed   Status = "failed"
)

// Error is a structured failure record. Errors are collected, never raised
// across component boundaries.
type Error struct {
	Origin  string            `json:"origin"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
}

func (e Error) String() string {
	return fmt.Sprintf("%s:%s - %s", e.Origin, e.Code, e.Message)
}

// User owns subscriptions.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
