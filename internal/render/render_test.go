package render

import (
	"strings"
	"testing"

	"github.com/briefwire/briefwire/internal/digest"
)

func TestNewsletter(t *testing.T) {
	items := []digest.SelectedItem{
		{
			Title:        "Go 1.25 released",
			URL:          "https://example.com/go-125",
			Source:       "Example Tech",
			PublishedAt:  "2026-08-24T10:00:00Z",
			WhyItMatters: "The runtime got faster.",
			Summary:      "Release notes in brief.",
		},
		{
			Title:        "Second story",
			URL:          "https://example.com/second",
			Source:       "Example Tech",
			WhyItMatters: "It matters.",
			Summary:      "Short.",
		},
	}

	nl, err := Newsletter("Weekly Go digest", items)
	if err != nil {
		t.Fatalf("Newsletter() error = %v", err)
	}
	if nl.Subject != "Weekly Go digest" {
		t.Errorf("subject = %q", nl.Subject)
	}
	for _, want := range []string{
		"Weekly Go digest",
		`href="https://example.com/go-125"`,
		"Why it matters:",
		"Release notes in brief.",
	} {
		if !strings.Contains(nl.HTML, want) {
			t.Errorf("html missing %q", want)
		}
	}
	for _, want := range []string{
		"1. Go 1.25 released (Example Tech)",
		"   https://example.com/go-125",
		"   Why it matters: The runtime got faster.",
		"2. Second story (Example Tech)",
	} {
		if !strings.Contains(nl.Text, want) {
			t.Errorf("text missing %q in:\n%s", want, nl.Text)
		}
	}
	if strings.HasSuffix(nl.Text, "\n") {
		t.Error("text not trimmed")
	}
}

func TestNewsletter_EscapesMarkup(t *testing.T) {
	items := []digest.SelectedItem{
		{
			Title:        `<script>alert("x")</script>`,
			URL:          "https://example.com/1",
			Source:       "s",
			WhyItMatters: "w",
			Summary:      `<img src=x onerror=alert(1)>`,
		},
	}
	nl, err := Newsletter("Subject", items)
	if err != nil {
		t.Fatalf("Newsletter() error = %v", err)
	}
	if strings.Contains(nl.HTML, "<script>") || strings.Contains(nl.HTML, "<img") {
		t.Error("markup not escaped in HTML body")
	}
}
