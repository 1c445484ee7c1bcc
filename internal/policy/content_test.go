package policy

import (
	"strings"
	"testing"
)

func TestSanitizeHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips tags", "<p>Hello <b>world</b></p>", "Hello world"},
		{"decodes entities", "Fish &amp; chips", "Fish & chips"},
		{"collapses whitespace", "a\n\n b\t\tc", "a b c"},
		{"empty input", "", ""},
		{"script removed", `<script>alert("x")</script>text`, "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeHTML(tt.in); got != tt.want {
				t.Errorf("SanitizeHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 100); got != "short" {
		t.Errorf("short text changed: %q", got)
	}

	long := strings.Repeat("word ", 40)
	got := Truncate(long, 50)
	if len(got) > 50 {
		t.Errorf("truncated length %d exceeds 50", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated text missing ellipsis: %q", got)
	}

	// No spaces near the cut point forces a hard cut.
	noSpaces := strings.Repeat("x", 200)
	got = Truncate(noSpaces, 50)
	if got != strings.Repeat("x", 47)+"..." {
		t.Errorf("hard cut = %q", got)
	}
}

func TestTruncate_WordBoundary(t *testing.T) {
	// The last space falls inside 80 percent of the cut point, so the cut
	// lands on the boundary.
	text := "aaaa bbbb cccc dddd eeee ffff gggg hhhh"
	got := Truncate(text, 25)
	if strings.Contains(strings.TrimSuffix(got, "..."), "ffff") {
		t.Errorf("cut did not respect word boundary: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("missing ellipsis: %q", got)
	}
}

func TestCleanSnippet(t *testing.T) {
	got := CleanSnippet("<div>Some <i>styled</i> text</div>", 100)
	if got != "Some styled text" {
		t.Errorf("CleanSnippet = %q", got)
	}
	if got := CleanSnippet("", 100); got != "" {
		t.Errorf("empty snippet produced %q", got)
	}
	if got := CleanSnippet("<br/>", 100); got != "" {
		t.Errorf("markup-only snippet produced %q", got)
	}

	long := strings.Repeat("content ", 200)
	got = CleanSnippet(long, 0)
	if len(got) > DefaultSnippetLength {
		t.Errorf("default limit not applied: len=%d", len(got))
	}
}
