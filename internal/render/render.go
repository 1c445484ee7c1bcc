// Package render produces the HTML and plain-text bodies of a newsletter.
package render

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/briefwire/briefwire/internal/digest"
)

// newsletterTemplate escapes all item fields, so model-authored copy can
// never smuggle markup into the email body.
var newsletterTemplate = template.Must(template.New("newsletter").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Subject}}</title>
</head>
<body style="font-family: Georgia, serif; max-width: 640px; margin: 0 auto; padding: 24px; color: #1a1a1a;">
<h1 style="font-size: 24px; border-bottom: 2px solid #1a1a1a; padding-bottom: 12px;">{{.Subject}}</h1>
{{range $i, $item := .Items}}
<div style="margin: 24px 0;">
<h2 style="font-size: 18px; margin-bottom: 4px;"><a href="{{$item.URL}}" style="color: #0b5fff; text-decoration: none;">{{$item.Title}}</a></h2>
<p style="font-size: 13px; color: #666; margin: 0 0 8px;">{{$item.Source}}{{if $item.PublishedAt}} &middot; {{$item.PublishedAt}}{{end}}</p>
<p style="margin: 0 0 8px;"><strong>Why it matters:</strong> {{$item.WhyItMatters}}</p>
<p style="margin: 0;">{{$item.Summary}}</p>
</div>
{{end}}
</body>
</html>
`))

// Newsletter fills in the HTML and text bodies for a subject and item list.
func Newsletter(subject string, items []digest.SelectedItem) (digest.Newsletter, error) {
	var html strings.Builder
	data := struct {
		Subject string
		Items   []digest.SelectedItem
	}{Subject: subject, Items: items}
	if err := newsletterTemplate.Execute(&html, data); err != nil {
		return digest.Newsletter{}, fmt.Errorf("rendering newsletter: %w", err)
	}
	return digest.Newsletter{
		Subject: subject,
		HTML:    html.String(),
		Text:    renderText(subject, items),
		Items:   items,
	}, nil
}

func renderText(subject string, items []digest.SelectedItem) string {
	lines := []string{subject, ""}
	for i, item := range items {
		lines = append(lines,
			fmt.Sprintf("%d. %s (%s)", i+1, item.Title, item.Source),
			fmt.Sprintf("   %s", item.URL),
			fmt.Sprintf("   Why it matters: %s", item.WhyItMatters),
			fmt.Sprintf("   Summary: %s", item.Summary),
			"")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
