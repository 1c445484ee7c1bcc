// Package rank filters, deduplicates, and orders acquisition candidates
// deterministically. Everything in here is pure: same input, same output,
// no network and no clock except where one is passed in.
package rank

import (
	"net/url"
	"strings"
)

// trackingParams are query parameters that identify a visitor or campaign
// rather than the document, so two URLs differing only in them point at the
// same content.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"msclkid": true,
	"mc_cid":  true,
	"mc_eid":  true,
	"ref":     true,
	"source":  true,
	"_hsenc":  true,
	"_hsmi":   true,
	"mkt_tok": true,
}

func isTrackingParam(name string) bool {
	return trackingParams[name] || strings.HasPrefix(name, "utm_")
}

// CanonicalKey reduces a URL to its identity for deduplication: lowercase
// scheme and host, tracking parameters and fragment removed, remaining query
// sorted, trailing slash dropped. An unparseable URL falls back to its
// lowercased trimmed form.
func CanonicalKey(raw string) string {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return strings.ToLower(trimmed)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	query := parsed.Query()
	for name := range query {
		if isTrackingParam(strings.ToLower(name)) {
			query.Del(name)
		}
	}
	// Encode sorts keys, which keeps canonical keys deterministic.
	parsed.RawQuery = query.Encode()

	if parsed.Path != "/" {
		parsed.Path = strings.TrimRight(parsed.Path, "/")
	}
	return parsed.String()
}

// Domain extracts the lowercased host for diversity checks, or "unknown"
// when the URL cannot be parsed.
func Domain(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	return strings.ToLower(parsed.Hostname())
}
