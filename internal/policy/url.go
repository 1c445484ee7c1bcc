// Package policy implements the content-safety and domain-trust rules applied
// to every piece of externally-sourced data: URL canonicalization and SSRF
// defense, domain allow-listing, HTML stripping, and prompt sanitization.
package policy

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// privateRanges are the address blocks a fetch target must never resolve to.
var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// NormalizeURL canonicalizes a URL: missing scheme defaults to https, scheme
// and host are lowercased, default ports and the fragment are dropped, and a
// trailing slash is trimmed from non-root paths. The same logical URL always
// normalizes to the same string.
func NormalizeURL(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("url must be a non-empty string")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url format: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	if u.Path != "" && u.Path != "/" {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	u.Fragment = ""

	return u.String(), nil
}

// ValidateURL checks that the URL parses and carries an allowed scheme and a
// host. allowedSchemes defaults to {http, https} when nil.
func ValidateURL(raw string, allowedSchemes []string) error {
	if allowedSchemes == nil {
		allowedSchemes = []string{"http", "https"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url format: %w", err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("url must have a scheme")
	}
	scheme := strings.ToLower(u.Scheme)
	ok := false
	for _, s := range allowedSchemes {
		if scheme == s {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("url scheme %q not allowed", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url must have a host")
	}
	return nil
}

// IsSafeURL is the SSRF boundary: it rejects URLs whose hostname is a literal
// private, loopback, or link-local IP, or a localhost pattern. It must run on
// every externally-supplied URL before any fetch is issued against it.
func IsSafeURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url format: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("url must have a hostname")
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		for _, p := range privateRanges {
			if p.Contains(addr.Unmap()) {
				return fmt.Errorf("url points to private ip range: %s", host)
			}
		}
	}

	lower := strings.ToLower(host)
	if lower == "localhost" || lower == "0.0.0.0" || lower == "::1" || strings.HasPrefix(lower, "127.") {
		return fmt.Errorf("url points to localhost: %s", host)
	}

	return nil
}

// IsDomainAllowed reports whether host matches the allowlist exactly or as a
// subdomain of an allowed domain.
func IsDomainAllowed(host string, allowlist []string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	for _, allowed := range allowlist {
		if h == allowed || strings.HasSuffix(h, "."+allowed) {
			return true
		}
	}
	return false
}

// Host extracts the lowercased hostname from a URL, or "unknown" when the URL
// does not parse.
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
