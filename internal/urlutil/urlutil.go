// Package urlutil resolves and classifies the URLs the checkers extract
// from page markup.
package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// Resolve turns href into an absolute URL against the page it was found on
// and strips the fragment, so that /about, /about#team and
// https://site/about all dedupe to the same checked URL.
func Resolve(pageURL, href string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("invalid href %q: %w", href, err)
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	return abs.String(), nil
}

// IsInternal reports whether rawURL points at the same host as baseURL.
// Relative URLs (no host) count as internal.
func IsInternal(rawURL, baseURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Host == "" {
		return true
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, base.Host)
}

// Skippable reports whether an anchor href is not a checkable network
// resource: empty, fragment-only, javascript:, mailto: or tel: targets.
func Skippable(href string) bool {
	h := strings.TrimSpace(href)
	if h == "" || strings.HasPrefix(h, "#") {
		return true
	}
	for _, p := range []string{"javascript:", "mailto:", "tel:"} {
		if strings.HasPrefix(h, p) {
			return true
		}
	}
	return false
}

// FullURL joins a configured page path with the site base URL. Absolute
// URLs pass through untouched.
func FullURL(baseURL, path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
