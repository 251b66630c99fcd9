package manifest

import (
	"slices"
	"strings"
)

// DefaultAdBlockList holds domains of well-known advertising and tracking
// networks.
var DefaultAdBlockList = []string{
	"doubleclick.net",
	"googlesyndication.com",
	"google-analytics.com",
	"googletagmanager.com",
	"adservice.google.",
	"googleadservices.com",
	"popads.net",
	"popcash.net",
	"propellerads",
	"adsterra",
	"exoclick.com",
	"juicyads.com",
	"taboola.com",
	"outbrain.com",
	"scorecardresearch.com",
}

// AdFilter flags advertising and tracking URLs by substring. A nil *AdFilter
// is valid and flags nothing.
type AdFilter struct {
	domains []string
}

// NewAdFilter creates an AdFilter. Blank entries are ignored.
func NewAdFilter(domains []string) *AdFilter {
	a := &AdFilter{}
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" && !slices.Contains(a.domains, d) {
			a.domains = append(a.domains, d)
		}
	}
	return a
}

// IsAd reports whether rawURL contains any listed domain.
func (a *AdFilter) IsAd(rawURL string) bool {
	if a == nil {
		return false
	}
	lower := strings.ToLower(rawURL)
	return slices.ContainsFunc(a.domains, func(d string) bool {
		return strings.Contains(lower, d)
	})
}

// BlockPatterns renders the list as wildcard URL patterns for the browser's
// request blocker.
func (a *AdFilter) BlockPatterns() []string {
	if a == nil {
		return nil
	}
	patterns := make([]string, len(a.domains))
	for i, d := range a.domains {
		patterns[i] = "*" + d + "*"
	}
	return patterns
}
