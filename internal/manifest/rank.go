package manifest

import (
	"net/url"
	"slices"
	"strings"
)

// variantPatterns are URL path substrings that indicate a variant or segment
// playlist rather than a master playlist.
var variantPatterns = []string{
	"/720p/", "/1080p/", "/480p/", "/360p/", "/240p/",
	"_720.", "_1080.", "_480.", "_360.", "_240.",
	"/chunklist", "/media-", "/segment", "/index-",
}

// Rank scores a manifest URL. Higher scores are more likely master playlists.
func Rank(rawURL string) int {
	score := 0

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return score
	}

	p := strings.ToLower(parsed.Path)

	if strings.Contains(p, "master") {
		score += 100
	}
	if strings.Contains(p, "playlist") {
		score += 50
	}

	if slices.ContainsFunc(variantPatterns, func(vp string) bool {
		return strings.Contains(p, vp)
	}) {
		score -= 50
	}

	return score
}
