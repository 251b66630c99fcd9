package sniff

import (
	"cmp"
	"slices"
	"time"

	"github.com/stupside/streamsniff/internal/capture"
	"github.com/stupside/streamsniff/internal/manifest"
)

// Finding is one manifest URL kept after filtering, with the headers needed
// to request it.
type Finding struct {
	URL          string                `json:"url"`
	Referer      string                `json:"referer"`
	Origin       string                `json:"origin"`
	UserAgent    string                `json:"user_agent"`
	DiscoveredAt time.Time             `json:"discovered_at"`
	Source       capture.Source        `json:"source"`
	Verified     bool                  `json:"verified"`
	Playlist     manifest.PlaylistType `json:"playlist,omitempty"`
	Variants     int                   `json:"variants,omitempty"`
}

// rank orders findings master-like first, then by discovery time.
func rank(findings []Finding) {
	slices.SortStableFunc(findings, func(a, b Finding) int {
		if c := cmp.Compare(manifest.Rank(b.URL), manifest.Rank(a.URL)); c != 0 {
			return c
		}
		return a.DiscoveredAt.Compare(b.DiscoveredAt)
	})
}
