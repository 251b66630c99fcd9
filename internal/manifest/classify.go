// Package manifest decides which observed URLs are directly playable HLS
// manifests and confirms them over HTTP.
package manifest

import (
	"net/url"
	"slices"
	"strings"
)

// Class is the outcome of classifying a candidate URL.
type Class int

const (
	// Rejected URLs are not HTTP(S) or do not reference a manifest.
	Rejected Class = iota
	// Wrapped URLs reference a manifest through a player, embed or redirector.
	Wrapped
	// Pure URLs point straight at a playable manifest.
	Pure
)

// String returns the string representation of Class.
func (c Class) String() string {
	switch c {
	case Pure:
		return "pure"
	case Wrapped:
		return "wrapped"
	default:
		return "rejected"
	}
}

const (
	// DefaultMarker is the substring every manifest URL carries.
	DefaultMarker = ".m3u8"
	// DefaultUnwrapParam is the redirector query parameter holding the real URL.
	DefaultUnwrapParam = "link"
)

// DefaultBlockList holds substrings of player/embed wrapper endpoints.
var DefaultBlockList = []string{
	"player",
	"embed",
	"vidsrc",
	"/api/v",
	"?link=",
}

// Filter classifies manifest candidates. It holds no state beyond its
// configuration, so a single Filter may be shared across goroutines.
type Filter struct {
	marker      string
	blockList   []string
	unwrapParam string
}

// NewFilter creates a Filter. Empty arguments fall back to the defaults.
func NewFilter(marker string, blockList []string, unwrapParam string) *Filter {
	if marker == "" {
		marker = DefaultMarker
	}
	if blockList == nil {
		blockList = DefaultBlockList
	}
	if unwrapParam == "" {
		unwrapParam = DefaultUnwrapParam
	}

	lowered := make([]string, 0, len(blockList))
	for _, b := range blockList {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			lowered = append(lowered, b)
		}
	}

	return &Filter{
		marker:      strings.ToLower(marker),
		blockList:   lowered,
		unwrapParam: unwrapParam,
	}
}

// Marker returns the manifest marker the filter matches on.
func (f *Filter) Marker() string {
	return f.marker
}

// HasMarker reports whether rawURL mentions the manifest marker.
func (f *Filter) HasMarker(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), f.marker)
}

// Classify labels a single URL. Matching is case-insensitive.
func (f *Filter) Classify(rawURL string) Class {
	lower := strings.ToLower(strings.TrimSpace(rawURL))

	if !hasHTTPScheme(lower) || !strings.Contains(lower, f.marker) {
		return Rejected
	}
	if f.blocked(lower) {
		return Wrapped
	}
	return Pure
}

// ClassifyServed labels a URL whose response was served with a manifest MIME
// type. The response already identifies it, so the marker is not required.
func (f *Filter) ClassifyServed(rawURL string) Class {
	lower := strings.ToLower(strings.TrimSpace(rawURL))

	if !hasHTTPScheme(lower) {
		return Rejected
	}
	if f.blocked(lower) {
		return Wrapped
	}
	return Pure
}

func (f *Filter) blocked(lower string) bool {
	return slices.ContainsFunc(f.blockList, func(b string) bool {
		return strings.Contains(lower, b)
	})
}

// Unwrap extracts the URL carried by the redirector parameter, decoding it.
// It only looks one level deep.
func (f *Filter) Unwrap(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}

	inner := strings.TrimSpace(u.Query().Get(f.unwrapParam))
	if inner == "" {
		return "", false
	}

	// Doubly encoded values still look like "https%3A%2F%2F...".
	if !hasHTTPScheme(strings.ToLower(inner)) && strings.Contains(inner, "%") {
		if decoded, err := url.QueryUnescape(inner); err == nil {
			inner = decoded
		}
	}

	return inner, true
}

// Resolve returns the URL to keep for a candidate: the unwrapped inner URL
// when the redirector parameter carries a pure one, else the candidate itself
// when pure, or false.
func (f *Filter) Resolve(rawURL string) (string, bool) {
	return f.resolve(rawURL, f.Classify)
}

// ResolveServed is Resolve for a URL served with a manifest MIME type.
func (f *Filter) ResolveServed(rawURL string) (string, bool) {
	return f.resolve(rawURL, f.ClassifyServed)
}

func (f *Filter) resolve(rawURL string, classify func(string) Class) (string, bool) {
	if inner, ok := f.Unwrap(rawURL); ok && f.Classify(inner) == Pure {
		return inner, true
	}
	if classify(rawURL) == Pure {
		return strings.TrimSpace(rawURL), true
	}
	return "", false
}

func hasHTTPScheme(lower string) bool {
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Normalize returns the key under which URLs are deduplicated: surrounding
// space trimmed, scheme and host lower-cased, fragment dropped.
func Normalize(rawURL string) string {
	s := strings.TrimSpace(rawURL)

	u, err := url.Parse(s)
	if err != nil {
		return s
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	return u.String()
}

// mimeTypes are response MIME types that identify an HLS manifest.
var mimeTypes = map[string]bool{
	"audio/mpegurl":                 true,
	"audio/x-mpegurl":               true,
	"application/x-mpegurl":         true,
	"application/vnd.apple.mpegurl": true,
}

// IsManifestMIME reports whether a response MIME type is an HLS manifest type.
func IsManifestMIME(mime string) bool {
	mime, _, _ = strings.Cut(mime, ";")
	return mimeTypes[strings.ToLower(strings.TrimSpace(mime))]
}
