package capture

import (
	"strings"

	"github.com/stupside/streamsniff/internal/app"
	"github.com/stupside/streamsniff/internal/manifest"
)

// Profile holds the browser identity for one capture session. The user agent
// is the one replayed on verification, so both sides of a run look alike.
type Profile struct {
	UserAgent         string
	AcceptLanguage    string
	Platform          string // Client Hints platform (e.g. "Windows")
	NavigatorPlatform string // navigator.platform value
	ScreenWidth       int
	ScreenHeight      int
	CenterX           float64 // ScreenWidth/2, pre-computed for MouseClickXY
	CenterY           float64 // ScreenHeight/2, pre-computed for MouseClickXY
}

type platformPreset struct {
	uaOS              string
	chPlatform        string
	navigatorPlatform string
}

var platformPresets = []platformPreset{
	{"Windows NT", "Windows", "Win32"},
	{"Macintosh", "macOS", "MacIntel"},
	{"Linux", "Linux", "Linux x86_64"},
}

// NewProfile derives a Profile from the browser configuration.
func NewProfile(cfg app.BrowserConfig) *Profile {
	ua := cfg.UserAgent
	if ua == "" {
		ua = manifest.DefaultUserAgent
	}

	plat := platformPresets[0]
	for _, p := range platformPresets {
		if strings.Contains(ua, p.uaOS) {
			plat = p
			break
		}
	}

	width, height := cfg.WindowWidth, cfg.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}

	return &Profile{
		UserAgent:         ua,
		AcceptLanguage:    "en-US,en;q=0.9",
		Platform:          plat.chPlatform,
		NavigatorPlatform: plat.navigatorPlatform,
		ScreenWidth:       width,
		ScreenHeight:      height,
		CenterX:           float64(width) / 2,
		CenterY:           float64(height) / 2,
	}
}
