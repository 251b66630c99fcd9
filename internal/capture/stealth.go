package capture

import (
	"context"
	"regexp"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/stupside/streamsniff/internal/app"
)

// allocatorOpts returns chromedp exec-allocator options for a capture
// browser. Window size and UA come from the profile.
func allocatorOpts(cfg app.BrowserConfig, profile *Profile) []chromedp.ExecAllocatorOption {
	var headlessVal string
	if cfg.Headless {
		headlessVal = "new"
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,

		chromedp.Flag("headless", headlessVal),
		chromedp.Flag("no-sandbox", cfg.NoSandbox),
		chromedp.Flag("disable-gpu", cfg.Headless),

		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),

		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("mute-audio", true),

		chromedp.WindowSize(profile.ScreenWidth, profile.ScreenHeight),

		chromedp.UserAgent(profile.UserAgent),
	}

	// An empty path lets chromedp look Chrome up on its own.
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}

	return opts
}

// overrideUserAgent applies the profile UA at the CDP level so workers and
// iframes report the same identity as the top-level page.
func overrideUserAgent(profile *Profile) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		ua := emulation.SetUserAgentOverride(profile.UserAgent)
		ua.AcceptLanguage = profile.AcceptLanguage
		ua.Platform = profile.NavigatorPlatform
		ua.UserAgentMetadata = userAgentMetadata(profile)
		return ua.Do(ctx)
	}
}

var chromeVersionPattern = regexp.MustCompile(`Chrome/(\d+)((?:\.\d+)*)`)

// userAgentMetadata builds the Client Hints reported with the profile UA, so
// navigator.userAgentData agrees with the UA string.
func userAgentMetadata(profile *Profile) *emulation.UserAgentMetadata {
	meta := &emulation.UserAgentMetadata{
		Platform:     profile.Platform,
		Architecture: "x86",
		Bitness:      "64",
		Mobile:       false,
	}

	m := chromeVersionPattern.FindStringSubmatch(profile.UserAgent)
	if m == nil {
		return meta
	}
	major, full := m[1], m[1]+m[2]

	brands := []struct{ name, major, full string }{
		{"Chromium", major, full},
		{"Google Chrome", major, full},
		{"Not.A/Brand", "99", "99.0.0.0"},
	}
	for _, b := range brands {
		meta.Brands = append(meta.Brands, &emulation.UserAgentBrandVersion{Brand: b.name, Version: b.major})
		meta.FullVersionList = append(meta.FullVersionList, &emulation.UserAgentBrandVersion{Brand: b.name, Version: b.full})
	}
	return meta
}
