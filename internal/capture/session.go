package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/stupside/streamsniff/internal/app"
	"github.com/stupside/streamsniff/internal/failure"
)

// bodyDrainTimeout bounds how long Close waits for in-flight body fetches.
const bodyDrainTimeout = 5 * time.Second

// Session owns the chromedp lifecycle for a single capture.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	cfg         app.BrowserConfig
	profile     *Profile
	collector   *Collector
	snapshotDir string
	pageURL     string
}

// Open launches a browser, wires the collector to its events and runs setup
// before any navigation. The caller must Close the session.
func Open(ctx context.Context, cfg app.BrowserConfig, collector *Collector, setup ...chromedp.Action) (*Session, error) {
	profile := NewProfile(cfg)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOpts(cfg, profile)...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:         taskCtx,
		cancel:      taskCancel,
		allocCancel: allocCancel,
		cfg:         cfg,
		profile:     profile,
		collector:   collector,
	}

	// An empty Run starts the browser.
	if err := chromedp.Run(taskCtx); err != nil {
		s.Close()
		return nil, failure.New(failure.BrowserLaunch, "launch", cfg.ChromePath, err)
	}

	collector.SetBodyFetcher(func(id network.RequestID) ([]byte, error) {
		var body []byte
		err := chromedp.Run(taskCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			body, err = network.GetResponseBody(id).Do(ctx)
			return err
		}))
		return body, err
	})

	chromedp.ListenTarget(taskCtx, collector.Listen)

	actions := []chromedp.Action{
		runtime.Enable(),
		network.Enable(),
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorDeny),
		overrideUserAgent(profile),
	}
	actions = append(actions, setup...)

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		s.Close()
		return nil, failure.New(failure.BrowserLaunch, "enable domains", "", err)
	}

	return s, nil
}

// Navigate loads targetURL within the configured navigation timeout. A
// failure is returned as NavigationFailed; the session stays usable.
func (s *Session) Navigate(targetURL string) error {
	s.pageURL = targetURL
	s.snapshotDir = snapshotDir(targetURL)

	// Don't bound navigation with a child context; canceling a child of the
	// chromedp task context breaks the target in chromedp v0.14.
	navDone := make(chan error, 1)
	go func() {
		navDone <- chromedp.Run(s.ctx, chromedp.Navigate(targetURL))
	}()

	var err error
	select {
	case err = <-navDone:
	case <-time.After(s.cfg.NavigationTimeout):
		err = fmt.Errorf("navigation timed out after %s", s.cfg.NavigationTimeout)
	case <-s.ctx.Done():
		err = s.ctx.Err()
	}

	s.Snapshot("after_nav")

	if err != nil {
		return failure.New(failure.NavigationFailed, "navigate", targetURL, err)
	}
	return nil
}

// Context returns the browser task context for running actions.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Profile returns the browser identity in use.
func (s *Session) Profile() *Profile {
	return s.profile
}

// Snapshot saves debug artifacts for the current page.
func (s *Session) Snapshot(label string) {
	if s.snapshotDir == "" {
		return
	}
	snapshot(s.ctx, s.snapshotDir, label)
}

// ScanDOM parses the current document and records manifest URLs it
// references as observations. It returns how many were new.
func (s *Session) ScanDOM() (int, error) {
	var html string
	if err := chromedp.Run(s.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return 0, fmt.Errorf("reading document: %w", err)
	}

	urls, err := ScanHTML(html, s.pageURL, s.collector.Match)
	if err != nil {
		return 0, fmt.Errorf("parsing document: %w", err)
	}

	headers := map[string]string{
		"Referer":    s.pageURL,
		"User-Agent": s.profile.UserAgent,
	}

	added := 0
	for _, u := range urls {
		if s.collector.Observe(u, headers, SourceDOM) {
			added++
		}
	}

	slog.DebugContext(s.ctx, "dom scan complete", "found", len(urls), "new", added)
	return added, nil
}

// Close waits briefly for pending response bodies, then tears down the
// browser and allocator.
func (s *Session) Close() {
	drainCtx, cancel := context.WithTimeout(s.ctx, bodyDrainTimeout)
	s.collector.WaitBodies(drainCtx)
	cancel()

	s.cancel()
	s.allocCancel()
}
