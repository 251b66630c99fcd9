package sniff

import (
	"context"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/stupside/streamsniff/internal/action"
	"github.com/stupside/streamsniff/internal/app"
	"github.com/stupside/streamsniff/internal/capture"
	"github.com/stupside/streamsniff/internal/failure"
)

// BrowserCapturer captures pages with a headless Chrome.
type BrowserCapturer struct {
	Browser  app.BrowserConfig
	Settings app.CaptureConfig
	Actions  app.ActionConfig
	// Interact runs the consent/iframe/play sequence after navigation.
	Interact bool
	// BlockPatterns are request URL patterns failed before they leave the
	// browser.
	BlockPatterns []string
}

// Capture implements Capturer. Only a browser launch failure is returned;
// navigation and interaction failures are logged and the capture goes on
// with whatever traffic was seen.
func (b *BrowserCapturer) Capture(ctx context.Context, req CaptureRequest) error {
	var setup []chromedp.Action
	if len(b.BlockPatterns) > 0 {
		setup = append(setup, action.BlockURLs(b.BlockPatterns))
	}

	session, err := capture.Open(ctx, b.Browser, req.Collector, setup...)
	if err != nil {
		return err
	}
	defer session.Close()

	slog.InfoContext(ctx, "navigating", "url", req.Target)
	if err := session.Navigate(req.Target); err != nil {
		slog.WarnContext(ctx, "navigation failed, continuing",
			"kind", failure.KindOf(err),
			"retryable", failure.KindOf(err).Retryable(),
			"error", err,
		)
	}

	if b.Interact {
		b.interact(session, req.Collector)
	}

	slog.InfoContext(ctx, "waiting for network to settle",
		"idle_window", b.Settings.IdleWindow,
		"max_wait", b.Settings.MaxWait,
	)
	reason := req.Collector.Wait(req.Until, b.Settings.IdleWindow, b.Settings.MaxWait)
	slog.DebugContext(ctx, "wait finished", "reason", reason, "cause", context.Cause(req.Until))

	if ctx.Err() == nil {
		if _, err := session.ScanDOM(); err != nil {
			slog.DebugContext(ctx, "dom scan failed", "error", err)
		}
	}

	session.Snapshot("final")
	return nil
}

// interact walks the page towards a playing video, skipping remaining steps
// once a candidate has been captured.
func (b *BrowserCapturer) interact(s *capture.Session, c *capture.Collector) {
	ctx := s.Context()
	s.Snapshot("pipeline_start")

	if sel, err := action.ClickFirst(ctx, b.Actions.ConsentSelectors, b.Actions.SelectorTimeout); err != nil {
		slog.DebugContext(ctx, "pipeline: no consent banner clicked", "error", err)
	} else {
		slog.DebugContext(ctx, "pipeline: consent clicked", "selector", sel)
	}

	if !c.HasHits() && b.Actions.IframeMaxDepth > 0 {
		depth, err := action.NavigateIframe(ctx, b.Actions.IframeTimeout, b.Actions.IframeMaxDepth)
		if err != nil {
			slog.DebugContext(ctx, "pipeline: navigate iframe failed", "error", err)
		} else {
			slog.DebugContext(ctx, "pipeline: entered iframes", "depth", depth)
		}
		s.Snapshot("iframe")
	}

	if !c.HasHits() {
		if sel, err := action.ClickFirst(ctx, b.Actions.PlaySelectors, b.Actions.SelectorTimeout); err != nil {
			slog.DebugContext(ctx, "pipeline: no play button, clicking center", "error", err)
			p := s.Profile()
			if err := action.Click(ctx, p.CenterX, p.CenterY); err != nil {
				slog.DebugContext(ctx, "pipeline: click center failed", "error", err)
			}
		} else {
			slog.DebugContext(ctx, "pipeline: play clicked", "selector", sel)
		}
		s.Snapshot("play")
	}

	select {
	case <-time.After(b.Actions.SettleAfterClick):
	case <-ctx.Done():
		return
	}

	closed, err := action.ClosePopups(ctx)
	if err != nil {
		slog.DebugContext(ctx, "pipeline: close popups failed", "error", err)
	}
	if len(closed) > 0 {
		slog.InfoContext(ctx, "closed popups", "count", len(closed))
	}
}
