package action

import (
	"context"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

// iframeSrcJS finds the largest visible iframe (min 100x100) and returns its
// src URL. Returns null if no suitable iframe is found or src is empty/about:.
const iframeSrcJS = `(() => {
	let best = null, bestArea = 0;
	for (const f of document.querySelectorAll('iframe')) {
		const r = f.getBoundingClientRect();
		if (r.width < 100 || r.height < 100) continue;
		const style = getComputedStyle(f);
		if (style.visibility === 'hidden' || style.display === 'none') continue;
		const src = f.src || f.getAttribute('data-src') || '';
		if (!src || src.startsWith('about:') || src.startsWith('javascript:')) continue;
		const area = r.width * r.height;
		if (area > bestArea) { best = src; bestArea = area; }
	}
	return best;
})()`

// NavigateIframe polls for the largest iframe and navigates into it,
// repeating through nested iframes until no more are found. It returns the
// depth reached.
func NavigateIframe(ctx context.Context, timeout time.Duration, maxDepth int) (int, error) {
	iframeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for depth := range maxDepth {
		var iframeSrc string

		err := chromedp.Run(iframeCtx,
			chromedp.Poll(iframeSrcJS, &iframeSrc, chromedp.WithPollingTimeout(0)),
			chromedp.ActionFunc(func(ctx context.Context) error {
				slog.DebugContext(ctx, "navigating to iframe", "src", iframeSrc, "depth", depth+1)
				return chromedp.Navigate(iframeSrc).Do(ctx)
			}),
			chromedp.WaitReady("body"),
		)

		if err != nil {
			if depth == 0 {
				return 0, err
			}
			// Leaf reached.
			return depth, nil
		}
	}

	return maxDepth, nil
}
