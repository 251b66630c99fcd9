package action

import (
	"context"
	"log/slog"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// BlockURLs fails every request whose URL matches one of the wildcard
// patterns (e.g. "*doubleclick.net*"). It must run before navigation.
func BlockURLs(patterns []string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if len(patterns) == 0 {
			return nil
		}

		reqPatterns := make([]*fetch.RequestPattern, len(patterns))
		for i, p := range patterns {
			reqPatterns[i] = &fetch.RequestPattern{URLPattern: p}
		}

		chromedp.ListenTarget(ctx, func(ev any) {
			e, ok := ev.(*fetch.EventRequestPaused)
			if !ok {
				return
			}
			// Commands can't be issued from the listener goroutine.
			go func() {
				if err := chromedp.Run(ctx, fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient)); err != nil {
					slog.DebugContext(ctx, "block: fail request", "url", e.Request.URL, "error", err)
					return
				}
				slog.DebugContext(ctx, "block: request blocked", "url", e.Request.URL)
			}()
		})

		return fetch.Enable().WithPatterns(reqPatterns).Do(ctx)
	})
}
