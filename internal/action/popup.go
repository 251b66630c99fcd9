package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// ClosePopups closes every page opened by the current page and returns the
// URLs it closed.
func ClosePopups(ctx context.Context) ([]string, error) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil || c.Browser == nil {
		return nil, fmt.Errorf("close popups: %w", chromedp.ErrInvalidContext)
	}
	self := c.Target.TargetID

	infos, err := chromedp.Targets(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing targets: %w", err)
	}

	browserCtx := cdp.WithExecutor(ctx, c.Browser)

	var closed []string
	var errs []error
	for _, info := range popupsOf(infos, self) {
		if err := target.CloseTarget(info.TargetID).Do(browserCtx); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", info.URL, err))
			continue
		}
		slog.DebugContext(ctx, "popup closed", "url", info.URL)
		closed = append(closed, info.URL)
	}

	return closed, errors.Join(errs...)
}

// popupsOf returns the page targets opened by opener.
func popupsOf(infos []*target.Info, opener target.ID) []*target.Info {
	var out []*target.Info
	for _, info := range infos {
		if info.Type != "page" || info.TargetID == opener || info.OpenerID != opener {
			continue
		}
		out = append(out, info)
	}
	return out
}
