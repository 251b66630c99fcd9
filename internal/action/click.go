package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/stupside/streamsniff/internal/failure"
)

// errNoSelectors is returned by ClickFirst when given nothing to try.
var errNoSelectors = errors.New("no selectors configured")

// Click clicks at the given viewport coordinates.
func Click(ctx context.Context, x, y float64) error {
	return chromedp.Run(ctx, chromedp.MouseClickXY(x, y, chromedp.ButtonLeft))
}

// ClickFirst clicks the first selector that becomes visible within timeout,
// trying them in order. It returns the selector that was clicked. When none
// match, the per-selector SelectorNotFound errors are joined.
func ClickFirst(ctx context.Context, selectors []string, timeout time.Duration) (string, error) {
	if len(selectors) == 0 {
		return "", errNoSelectors
	}

	var errs []error
	for _, sel := range selectors {
		if err := clickSelector(ctx, sel, timeout); err != nil {
			errs = append(errs, failure.New(failure.SelectorNotFound, "click", sel, err))
			continue
		}
		return sel, nil
	}

	return "", fmt.Errorf("nothing clicked: %w", errors.Join(errs...))
}

func clickSelector(ctx context.Context, sel string, timeout time.Duration) error {
	clickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return chromedp.Run(clickCtx,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible),
	)
}
