package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ibeckermayer/snapbot/internal/browser"
)

// ErrScrollLimit is returned when the page keeps growing past maxScrolls.
var ErrScrollLimit = errors.New("scroll limit reached before page extent settled")

// Extent reports the current document height.
func Extent(ctx context.Context, d browser.Driver) (int, error) {
	var h int
	if err := d.Evaluate(ctx, browser.ScriptScrollHeight, &h); err != nil {
		return 0, fmt.Errorf("failed to measure page: %w", err)
	}
	return h, nil
}

// ScrollUntilStable scrolls to the bottom until two consecutive extent
// measurements are equal, and returns the number of scrolls performed.
// A non-positive maxScrolls means no cap.
func ScrollUntilStable(ctx context.Context, d browser.Driver, pause time.Duration, maxScrolls int) (int, error) {
	prev, err := Extent(ctx, d)
	if err != nil {
		return 0, err
	}

	scrolls := 0
	for maxScrolls <= 0 || scrolls < maxScrolls {
		if err := d.Evaluate(ctx, browser.ScriptScrollBottom, nil); err != nil {
			return scrolls, fmt.Errorf("failed to scroll: %w", err)
		}
		scrolls++

		if err := browser.Sleep(ctx, pause); err != nil {
			return scrolls, err
		}

		cur, err := Extent(ctx, d)
		if err != nil {
			return scrolls, err
		}
		if cur == prev {
			return scrolls, nil
		}
		prev = cur
	}
	return scrolls, fmt.Errorf("%w (%d scrolls)", ErrScrollLimit, scrolls)
}
