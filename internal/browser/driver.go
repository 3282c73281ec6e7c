package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WaitPolicy controls how long Navigate waits before returning.
type WaitPolicy int

const (
	// WaitLoad returns once the load event has fired.
	WaitLoad WaitPolicy = iota
	// WaitSettled additionally waits the session's settle delay so late
	// XHR-driven content has a chance to render.
	WaitSettled
)

// Keys accepted by SendKey.
const (
	KeyEnter = "Enter"
)

// Page scripts shared by the capture tasks. They are plain expressions so
// they can be evaluated by any Driver.
const (
	ScriptScrollHeight = `document.body.scrollHeight`
	ScriptScrollBy     = `window.scrollBy(0, window.innerHeight)`
	ScriptScrollBottom = `window.scrollTo(0, document.body.scrollHeight)`
	ScriptScrollTop    = `window.scrollTo(0, 0)`
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("browser session closed")

// ErrElementNotFound is returned when a selector does not match within the
// allotted time.
var ErrElementNotFound = errors.New("element not found")

// Driver is the page navigation and interaction capability a bot owns for the
// duration of a run. Implementations are not safe for concurrent use; a
// session executes operations strictly in submission order.
type Driver interface {
	Navigate(ctx context.Context, url string, wait WaitPolicy) error
	Type(ctx context.Context, selector, text string, perCharDelay time.Duration) error
	SendKey(ctx context.Context, selector, key string) error
	Click(ctx context.Context, selector string) error
	WaitForElement(ctx context.Context, selector string, timeout time.Duration) error
	Exists(ctx context.Context, selector string) (bool, error)
	Screenshot(ctx context.Context, path string, fullPage bool) error
	ScreenshotElement(ctx context.Context, selector, path string) error
	Evaluate(ctx context.Context, script string, res any) error
	CurrentURL(ctx context.Context) (string, error)
	Close() error
}

// Launcher acquires a new browser session.
type Launcher interface {
	Launch(ctx context.Context, opts Options) (Driver, error)
}

// LauncherFunc adapts a function to a Launcher.
type LauncherFunc func(ctx context.Context, opts Options) (Driver, error)

// Launch implements Launcher.
func (f LauncherFunc) Launch(ctx context.Context, opts Options) (Driver, error) {
	return f(ctx, opts)
}

// WaitForAny polls until one of the selectors is present and returns it.
// Selectors are checked in order on every poll, so earlier selectors win ties.
func WaitForAny(ctx context.Context, d Driver, timeout, interval time.Duration, selectors ...string) (string, error) {
	if len(selectors) == 0 {
		return "", errors.New("no selectors to wait for")
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, sel := range selectors {
			ok, err := d.Exists(ctx, sel)
			if err != nil && ctx.Err() == nil {
				return "", err
			}
			if ok {
				return sel, nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("%w: none of %q appeared within %v", ErrElementNotFound, selectors, timeout)
			}
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitWithRetry waits for selector up to attempts times, pausing between
// attempts. The last error is returned when every attempt fails.
func WaitWithRetry(ctx context.Context, d Driver, selector string, timeout time.Duration, attempts int, pause time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}

	tries := 0
	op := func() error {
		tries++
		err := d.WaitForElement(ctx, selector, timeout)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(pause), uint64(attempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("waiting for %s after %d attempts: %w", selector, tries, err)
	}
	return nil
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CountScript returns an expression counting the elements matching selector.
func CountScript(selector string) string {
	return fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector))
}

// ClickNthScript returns an expression clicking the n-th (zero based) match of
// selector. It evaluates to false when there is no such element.
func ClickNthScript(selector string, n int) string {
	return fmt.Sprintf(`(() => { const el = document.querySelectorAll(%s)[%d]; if (!el) return false; el.click(); return true; })()`, jsString(selector), n)
}

// HideScript returns an expression hiding the first match of selector.
func HideScript(selector string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (el) el.style.display = "none"; return true; })()`, jsString(selector))
}

// ExistsScript returns an expression reporting whether selector matches.
func ExistsScript(selector string) string {
	return fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector))
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
