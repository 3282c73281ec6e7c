package browser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/snapbot/internal/browser"
	"github.com/ibeckermayer/snapbot/internal/browser/browsertest"
)

func TestWaitForAnyReturnsFirstPresent(t *testing.T) {
	page := browsertest.New("https://x.com/i/flow/login", `input[autocomplete="on"]`)

	sel, err := browser.WaitForAny(context.Background(), page, time.Second, time.Millisecond,
		`input[type="password"]`, `input[autocomplete="on"]`)
	require.NoError(t, err)
	assert.Equal(t, `input[autocomplete="on"]`, sel)
}

func TestWaitForAnyPrefersEarlierSelector(t *testing.T) {
	page := browsertest.New("about:blank", "a", "b")

	sel, err := browser.WaitForAny(context.Background(), page, time.Second, time.Millisecond, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, "b", sel)
}

func TestWaitForAnyTimesOut(t *testing.T) {
	page := browsertest.New("about:blank")

	_, err := browser.WaitForAny(context.Background(), page, 20*time.Millisecond, 5*time.Millisecond, "a", "b")
	require.Error(t, err)
	assert.True(t, errors.Is(err, browser.ErrElementNotFound))
}

func TestWaitForAnySeesLateElement(t *testing.T) {
	page := browsertest.New("about:blank")
	go func() {
		time.Sleep(10 * time.Millisecond)
		page.Show("late")
	}()

	sel, err := browser.WaitForAny(context.Background(), page, time.Second, 2*time.Millisecond, "late")
	require.NoError(t, err)
	assert.Equal(t, "late", sel)
}

func TestWaitWithRetry(t *testing.T) {
	page := browsertest.New("about:blank")
	ctx := context.Background()

	err := browser.WaitWithRetry(ctx, page, "missing", time.Millisecond, 3, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.True(t, errors.Is(err, browser.ErrElementNotFound))
	assert.Len(t, page.Waits, 3)

	page.Show("present")
	page.Waits = nil
	assert.NoError(t, browser.WaitWithRetry(ctx, page, "present", time.Millisecond, 3, 0))
	assert.Len(t, page.Waits, 1)
}

func TestWaitWithRetryPausesBetweenAttempts(t *testing.T) {
	page := browsertest.New("about:blank")

	start := time.Now()
	err := browser.WaitWithRetry(context.Background(), page, "missing", time.Millisecond, 3, 20*time.Millisecond)
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Len(t, page.Waits, 3)
}

func TestWaitWithRetryStopsOnCancel(t *testing.T) {
	page := browsertest.New("about:blank")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := browser.WaitWithRetry(ctx, page, "missing", time.Millisecond, 1000, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, len(page.Waits), 1000)
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, browser.Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, browser.Sleep(context.Background(), 0))
}

func TestScriptsQuoteSelectors(t *testing.T) {
	sel := `div[aria-label="Chats"]`
	assert.Equal(t, `document.querySelectorAll("div[aria-label=\"Chats\"]").length`, browser.CountScript(sel))
	assert.Contains(t, browser.ClickNthScript(sel, 2), `[2]`)
	assert.Contains(t, browser.HideScript("header"), `"header"`)
	assert.Equal(t, `document.querySelector("#email") !== null`, browser.ExistsScript("#email"))
}

func TestAllocatorOptions(t *testing.T) {
	opts := browser.DefaultOptions()
	assert.True(t, opts.Headless)
	assert.Equal(t, 1920, opts.WindowWidth)

	base := len(chromedp.DefaultExecAllocatorOptions)
	headless := opts.AllocatorOptions()
	opts.Headless = false
	headful := opts.AllocatorOptions()
	assert.Greater(t, len(headless), base)
	assert.Equal(t, len(headless)-1, len(headful), "headless adds disable-gpu")
}
