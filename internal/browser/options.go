// Package browser provides the session driver used by every bot, backed by chromedp.
package browser

import (
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultUserAgent is a realistic Chrome user agent
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Options configures a launched browser session.
type Options struct {
	Headless     bool
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	ExecPath     string
	NoSandbox    bool

	// SettleDelay is the extra wait applied by WaitSettled navigations.
	SettleDelay time.Duration

	// BlockNotifications lists origins whose notification permission is denied
	// before the first navigation.
	BlockNotifications []string
}

// DefaultOptions returns options matching a desktop Chrome at 1920x1080.
func DefaultOptions() Options {
	return Options{
		Headless:     true,
		UserAgent:    DefaultUserAgent,
		WindowWidth:  1920,
		WindowHeight: 1080,
		NoSandbox:    true,
		SettleDelay:  1500 * time.Millisecond,
	}
}

// AllocatorOptions converts Options into chromedp allocator options.
func (o Options) AllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.Headless),

		// Keep navigator.webdriver unset so login forms render normally
		chromedp.Flag("disable-blink-features", "AutomationControlled"),

		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	ua := o.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	opts = append(opts, chromedp.UserAgent(ua))

	if o.WindowWidth > 0 && o.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(o.WindowWidth, o.WindowHeight))
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	if o.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if o.Headless {
		opts = append(opts, chromedp.Flag("disable-gpu", true))
	}

	return opts
}
