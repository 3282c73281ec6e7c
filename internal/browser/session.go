package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Session is a chromedp-backed Driver owning one browser process.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	settleDelay time.Duration

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// ChromeLauncher launches local Chrome/Chromium sessions through chromedp.
type ChromeLauncher struct{}

// Launch implements Launcher. The browser lives until Close is called or ctx
// is cancelled, whichever comes first.
func (ChromeLauncher) Launch(ctx context.Context, opts Options) (Driver, error) {
	return NewSession(ctx, opts)
}

// NewSession starts a browser and opens a blank tab.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts.AllocatorOptions()...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		settleDelay: opts.SettleDelay,
		closed:      make(chan struct{}),
	}

	// The first Run starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	for _, origin := range opts.BlockNotifications {
		err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			return cdpbrowser.SetPermission(
				&cdpbrowser.PermissionDescriptor{Name: "notifications"},
				cdpbrowser.PermissionSettingDenied,
			).WithOrigin(origin).Do(ctx)
		}))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to block notifications for %s: %w", origin, err)
		}
	}

	return s, nil
}

// op derives a context for a single operation: it ends when the session is
// closed or when the caller's ctx is done.
func (s *Session) op(ctx context.Context) (context.Context, context.CancelFunc, error) {
	select {
	case <-s.closed:
		return nil, nil, ErrSessionClosed
	default:
	}

	opCtx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}, nil
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel, err := s.op(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// Navigate implements Driver.
func (s *Session) Navigate(ctx context.Context, url string, wait WaitPolicy) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if wait == WaitSettled {
		return Sleep(ctx, s.settleDelay)
	}
	return nil
}

// Type implements Driver. A positive perCharDelay types one key at a time.
func (s *Session) Type(ctx context.Context, selector, text string, perCharDelay time.Duration) error {
	if err := s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery), chromedp.Focus(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to focus %s: %w", selector, err)
	}

	if perCharDelay <= 0 {
		if err := s.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery)); err != nil {
			return fmt.Errorf("failed to type into %s: %w", selector, err)
		}
		return nil
	}

	for _, r := range text {
		if err := s.run(ctx, chromedp.SendKeys(selector, string(r), chromedp.ByQuery)); err != nil {
			return fmt.Errorf("failed to type into %s: %w", selector, err)
		}
		if err := Sleep(ctx, perCharDelay); err != nil {
			return err
		}
	}
	return nil
}

// SendKey implements Driver.
func (s *Session) SendKey(ctx context.Context, selector, key string) error {
	k := key
	if key == KeyEnter {
		k = kb.Enter
	}
	if err := s.run(ctx, chromedp.SendKeys(selector, k, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", key, selector, err)
	}
	return nil
}

// Click implements Driver.
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

// WaitForElement implements Driver.
func (s *Session) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %v", ErrElementNotFound, selector, timeout)
	}
	return err
}

// Exists implements Driver.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(ExistsScript(selector), &ok)); err != nil {
		return false, err
	}
	return ok, nil
}

// Screenshot implements Driver. Full-page captures are lossless PNG.
func (s *Session) Screenshot(ctx context.Context, path string, fullPage bool) error {
	var buf []byte
	var action chromedp.Action = chromedp.CaptureScreenshot(&buf)
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := s.run(ctx, action); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return writeImage(path, buf)
}

// ScreenshotElement implements Driver.
func (s *Session) ScreenshotElement(ctx context.Context, selector, path string) error {
	var buf []byte
	if err := s.run(ctx, chromedp.Screenshot(selector, &buf, chromedp.NodeVisible, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to capture %s: %w", selector, err)
	}
	return writeImage(path, buf)
}

// Evaluate implements Driver. A nil res discards the result.
func (s *Session) Evaluate(ctx context.Context, script string, res any) error {
	return s.run(ctx, chromedp.Evaluate(script, res))
}

// CurrentURL implements Driver.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Close shuts the browser down. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancel()
		s.allocCancel()
		if errors.Is(s.closeErr, context.Canceled) {
			s.closeErr = nil
		}
	})
	return s.closeErr
}

func writeImage(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
