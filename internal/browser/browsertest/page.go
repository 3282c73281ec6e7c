// Package browsertest provides a scripted in-memory browser.Driver.
package browsertest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ibeckermayer/snapbot/internal/browser"
)

// Hook mutates the page in response to an interaction.
type Hook func(p *Page)

// Page is a fake browser.Driver. Elements are plain selector strings that are
// either present or absent; interactions are recorded and may trigger hooks
// that change the URL or the set of present elements.
type Page struct {
	mu sync.Mutex

	url      string
	elements map[string]bool
	counts   map[string]int

	heights   []int
	heightIdx int

	// Interaction hooks, keyed by selector (or URL for OnNavigate).
	OnKey      map[string]Hook
	OnClick    map[string]Hook
	OnNavigate map[string]Hook

	// Fail makes an operation return an error. Keys are "click:<selector>",
	// "shot:<path>", "navigate:<url>" or "wait:<selector>".
	Fail map[string]error

	// EvalHook, when set, sees every script before the default handling and
	// reports whether it handled it.
	EvalHook func(script string, res any) (bool, error)

	// WriteFiles makes screenshots create (empty) files on disk.
	WriteFiles bool

	Navigations  []string
	Waits        []Wait
	Typed        map[string]string
	Keys         []string
	Clicks       []string
	Shots        []string
	ElementShots []string
	Evals        []string
	Scrolls      int
	Closed       int
}

// Wait is one recorded WaitForElement call.
type Wait struct {
	Selector string
	Timeout  time.Duration
}

// New creates a page at url with the given elements present.
func New(url string, elements ...string) *Page {
	p := &Page{
		url:        url,
		elements:   make(map[string]bool),
		counts:     make(map[string]int),
		OnKey:      make(map[string]Hook),
		OnClick:    make(map[string]Hook),
		OnNavigate: make(map[string]Hook),
		Fail:       make(map[string]error),
		Typed:      make(map[string]string),
	}
	for _, e := range elements {
		p.elements[e] = true
	}
	return p
}

// Launcher returns a browser.Launcher handing out this page.
func (p *Page) Launcher() browser.Launcher {
	return browser.LauncherFunc(func(context.Context, browser.Options) (browser.Driver, error) {
		return p, nil
	})
}

// SetURL changes the current address.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// Show makes selectors present.
func (p *Page) Show(selectors ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		p.elements[s] = true
	}
}

// Hide makes selectors absent.
func (p *Page) Hide(selectors ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		delete(p.elements, s)
	}
}

// SetCount sets the result of browser.CountScript(selector).
func (p *Page) SetCount(selector string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[selector] = n
}

// SetHeights scripts the sequence of extent measurements. The last value
// repeats once the sequence is exhausted.
func (p *Page) SetHeights(heights ...int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heights = heights
	p.heightIdx = 0
}

// TypedInto returns everything typed into selector.
func (p *Page) TypedInto(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Typed[selector]
}

// ShotPaths returns every screenshot path, page and element, in order.
func (p *Page) ShotPaths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.Shots)+len(p.ElementShots))
	out = append(out, p.Shots...)
	return append(out, p.ElementShots...)
}

func (p *Page) failure(key string) error {
	if err, ok := p.Fail[key]; ok {
		return err
	}
	return nil
}

func (p *Page) present(selector string) bool {
	return p.elements[selector]
}

// Navigate implements browser.Driver.
func (p *Page) Navigate(ctx context.Context, url string, _ browser.WaitPolicy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if err := p.failure("navigate:" + url); err != nil {
		p.mu.Unlock()
		return err
	}
	p.Navigations = append(p.Navigations, url)
	p.url = url
	hook := p.OnNavigate[url]
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

// Type implements browser.Driver.
func (p *Page) Type(ctx context.Context, selector, text string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.present(selector) {
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	p.Typed[selector] += text
	return nil
}

// SendKey implements browser.Driver.
func (p *Page) SendKey(ctx context.Context, selector, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if !p.present(selector) {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	p.Keys = append(p.Keys, selector+":"+key)
	hook := p.OnKey[selector]
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

// Click implements browser.Driver.
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if err := p.failure("click:" + selector); err != nil {
		p.mu.Unlock()
		return err
	}
	if !p.present(selector) {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	p.Clicks = append(p.Clicks, selector)
	hook := p.OnClick[selector]
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

// WaitForElement implements browser.Driver. It never blocks.
func (p *Page) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Waits = append(p.Waits, Wait{Selector: selector, Timeout: timeout})
	if err := p.failure("wait:" + selector); err != nil {
		return err
	}
	if !p.present(selector) {
		return fmt.Errorf("%w: %s after %v", browser.ErrElementNotFound, selector, timeout)
	}
	return nil
}

// Exists implements browser.Driver.
func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.present(selector), nil
}

// Screenshot implements browser.Driver.
func (p *Page) Screenshot(ctx context.Context, path string, _ bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("shot:" + path); err != nil {
		return err
	}
	p.Shots = append(p.Shots, path)
	return p.write(path)
}

// ScreenshotElement implements browser.Driver.
func (p *Page) ScreenshotElement(ctx context.Context, selector, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("shot:" + path); err != nil {
		return err
	}
	if !p.present(selector) {
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	p.ElementShots = append(p.ElementShots, path)
	return p.write(path)
}

func (p *Page) write(path string) error {
	if !p.WriteFiles {
		return nil
	}
	return os.WriteFile(path, nil, 0644)
}

// Evaluate implements browser.Driver. Extent measurements, scrolling, element
// counts and clicks on counted elements are understood; any other script is
// recorded and ignored.
func (p *Page) Evaluate(ctx context.Context, script string, res any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.EvalHook != nil {
		if handled, err := p.EvalHook(script, res); handled {
			p.mu.Lock()
			p.Evals = append(p.Evals, script)
			p.mu.Unlock()
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Evals = append(p.Evals, script)

	switch script {
	case browser.ScriptScrollHeight:
		return assign(res, p.nextHeight())
	case browser.ScriptScrollBy, browser.ScriptScrollBottom:
		p.Scrolls++
		return nil
	}
	for sel, n := range p.counts {
		if script == browser.CountScript(sel) {
			return assign(res, n)
		}
		for i := 0; i < n; i++ {
			if script == browser.ClickNthScript(sel, i) {
				p.Clicks = append(p.Clicks, fmt.Sprintf("%s#%d", sel, i))
				return assignBool(res, true)
			}
		}
	}
	return nil
}

func assignBool(res any, v bool) error {
	if r, ok := res.(*bool); ok {
		*r = v
	}
	return nil
}

func (p *Page) nextHeight() int {
	if len(p.heights) == 0 {
		return 0
	}
	i := p.heightIdx
	if i >= len(p.heights) {
		i = len(p.heights) - 1
	} else {
		p.heightIdx++
	}
	return p.heights[i]
}

func assign(res any, v int) error {
	switch r := res.(type) {
	case nil:
		return nil
	case *int:
		*r = v
	case *int64:
		*r = int64(v)
	case *float64:
		*r = float64(v)
	default:
		return fmt.Errorf("browsertest: cannot assign int to %T", res)
	}
	return nil
}

// CurrentURL implements browser.Driver.
func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

// Close implements browser.Driver.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed++
	return nil
}
