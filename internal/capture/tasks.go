package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/ibeckermayer/snapbot/internal/browser"
)

// Page says where a task works: URL is visited first unless empty, then Ready
// (if set) must appear.
type Page struct {
	URL   string
	Ready string
}

func (p Page) open(ctx context.Context, env *Env) error {
	if p.URL != "" {
		if err := env.Driver.Navigate(ctx, p.URL, browser.WaitSettled); err != nil {
			return fmt.Errorf("failed to load %s: %w", p.URL, err)
		}
	}
	if p.Ready != "" {
		if err := browser.WaitWithRetry(ctx, env.Driver, p.Ready, env.Settings.ReadyTimeout, 3, env.Settings.Pause); err != nil {
			return err
		}
	}
	return nil
}

func target(p Page) string {
	if p.URL != "" {
		return p.URL
	}
	return p.Ready
}

func shoot(ctx context.Context, env *Env, purpose string, fullPage bool) (string, error) {
	path, err := env.Path(purpose)
	if err != nil {
		return "", err
	}
	if fullPage {
		if err := env.Driver.Evaluate(ctx, browser.ScriptScrollTop, nil); err != nil {
			return "", err
		}
	}
	if err := env.Driver.Screenshot(ctx, path, fullPage); err != nil {
		return "", fmt.Errorf("failed to save screenshot %s: %w", path, err)
	}
	env.logf("Screenshot saved: %s", path)
	return path, nil
}

// PageShot opens page and captures it as <account>_<purpose>.png.
func PageShot(purpose string, page Page, fullPage bool) Task {
	return Task{
		Name:   purpose,
		Target: target(page),
		Run: func(ctx context.Context, env *Env) ([]string, error) {
			if err := page.open(ctx, env); err != nil {
				return nil, err
			}
			path, err := shoot(ctx, env, purpose, fullPage)
			if err != nil {
				return nil, err
			}
			return []string{path}, nil
		},
	}
}

// ElementShot opens page and captures only the element matching selector.
func ElementShot(purpose string, page Page, selector string) Task {
	return Task{
		Name:   purpose,
		Target: target(page),
		Run: func(ctx context.Context, env *Env) ([]string, error) {
			if err := page.open(ctx, env); err != nil {
				return nil, err
			}
			if err := env.Driver.Evaluate(ctx, browser.ScriptScrollTop, nil); err != nil {
				return nil, err
			}
			path, err := env.Path(purpose)
			if err != nil {
				return nil, err
			}
			if err := env.Driver.ScreenshotElement(ctx, selector, path); err != nil {
				return nil, fmt.Errorf("failed to capture %s: %w", selector, err)
			}
			env.logf("Screenshot saved: %s", path)
			return []string{path}, nil
		},
	}
}

// ScrollShot opens page, scrolls until the content stops growing and then
// captures the full page.
func ScrollShot(purpose string, page Page) Task {
	return Task{
		Name:   purpose,
		Target: target(page),
		Run: func(ctx context.Context, env *Env) ([]string, error) {
			if err := page.open(ctx, env); err != nil {
				return nil, err
			}
			n, err := ScrollUntilStable(ctx, env.Driver, env.Settings.Pause, env.Settings.MaxScrolls)
			switch {
			case errors.Is(err, ErrScrollLimit):
				env.logf("Stopped scrolling after %d scrolls.", n)
			case err != nil:
				return nil, err
			}
			path, err := shoot(ctx, env, purpose, true)
			if err != nil {
				return nil, err
			}
			return []string{path}, nil
		},
	}
}

// PagedShots captures the page one viewport at a time as
// <account>_<purpose>_part_<n>.png, stopping when a scroll no longer changes
// the page extent. hide, if set, is removed from the page first.
func PagedShots(purpose string, page Page, hide string) Task {
	return Task{
		Name:   purpose,
		Target: target(page),
		Run: func(ctx context.Context, env *Env) ([]string, error) {
			if err := page.open(ctx, env); err != nil {
				return nil, err
			}
			if hide != "" {
				if err := env.Driver.Evaluate(ctx, browser.HideScript(hide), nil); err != nil {
					return nil, err
				}
			}

			var files []string
			for n := 1; ; n++ {
				prev, err := Extent(ctx, env.Driver)
				if err != nil {
					return files, err
				}

				path, err := env.Layout.Part(env.Site, env.Account, purpose, n)
				if err != nil {
					return files, err
				}
				if err := env.Driver.Screenshot(ctx, path, false); err != nil {
					return files, fmt.Errorf("failed to save screenshot %s: %w", path, err)
				}
				env.logf("Screenshot saved: %s", path)
				files = append(files, path)

				if limit := env.Settings.MaxScrolls; limit > 0 && n >= limit {
					env.logf("Stopped after %d parts.", n)
					return files, nil
				}

				if err := env.Driver.Evaluate(ctx, browser.ScriptScrollBy, nil); err != nil {
					return files, err
				}
				if err := browser.Sleep(ctx, env.Settings.Pause); err != nil {
					return files, err
				}
				cur, err := Extent(ctx, env.Driver)
				if err != nil {
					return files, err
				}
				if cur == prev {
					return files, nil
				}
			}
		},
	}
}

// List describes a list whose first items are opened one by one.
type List struct {
	Page Page
	Item string // selector matching every list item
	Back string // clicked to return to the list; empty re-navigates to Page
}

// ItemShots captures the list itself as <purpose>_list, then opens up to
// Settings.MaxItems items and captures each as <purpose>_<n>. A failing item
// is logged and skipped.
func ItemShots(purpose string, list List, fullPage bool) Task {
	return Task{
		Name:   purpose + "s",
		Target: target(list.Page),
		Run: func(ctx context.Context, env *Env) ([]string, error) {
			if err := list.Page.open(ctx, env); err != nil {
				return nil, err
			}
			listPath, err := shoot(ctx, env, purpose+"_list", fullPage)
			if err != nil {
				return nil, err
			}
			files := []string{listPath}

			if err := env.Driver.WaitForElement(ctx, list.Item, env.Settings.ReadyTimeout); err != nil {
				env.logf("No %ss found.", purpose)
				return files, nil
			}

			var count int
			if err := env.Driver.Evaluate(ctx, browser.CountScript(list.Item), &count); err != nil {
				return files, err
			}
			if limit := env.Settings.MaxItems; limit > 0 && count > limit {
				count = limit
			}

			for i := 0; i < count; i++ {
				if ctx.Err() != nil {
					return files, ctx.Err()
				}
				env.logf("Opening %s %d...", purpose, i+1)
				path, err := openItem(ctx, env, list, purpose, i, fullPage)
				if path != "" {
					files = append(files, path)
				}
				if err != nil {
					env.logf("Error processing %s %d: %v", purpose, i+1, err)
				}
			}
			return files, nil
		},
	}
}

func openItem(ctx context.Context, env *Env, list List, purpose string, i int, fullPage bool) (string, error) {
	var clicked bool
	if err := env.Driver.Evaluate(ctx, browser.ClickNthScript(list.Item, i), &clicked); err != nil {
		return "", err
	}
	if !clicked {
		return "", fmt.Errorf("%w: %s[%d]", browser.ErrElementNotFound, list.Item, i)
	}
	if err := browser.Sleep(ctx, env.Settings.Pause); err != nil {
		return "", err
	}

	path, err := shoot(ctx, env, fmt.Sprintf("%s_%d", purpose, i+1), fullPage)
	if err != nil {
		return "", err
	}

	if list.Back != "" {
		err = env.Driver.Click(ctx, list.Back)
	} else {
		err = env.Driver.Navigate(ctx, list.Page.URL, browser.WaitSettled)
	}
	if err != nil {
		return path, fmt.Errorf("failed to return to list: %w", err)
	}
	if err := env.Driver.WaitForElement(ctx, list.Item, env.Settings.ReadyTimeout); err != nil {
		return path, err
	}
	return path, nil
}

// Prompt is a dialog that may appear: when Detect is present, Dismiss is
// clicked. An empty Dismiss clicks Detect itself.
type Prompt struct {
	Detect  string
	Dismiss string
}

// DismissPrompts opens page (if it has a URL) and dismisses whichever prompts
// show up within Settings.PromptTimeout. Prompts that never appear are not an error.
func DismissPrompts(name string, page Page, prompts []Prompt) Task {
	return Task{
		Name:   name,
		Target: target(page),
		Run: func(ctx context.Context, env *Env) ([]string, error) {
			if err := page.open(ctx, env); err != nil {
				return nil, err
			}
			env.logf("Handling notification prompts...")
			for _, p := range prompts {
				dismiss := p.Dismiss
				if dismiss == "" {
					dismiss = p.Detect
				}
				if err := env.Driver.WaitForElement(ctx, p.Detect, env.Settings.PromptTimeout); err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					continue
				}
				if err := env.Driver.Click(ctx, dismiss); err != nil {
					env.logf("Failed to dismiss prompt %s: %v", p.Detect, err)
					continue
				}
				env.logf("Dismissed notification prompt using selector: %s", dismiss)
				if err := browser.Sleep(ctx, env.Settings.Pause/2); err != nil {
					return nil, err
				}
			}
			env.logf("Finished handling notification prompts.")
			return nil, nil
		},
	}
}
