package auth

import (
	"context"
	"strings"

	"github.com/ibeckermayer/snapbot/internal/browser"
)

// Predicate inspects the current page.
type Predicate func(ctx context.Context, d browser.Driver) (bool, error)

// URLContains matches when the current address contains any of substrs.
func URLContains(substrs ...string) Predicate {
	return func(ctx context.Context, d browser.Driver) (bool, error) {
		url, err := d.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		for _, s := range substrs {
			if strings.Contains(url, s) {
				return true, nil
			}
		}
		return false, nil
	}
}

// URLExcludes matches when the current address contains none of substrs.
func URLExcludes(substrs ...string) Predicate {
	contains := URLContains(substrs...)
	return func(ctx context.Context, d browser.Driver) (bool, error) {
		ok, err := contains(ctx, d)
		return !ok && err == nil, err
	}
}

// ElementPresent matches when selector is on the page.
func ElementPresent(selector string) Predicate {
	return func(ctx context.Context, d browser.Driver) (bool, error) {
		return d.Exists(ctx, selector)
	}
}

// AnyElement matches when at least one of selectors is on the page.
func AnyElement(selectors ...string) Predicate {
	ps := make([]Predicate, len(selectors))
	for i, s := range selectors {
		ps[i] = ElementPresent(s)
	}
	return AnyOf(ps...)
}

// AllOf matches when every predicate matches. It stops at the first miss.
func AllOf(ps ...Predicate) Predicate {
	return func(ctx context.Context, d browser.Driver) (bool, error) {
		for _, p := range ps {
			ok, err := p(ctx, d)
			if err != nil || !ok {
				return false, err
			}
		}
		return len(ps) > 0, nil
	}
}

// AnyOf matches when some predicate matches. It stops at the first hit.
func AnyOf(ps ...Predicate) Predicate {
	return func(ctx context.Context, d browser.Driver) (bool, error) {
		var firstErr error
		for _, p := range ps {
			ok, err := p(ctx, d)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if ok {
				return true, nil
			}
		}
		return false, firstErr
	}
}
