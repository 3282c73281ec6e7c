package auth

import (
	"context"
	"fmt"

	"github.com/ibeckermayer/snapbot/internal/browser"
)

// Flow is the view of a login in progress handed to site steps. The secret
// is only reachable through TypeSecret.
type Flow struct {
	m *Machine
}

// Driver returns the session the login runs in.
func (f *Flow) Driver() browser.Driver { return f.m.driver }

// Settings returns the login timings.
func (f *Flow) Settings() Settings { return f.m.settings }

// Logf reports progress to the operator.
func (f *Flow) Logf(format string, args ...any) { f.m.logf(format, args...) }

// Type enters text into selector at the configured typing speed.
func (f *Flow) Type(ctx context.Context, selector, text string) error {
	return f.m.driver.Type(ctx, selector, text, f.m.settings.TypeDelay)
}

// TypeIdentifier enters the account identifier into selector.
func (f *Flow) TypeIdentifier(ctx context.Context, selector string) error {
	if err := f.Type(ctx, selector, f.m.cred.Identifier); err != nil {
		return fmt.Errorf("failed to enter username: %w", err)
	}
	return nil
}

// TypeSecret enters the password into selector.
func (f *Flow) TypeSecret(ctx context.Context, selector string) error {
	if err := f.Type(ctx, selector, f.m.cred.Secret); err != nil {
		// The driver error may echo what was typed.
		return fmt.Errorf("failed to enter password into %s", selector)
	}
	return nil
}
