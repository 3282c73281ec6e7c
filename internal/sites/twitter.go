package sites

import (
	"context"
	"fmt"
	"time"

	"github.com/ibeckermayer/snapbot/internal/auth"
	"github.com/ibeckermayer/snapbot/internal/browser"
	"github.com/ibeckermayer/snapbot/internal/capture"
	"github.com/ibeckermayer/snapbot/internal/types"
)

// X.com selectors
const (
	xLoginURL = "https://x.com/i/flow/login"

	xUsername     = `input[autocomplete="username"], input[name="text"], input[type="text"]`
	xPassword     = `input[type="password"]`
	xVerification = `input[autocomplete="on"]`
	xOneTimeCode  = `input[autocomplete="one-time-code"]`

	xProfileLink   = `a[aria-label="Profile"]`
	xProfileTab    = `a[data-testid="AppTabBar_Profile_Link"]`
	xProfileRegion = `section[role="region"]`
	xPrimaryColumn = `div[data-testid="primaryColumn"]`
)

const (
	xRetryAttempts  = 3
	xInputRetryWait = 15 * time.Second
)

func init() {
	register(Site{
		Name:  "twitter",
		Title: "Twitter",
		Login: auth.Profile{
			Site:     "twitter",
			LoginURL: xLoginURL,
			Submit:   xSubmit,
			Authenticated: auth.AllOf(
				auth.URLContains("x.com/home", "twitter.com/home"),
				auth.AnyElement(xProfileLink, xProfileTab),
			),
			Challenges: []auth.Challenge{
				{
					Kind:   types.ChallengeVerification,
					Prompt: "Please enter the required verification information (email or phone):",
					Detect: auth.ElementPresent(xVerification),
					Input:  xVerification,
					After:  xEnterPassword,
				},
				{
					Kind:   types.ChallengeTwoFactor,
					Prompt: "Please enter the 2FA code:",
					Detect: auth.ElementPresent(xOneTimeCode),
					Input:  xOneTimeCode,
				},
			},
		},
		Tasks: func(account string) []capture.Task {
			base := "https://x.com/" + account
			return []capture.Task{
				capture.PageShot("full_profile", capture.Page{URL: base, Ready: xProfileRegion}, true),
				capture.PageShot("followers", capture.Page{URL: base + "/followers", Ready: xPrimaryColumn}, true),
				capture.PageShot("following", capture.Page{URL: base + "/following", Ready: xPrimaryColumn}, true),
			}
		},
	})
}

// xSubmit enters the username, then either the password or, when X asks to
// confirm the account first, leaves the verification page for the
// verification challenge to handle.
func xSubmit(ctx context.Context, f *auth.Flow) error {
	d := f.Driver()
	poll := f.Settings().PollInterval

	f.Logf("Entering username...")
	if err := browser.WaitWithRetry(ctx, d, xUsername, inputWait(f), xRetryAttempts, 2*poll); err != nil {
		return err
	}
	if err := f.TypeIdentifier(ctx, xUsername); err != nil {
		return err
	}
	if err := d.SendKey(ctx, xUsername, browser.KeyEnter); err != nil {
		return err
	}

	next, err := browser.WaitForAny(ctx, d, f.Settings().SettleTimeout, poll, xPassword, xVerification)
	if err != nil {
		return fmt.Errorf("neither password nor verification prompt appeared: %w", err)
	}
	if next == xVerification {
		f.Logf("Additional verification required...")
		return nil
	}
	return xTypePassword(ctx, f)
}

func xEnterPassword(ctx context.Context, f *auth.Flow) error {
	if err := browser.WaitWithRetry(ctx, f.Driver(), xPassword, inputWait(f), xRetryAttempts, 2*f.Settings().PollInterval); err != nil {
		return err
	}
	return xTypePassword(ctx, f)
}

func xTypePassword(ctx context.Context, f *auth.Flow) error {
	f.Logf("Entering password...")
	if err := f.TypeSecret(ctx, xPassword); err != nil {
		return err
	}
	return f.Driver().SendKey(ctx, xPassword, browser.KeyEnter)
}

func inputWait(f *auth.Flow) time.Duration {
	if s := f.Settings().SettleTimeout; s < xInputRetryWait {
		return s
	}
	return xInputRetryWait
}
