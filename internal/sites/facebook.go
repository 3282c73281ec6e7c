package sites

import (
	"context"
	"time"

	"github.com/ibeckermayer/snapbot/internal/auth"
	"github.com/ibeckermayer/snapbot/internal/browser"
	"github.com/ibeckermayer/snapbot/internal/capture"
	"github.com/ibeckermayer/snapbot/internal/types"
)

// Facebook selectors
const (
	fbLoginURL    = "https://www.facebook.com/login"
	fbProfileURL  = "https://www.facebook.com/me"
	fbFriendsURL  = "https://www.facebook.com/me/friends"
	fbMessagesURL = "https://www.facebook.com/messages/t/"

	fbEmail       = `#email`
	fbPassword    = `#pass`
	fbLoginButton = `button[name="login"]`

	fbApprovalsCode = `input[name="approvals_code"]`
	fbSubmitCode    = `button[type="submit"]`
	fbDontSave      = `button[value="dont_save"]`

	fbAccountMenu = `[aria-label="Your profile"]`
	fbAccountNav  = `[aria-label="Account controls and settings"]`

	fbConversation = `div[aria-label="Chats"] div[role="grid"] > div > div > div > div > div:nth-child(2)`
)

var fbNotificationPrompts = []capture.Prompt{
	{Detect: `button[data-testid="negative-action-button"]`}, // "Not Now"
	{Detect: `button[action="cancel"]`},
	{Detect: `button[value="decline"]`},
	{Detect: `[aria-label="Close"]`},
}

func init() {
	register(Site{
		Name:          "facebook",
		Title:         "Facebook",
		Notifications: []string{"https://www.facebook.com"},
		Login: auth.Profile{
			Site:     "facebook",
			LoginURL: fbLoginURL,
			Submit:   fbSubmit,
			Authenticated: auth.AllOf(
				auth.URLContains("facebook.com"),
				auth.URLExcludes("checkpoint", "/login"),
				auth.AnyElement(fbAccountMenu, fbAccountNav),
			),
			Challenges: []auth.Challenge{{
				Kind:   types.ChallengeTwoFactor,
				Prompt: "Please enter the Facebook 2FA code:",
				Detect: auth.AllOf(auth.URLContains("checkpoint"), auth.ElementPresent(fbApprovalsCode)),
				Input:  fbApprovalsCode,
				Submit: fbSubmitCode,
				After:  fbDontSaveBrowser,
			}},
		},
		Tasks: func(string) []capture.Task {
			return []capture.Task{
				capture.DismissPrompts("notification_prompts", capture.Page{}, fbNotificationPrompts),
				capture.PageShot("full_profile", capture.Page{URL: fbProfileURL}, true),
				capture.ScrollShot("friends_page", capture.Page{URL: fbFriendsURL}),
				capture.ItemShots("conversation", capture.List{
					Page: capture.Page{URL: fbMessagesURL},
					Item: fbConversation,
				}, true),
			}
		},
	})
}

func fbSubmit(ctx context.Context, f *auth.Flow) error {
	if err := f.Driver().WaitForElement(ctx, fbEmail, f.Settings().SettleTimeout); err != nil {
		return err
	}
	if err := f.TypeIdentifier(ctx, fbEmail); err != nil {
		return err
	}
	if err := f.TypeSecret(ctx, fbPassword); err != nil {
		return err
	}
	return f.Driver().Click(ctx, fbLoginButton)
}

// fbDontSaveBrowser declines the "Save browser" prompt shown after a code is
// accepted. The prompt is optional.
func fbDontSaveBrowser(ctx context.Context, f *auth.Flow) error {
	if err := f.Driver().WaitForElement(ctx, fbDontSave, 5*time.Second); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.Logf("No 'Save Browser' prompt found. Continuing...")
		return nil
	}
	if err := f.Driver().Click(ctx, fbDontSave); err != nil {
		return err
	}
	return browser.Sleep(ctx, f.Settings().PollInterval)
}
