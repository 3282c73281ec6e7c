package sites

import (
	"context"
	"fmt"

	"github.com/ibeckermayer/snapbot/internal/auth"
	"github.com/ibeckermayer/snapbot/internal/capture"
	"github.com/ibeckermayer/snapbot/internal/types"
)

// Instagram selectors
const (
	igLoginURL = "https://www.instagram.com/accounts/login/"
	igInboxURL = "https://www.instagram.com/direct/inbox/"

	igUsername    = `input[name="username"]`
	igPassword    = `input[name="password"]`
	igLoginButton = `button[type="submit"]`

	igVerificationCode = `input[name="verificationCode"]`
	igConfirmCode      = `button[type="button"]`

	igHomeIcon  = `svg[aria-label="Home"]`
	igInboxLink = `a[href="/direct/inbox/"]`

	igHeader            = `header`
	igNotificationPopup = `._a9-v`
	igTurnOnButton      = `button._a9--._a9_1`
	igConversation      = `div[role="listitem"]`
)

func init() {
	register(Site{
		Name:          "instagram",
		Title:         "Instagram",
		Notifications: []string{"https://www.instagram.com"},
		Login: auth.Profile{
			Site:     "instagram",
			LoginURL: igLoginURL,
			Submit:   igSubmit,
			Authenticated: auth.AllOf(
				auth.URLContains("instagram.com"),
				auth.URLExcludes("/accounts/login", "two_factor", "/challenge"),
				auth.AnyElement(igHomeIcon, igInboxLink),
			),
			Challenges: []auth.Challenge{{
				Kind:   types.ChallengeTwoFactor,
				Prompt: "Please enter the Instagram 2FA code:",
				Detect: auth.URLContains("two_factor"),
				Input:  igVerificationCode,
				Submit: igConfirmCode,
			}},
		},
		Tasks: func(account string) []capture.Task {
			profile := capture.Page{
				URL:   fmt.Sprintf("https://www.instagram.com/%s/", account),
				Ready: igHeader,
			}
			return []capture.Task{
				capture.PageShot("full_profile", profile, true),
				capture.ElementShot("profile_header", profile, igHeader),
				capture.PagedShots("posts", profile, igHeader),
				capture.DismissPrompts("inbox_popup", capture.Page{URL: igInboxURL}, []capture.Prompt{
					{Detect: igNotificationPopup, Dismiss: igTurnOnButton},
				}),
				capture.ItemShots("conversation", capture.List{
					Page: capture.Page{URL: igInboxURL, Ready: igConversation},
					Item: igConversation,
					Back: igInboxLink,
				}, false),
			}
		},
	})
}

func igSubmit(ctx context.Context, f *auth.Flow) error {
	if err := f.Driver().WaitForElement(ctx, igUsername, f.Settings().SettleTimeout); err != nil {
		return err
	}
	if err := f.TypeIdentifier(ctx, igUsername); err != nil {
		return err
	}
	if err := f.TypeSecret(ctx, igPassword); err != nil {
		return err
	}
	return f.Driver().Click(ctx, igLoginButton)
}
