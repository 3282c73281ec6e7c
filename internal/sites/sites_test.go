package sites

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/snapbot/internal/auth"
	"github.com/ibeckermayer/snapbot/internal/browser/browsertest"
	"github.com/ibeckermayer/snapbot/internal/capture"
	"github.com/ibeckermayer/snapbot/internal/logging"
	"github.com/ibeckermayer/snapbot/internal/types"
)

const goodCode = "123456"

var cred = types.Credential{Identifier: "alice", Secret: "hunter2"}

func fastSettings() auth.Settings {
	return auth.Settings{
		SettleTimeout:    50 * time.Millisecond,
		PollInterval:     time.Millisecond,
		ChallengeTimeout: time.Second,
	}
}

type recordingResolver struct {
	mu      sync.Mutex
	answer  string
	byKind  map[types.ChallengeKind]string
	prompts []types.ChallengePrompt
}

func (r *recordingResolver) Resolve(_ context.Context, p types.ChallengePrompt) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, p)
	if a, ok := r.byKind[p.Kind]; ok {
		return a, nil
	}
	return r.answer, nil
}

func (r *recordingResolver) calls() []types.ChallengePrompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.ChallengePrompt(nil), r.prompts...)
}

// Simulated login pages. With challenge set, the site asks for a one-time
// code after the password and accepts only goodCode.

func facebookPage(challenge bool) *browsertest.Page {
	p := browsertest.New(fbLoginURL, fbEmail, fbPassword, fbLoginButton)
	home := func(p *browsertest.Page) {
		p.SetURL("https://www.facebook.com/")
		p.Hide(fbApprovalsCode, fbSubmitCode)
		p.Show(fbAccountMenu)
	}
	if !challenge {
		p.OnClick[fbLoginButton] = home
		return p
	}
	p.OnClick[fbLoginButton] = func(p *browsertest.Page) {
		p.SetURL("https://www.facebook.com/checkpoint/?next")
		p.Show(fbApprovalsCode, fbSubmitCode)
	}
	p.OnClick[fbSubmitCode] = func(p *browsertest.Page) {
		if p.TypedInto(fbApprovalsCode) == goodCode {
			home(p)
		}
	}
	return p
}

func instagramPage(challenge bool) *browsertest.Page {
	p := browsertest.New(igLoginURL, igUsername, igPassword, igLoginButton)
	home := func(p *browsertest.Page) {
		p.SetURL("https://www.instagram.com/")
		p.Hide(igVerificationCode, igConfirmCode)
		p.Show(igHomeIcon)
	}
	if !challenge {
		p.OnClick[igLoginButton] = home
		return p
	}
	p.OnClick[igLoginButton] = func(p *browsertest.Page) {
		p.SetURL("https://www.instagram.com/accounts/login/two_factor?next=%2F")
		p.Show(igVerificationCode, igConfirmCode)
	}
	p.OnClick[igConfirmCode] = func(p *browsertest.Page) {
		if p.TypedInto(igVerificationCode) == goodCode {
			home(p)
		}
	}
	return p
}

func twitterPage(challenge bool) *browsertest.Page {
	p := browsertest.New(xLoginURL, xUsername)
	home := func(p *browsertest.Page) {
		p.SetURL("https://x.com/home")
		p.Hide(xOneTimeCode)
		p.Show(xProfileTab)
	}
	p.OnKey[xUsername] = func(p *browsertest.Page) { p.Show(xPassword) }
	if !challenge {
		p.OnKey[xPassword] = home
		return p
	}
	p.OnKey[xPassword] = func(p *browsertest.Page) { p.Show(xOneTimeCode) }
	p.OnKey[xOneTimeCode] = func(p *browsertest.Page) {
		if p.TypedInto(xOneTimeCode) == goodCode {
			home(p)
		}
	}
	return p
}

var pages = map[string]func(challenge bool) *browsertest.Page{
	"facebook":  facebookPage,
	"instagram": instagramPage,
	"twitter":   twitterPage,
}

func machine(t *testing.T, site string, page *browsertest.Page, r *recordingResolver, sink logging.Sink) *auth.Machine {
	t.Helper()
	s, err := Lookup(site)
	require.NoError(t, err)
	return auth.New(s.Login, page, cred, r, sink, fastSettings())
}

func TestLoginWithoutChallenge(t *testing.T) {
	for site, build := range pages {
		t.Run(site, func(t *testing.T) {
			page := build(false)
			r := &recordingResolver{answer: goodCode}
			m := machine(t, site, page, r, nil)

			require.NoError(t, m.Authenticate(context.Background()))
			assert.Equal(t, types.StateAuthenticated, m.State())
			assert.Empty(t, r.calls(), "resolver must not be consulted")
		})
	}
}

func TestLoginWithChallenge(t *testing.T) {
	for site, build := range pages {
		t.Run(site, func(t *testing.T) {
			page := build(true)
			r := &recordingResolver{answer: goodCode}
			rec := logging.NewRecorder()
			m := machine(t, site, page, r, rec)

			require.NoError(t, m.Authenticate(context.Background()))
			assert.Equal(t, types.StateAuthenticated, m.State())

			calls := r.calls()
			require.Len(t, calls, 1)
			assert.NotEmpty(t, calls[0].Text)
			assert.Equal(t, types.ChallengeTwoFactor, calls[0].Kind)
			assert.Equal(t, site+"/alice", calls[0].Session)

			for _, msg := range rec.Messages() {
				assert.NotContains(t, msg, cred.Secret)
			}
		})
	}
}

func TestLoginWithRejectedCode(t *testing.T) {
	for site, build := range pages {
		t.Run(site, func(t *testing.T) {
			page := build(true)
			r := &recordingResolver{answer: "000000"}
			m := machine(t, site, page, r, nil)

			err := m.Authenticate(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, auth.ErrLoginFailed))

			var lerr *auth.LoginError
			require.True(t, errors.As(err, &lerr))
			assert.Equal(t, auth.ReasonChallengeRejected, lerr.Reason)
			assert.Equal(t, types.StateFailed, m.State())
			assert.Len(t, r.calls(), 1, "a challenge is resolved at most once")
		})
	}
}

func TestTwitterVerificationThenPassword(t *testing.T) {
	page := browsertest.New(xLoginURL, xUsername)
	page.OnKey[xUsername] = func(p *browsertest.Page) { p.Show(xVerification) }
	page.OnKey[xVerification] = func(p *browsertest.Page) {
		p.Hide(xVerification)
		p.Show(xPassword)
	}
	page.OnKey[xPassword] = func(p *browsertest.Page) {
		p.SetURL("https://x.com/home")
		p.Show(xProfileLink)
	}

	r := &recordingResolver{answer: "alice@example.com"}
	m := machine(t, "twitter", page, r, nil)

	require.NoError(t, m.Authenticate(context.Background()))
	calls := r.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, types.ChallengeVerification, calls[0].Kind)
	assert.Equal(t, "alice@example.com", page.TypedInto(xVerification))
	assert.Equal(t, cred.Secret, page.TypedInto(xPassword))
}

func TestTwitterVerificationThenTwoFactor(t *testing.T) {
	page := browsertest.New(xLoginURL, xUsername)
	page.OnKey[xUsername] = func(p *browsertest.Page) { p.Show(xVerification) }
	page.OnKey[xVerification] = func(p *browsertest.Page) {
		p.Hide(xVerification)
		p.Show(xPassword)
	}
	page.OnKey[xPassword] = func(p *browsertest.Page) { p.Show(xOneTimeCode) }
	page.OnKey[xOneTimeCode] = func(p *browsertest.Page) {
		if p.TypedInto(xOneTimeCode) == goodCode {
			p.SetURL("https://x.com/home")
			p.Hide(xOneTimeCode)
			p.Show(xProfileLink)
		}
	}

	r := &recordingResolver{byKind: map[types.ChallengeKind]string{
		types.ChallengeVerification: "alice@example.com",
		types.ChallengeTwoFactor:    goodCode,
	}}
	m := machine(t, "twitter", page, r, nil)

	require.NoError(t, m.Authenticate(context.Background()))
	assert.Equal(t, types.StateAuthenticated, m.State())

	calls := r.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, types.ChallengeVerification, calls[0].Kind)
	assert.Equal(t, types.ChallengeTwoFactor, calls[1].Kind)
	assert.Equal(t, "alice@example.com", page.TypedInto(xVerification))
	assert.Equal(t, cred.Secret, page.TypedInto(xPassword))
	assert.Equal(t, goodCode, page.TypedInto(xOneTimeCode))
}

func TestInstagramTasksOpenTheirOwnPages(t *testing.T) {
	s, err := Lookup("instagram")
	require.NoError(t, err)

	profileURL := "https://www.instagram.com/alice/"
	page := browsertest.New("https://www.instagram.com/", igHeader, igConversation)
	page.Fail["navigate:"+profileURL] = errors.New("net::ERR_TIMED_OUT")
	page.Fail["navigate:"+igInboxURL] = errors.New("net::ERR_TIMED_OUT")

	settings := capture.DefaultSettings()
	settings.Pause = 0
	settings.ReadyTimeout = 0
	settings.PromptTimeout = 0
	env := &capture.Env{
		Driver:   page,
		Layout:   capture.Layout{Root: t.TempDir()},
		Site:     s.Name,
		Account:  "alice",
		Settings: settings,
	}

	results := capture.NewRunner(env).Run(context.Background(), s.Tasks("alice"))
	require.Len(t, results, 5)
	for _, r := range results {
		assert.False(t, r.OK(), "%s should fail without its page", r.Name)
		assert.Empty(t, r.Files, r.Name)
	}
	assert.Empty(t, page.Shots)
	assert.Empty(t, page.ElementShots)
}

func TestFacebookDismissesSaveBrowser(t *testing.T) {
	page := facebookPage(true)
	accept := page.OnClick[fbSubmitCode]
	page.OnClick[fbSubmitCode] = func(p *browsertest.Page) {
		accept(p)
		p.Show(fbDontSave)
	}

	m := machine(t, "facebook", page, &recordingResolver{answer: goodCode}, nil)
	require.NoError(t, m.Authenticate(context.Background()))
	assert.Contains(t, page.Clicks, fbDontSave)
}

func TestHomeURLAloneIsNotAuthenticated(t *testing.T) {
	page := browsertest.New(xLoginURL, xUsername)
	page.OnKey[xUsername] = func(p *browsertest.Page) { p.Show(xPassword) }
	page.OnKey[xPassword] = func(p *browsertest.Page) { p.SetURL("https://x.com/home") }

	m := machine(t, "twitter", page, &recordingResolver{}, nil)
	err := m.Authenticate(context.Background())

	var lerr *auth.LoginError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, auth.ReasonUnexpectedPage, lerr.Reason)
}

func TestLookup(t *testing.T) {
	assert.Equal(t, []string{"facebook", "instagram", "twitter"}, Names())

	s, err := Lookup("X")
	require.NoError(t, err)
	assert.Equal(t, "twitter", s.Name)

	_, err = Lookup("myspace")
	assert.Error(t, err)
}

func TestEverySiteCapturesFullProfile(t *testing.T) {
	for _, s := range All() {
		var names []string
		for _, task := range s.Tasks("alice") {
			names = append(names, task.Name)
			assert.NotNil(t, task.Run, "%s/%s", s.Name, task.Name)
		}
		assert.Contains(t, names, "full_profile", s.Name)
	}
}
