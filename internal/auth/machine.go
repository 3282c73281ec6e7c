// Package auth drives a site's login flow from credential entry to an
// authenticated session, resolving challenges through an out-of-band
// resolver.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ibeckermayer/snapbot/internal/browser"
	"github.com/ibeckermayer/snapbot/internal/challenge"
	"github.com/ibeckermayer/snapbot/internal/logging"
	"github.com/ibeckermayer/snapbot/internal/types"
)

// ErrLoginFailed matches every *LoginError.
var ErrLoginFailed = errors.New("login failed")

// LoginError reports why a login ended in Failed.
type LoginError struct {
	State  types.SessionState // state the flow was in when it failed
	Reason string
	Err    error
}

func (e *LoginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login failed in %s: %s: %v", e.State, e.Reason, e.Err)
	}
	return fmt.Sprintf("login failed in %s: %s", e.State, e.Reason)
}

func (e *LoginError) Unwrap() error { return e.Err }

// Is reports ErrLoginFailed as a match.
func (e *LoginError) Is(target error) bool { return target == ErrLoginFailed }

// Reasons carried by LoginError.
const (
	ReasonUnexpectedPage    = "unexpected page"
	ReasonChallengeRejected = "challenge rejected"
	ReasonAlreadyAttempted  = "login already attempted"
)

// Challenge describes one kind of challenge page a site may show.
type Challenge struct {
	Kind   types.ChallengeKind
	Prompt string    // shown to the operator
	Detect Predicate // true while the challenge page is showing
	Input  string    // where the answer is typed
	Submit string    // clicked after typing; empty presses Enter in Input

	// After runs once the answer is submitted, e.g. to dismiss a follow-up
	// dialog or continue the credential flow.
	After func(ctx context.Context, f *Flow) error
}

// Profile is everything site-specific about logging in.
type Profile struct {
	Site     string
	LoginURL string

	// Submit enters the credential on the login page.
	Submit func(ctx context.Context, f *Flow) error

	// Authenticated must only match pages that render signed-in UI.
	Authenticated Predicate

	Challenges []Challenge
}

// Settings bound the waits in a login flow.
type Settings struct {
	SettleTimeout    time.Duration // waiting for the page to settle on an outcome
	PollInterval     time.Duration
	ChallengeTimeout time.Duration // waiting for the operator
	TypeDelay        time.Duration // per character
}

// DefaultSettings returns production timings.
func DefaultSettings() Settings {
	return Settings{
		SettleTimeout:    60 * time.Second,
		PollInterval:     time.Second,
		ChallengeTimeout: challenge.DefaultTimeout,
		TypeDelay:        100 * time.Millisecond,
	}
}

// Machine runs one login attempt. It is not reusable.
type Machine struct {
	profile  Profile
	driver   browser.Driver
	cred     types.Credential
	resolver challenge.Resolver
	sink     logging.Sink
	settings Settings

	mu    sync.Mutex
	state types.SessionState
}

// New creates a machine in NotStarted.
func New(profile Profile, d browser.Driver, cred types.Credential, resolver challenge.Resolver, sink logging.Sink, settings Settings) *Machine {
	if sink == nil {
		sink = logging.Discard
	}
	def := DefaultSettings()
	if settings.SettleTimeout <= 0 {
		settings.SettleTimeout = def.SettleTimeout
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = def.PollInterval
	}
	if settings.ChallengeTimeout <= 0 {
		settings.ChallengeTimeout = def.ChallengeTimeout
	}
	return &Machine{
		profile:  profile,
		driver:   d,
		cred:     cred,
		resolver: resolver,
		sink:     sink,
		settings: settings,
	}
}

// State returns the current state.
func (m *Machine) State() types.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) advance(next types.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.CanAdvance(next) {
		panic(fmt.Sprintf("auth: illegal transition %s -> %s", m.state, next))
	}
	m.state = next
}

func (m *Machine) logf(format string, args ...any) {
	m.sink.Log(fmt.Sprintf(format, args...))
}

func (m *Machine) session() string {
	return m.profile.Site + "/" + m.cred.Identifier
}

func (m *Machine) fail(reason string, err error) error {
	m.mu.Lock()
	from := m.state
	m.state = types.StateFailed
	m.mu.Unlock()

	lerr := &LoginError{State: from, Reason: reason, Err: err}
	if err != nil {
		m.logf("Login error: %s: %v", reason, err)
	} else {
		m.logf("Login error: %s", reason)
	}
	return lerr
}

// Authenticate submits the credential and follows the site until it reaches
// Authenticated or Failed. Any error returned is a *LoginError.
func (m *Machine) Authenticate(ctx context.Context) error {
	if s := m.State(); s != types.StateNotStarted {
		return &LoginError{State: s, Reason: ReasonAlreadyAttempted}
	}
	flow := &Flow{m: m}

	m.logf("Navigating to login page...")
	if err := m.driver.Navigate(ctx, m.profile.LoginURL, browser.WaitSettled); err != nil {
		return m.fail("login page unavailable", err)
	}

	if err := m.profile.Submit(ctx, flow); err != nil {
		return m.fail("credential submission failed", err)
	}
	m.advance(types.StateCredentialsSubmitted)

	resolved := make([]bool, len(m.profile.Challenges))
	for {
		out, err := m.await(ctx, resolved)
		if err != nil {
			return m.fail("interrupted", err)
		}

		switch {
		case out.authenticated:
			m.advance(types.StateAuthenticated)
			m.logf("Logged in successfully.")
			return nil
		case out.challenge >= 0:
			resolved[out.challenge] = true
			m.advance(types.StateChallengePending)
			if err := m.handle(ctx, flow, m.profile.Challenges[out.challenge]); err != nil {
				return err
			}
		case out.rejected:
			return m.fail(ReasonChallengeRejected, nil)
		default:
			return m.fail(ReasonUnexpectedPage, out.lastErr)
		}
	}
}

type outcome struct {
	authenticated bool
	challenge     int  // index of a newly detected challenge, or -1
	rejected      bool // a resolved challenge was still showing at the deadline
	lastErr       error
}

// await polls the page until it is authenticated, an unresolved challenge
// shows up, or the settle timeout expires. Only a done ctx is an error.
func (m *Machine) await(ctx context.Context, resolved []bool) (outcome, error) {
	deadline := time.NewTimer(m.settings.SettleTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.settings.PollInterval)
	defer ticker.Stop()

	out := outcome{challenge: -1}
	for {
		ok, err := m.profile.Authenticated(ctx, m.driver)
		if err != nil {
			out.lastErr = err
		}
		if ok {
			out.authenticated = true
			return out, nil
		}

		out.rejected = false
		for i, c := range m.profile.Challenges {
			shown, err := c.Detect(ctx, m.driver)
			if err != nil {
				out.lastErr = err
				continue
			}
			if !shown {
				continue
			}
			if !resolved[i] {
				out.challenge = i
				return out, nil
			}
			out.rejected = true
		}

		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-deadline.C:
			return out, nil
		case <-ticker.C:
		}
	}
}

func (m *Machine) handle(ctx context.Context, flow *Flow, c Challenge) error {
	m.logf("%s page detected.", describe(c.Kind))

	if err := m.driver.WaitForElement(ctx, c.Input, m.settings.SettleTimeout); err != nil {
		return m.fail("challenge input missing", err)
	}

	rctx, cancel := context.WithTimeout(ctx, m.settings.ChallengeTimeout)
	answer, err := m.resolver.Resolve(rctx, types.ChallengePrompt{
		Session: m.session(),
		Kind:    c.Kind,
		Text:    c.Prompt,
	})
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w (%v)", challenge.ErrTimeout, m.settings.ChallengeTimeout)
		}
		return m.fail("no challenge response", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return m.fail("empty challenge response", challenge.ErrInvalidResponse)
	}

	if err := flow.Type(ctx, c.Input, answer); err != nil {
		return m.fail("failed to enter challenge response", err)
	}
	if c.Submit != "" {
		err = m.driver.Click(ctx, c.Submit)
	} else {
		err = m.driver.SendKey(ctx, c.Input, browser.KeyEnter)
	}
	if err != nil {
		return m.fail("failed to submit challenge response", err)
	}
	m.logf("%s response entered and submitted.", describe(c.Kind))

	if c.After != nil {
		if err := c.After(ctx, flow); err != nil {
			return m.fail("challenge follow-up failed", err)
		}
	}
	return nil
}

func describe(kind types.ChallengeKind) string {
	switch kind {
	case types.ChallengeTwoFactor:
		return "2FA"
	case types.ChallengeVerification:
		return "Verification"
	default:
		return string(kind)
	}
}
