package types

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Credential is an operator-supplied login identity. It lives in memory for
// the duration of a run and is never written to disk or to a log.
type Credential struct {
	Identifier string
	Secret     string
}

// String redacts the secret so a Credential can be formatted safely.
func (c Credential) String() string {
	return fmt.Sprintf("%s:****", c.Identifier)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (c Credential) MarshalZerologObject(e *zerolog.Event) {
	e.Str("identifier", c.Identifier).Bool("secret_set", c.Secret != "")
}

// ChallengeKind identifies what a challenge page expects from the operator.
type ChallengeKind string

const (
	ChallengeTwoFactor    ChallengeKind = "2fa"
	ChallengeVerification ChallengeKind = "verification"
)

// ChallengePrompt is a request for out-of-band operator input.
type ChallengePrompt struct {
	Session string        `json:"session"` // e.g. "twitter/alice"
	Kind    ChallengeKind `json:"kind"`
	Text    string        `json:"text"`
}

// SessionState is the current point in the login flow.
type SessionState int

const (
	StateNotStarted SessionState = iota
	StateCredentialsSubmitted
	StateChallengePending
	StateAuthenticated
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateCredentialsSubmitted:
		return "credentials_submitted"
	case StateChallengePending:
		return "challenge_pending"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == StateAuthenticated || s == StateFailed
}

// CanAdvance reports whether moving from s to next keeps the flow moving
// forward. Failed is reachable from any non-terminal state; ChallengePending
// may repeat when a second challenge follows the first.
func (s SessionState) CanAdvance(next SessionState) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	switch s {
	case StateNotStarted:
		return next == StateCredentialsSubmitted
	case StateCredentialsSubmitted:
		return next == StateChallengePending || next == StateAuthenticated
	case StateChallengePending:
		return next == StateChallengePending || next == StateAuthenticated
	}
	return false
}

// TaskResult records the outcome of one capture task.
type TaskResult struct {
	Name     string        `json:"name"`
	Files    []string      `json:"files,omitempty"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the task completed without error.
func (r TaskResult) OK() bool {
	return r.Err == ""
}

// RunResult is the outcome of one bot run, handed back to the host.
type RunResult struct {
	Site       string       `json:"site"`
	Account    string       `json:"account"`
	Success    bool         `json:"success"`
	Error      string       `json:"error,omitempty"`
	State      SessionState `json:"state"`
	Tasks      []TaskResult `json:"tasks,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}
