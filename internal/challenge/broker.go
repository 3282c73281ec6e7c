// Package challenge implements the out-of-band challenge resolution protocol:
// a login flow asks for operator input and blocks, with a deadline, until the
// host supplies it.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ibeckermayer/snapbot/internal/types"
)

// DefaultTimeout bounds how long a login flow waits for the operator.
const DefaultTimeout = 5 * time.Minute

var (
	ErrTimeout         = errors.New("no challenge response before deadline")
	ErrCancelled       = errors.New("challenge request cancelled")
	ErrUnknownRequest  = errors.New("unknown or expired challenge request")
	ErrBusy            = errors.New("a challenge is already pending for this session")
	ErrInvalidResponse = errors.New("invalid challenge response")
)

// Resolver obtains operator input for a challenge prompt.
type Resolver interface {
	Resolve(ctx context.Context, prompt types.ChallengePrompt) (string, error)
}

// ResolverFunc adapts a function to a Resolver.
type ResolverFunc func(ctx context.Context, prompt types.ChallengePrompt) (string, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, prompt types.ChallengePrompt) (string, error) {
	return f(ctx, prompt)
}

// Request is an outstanding challenge awaiting an operator response.
type Request struct {
	ID        string                `json:"id"`
	Prompt    types.ChallengePrompt `json:"prompt"`
	CreatedAt time.Time             `json:"created_at"`
	Deadline  time.Time             `json:"deadline"`
}

type pending struct {
	req       Request
	answer    chan string
	cancelled chan struct{}
	released  chan struct{}
}

// Broker is a Resolver that hands prompts to a host and matches the host's
// answers back by request ID, so concurrent sessions never cross-resolve.
type Broker struct {
	mu        sync.Mutex
	timeout   time.Duration
	notify    func(Request)
	byID      map[string]*pending
	bySession map[string]string
}

// NewBroker creates a broker. notify is called, outside any lock, each time a
// new request is registered; it must not block for long.
func NewBroker(timeout time.Duration, notify func(Request)) *Broker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Broker{
		timeout:   timeout,
		notify:    notify,
		byID:      make(map[string]*pending),
		bySession: make(map[string]string),
	}
}

// Resolve implements Resolver. It blocks until Submit, Cancel, the broker
// deadline or ctx, whichever comes first.
func (b *Broker) Resolve(ctx context.Context, prompt types.ChallengePrompt) (string, error) {
	now := time.Now()
	p := &pending{
		req: Request{
			ID:        uuid.NewString(),
			Prompt:    prompt,
			CreatedAt: now,
			Deadline:  now.Add(b.timeout),
		},
		answer:    make(chan string, 1),
		cancelled: make(chan struct{}),
		released:  make(chan struct{}),
	}

	b.mu.Lock()
	if _, busy := b.bySession[prompt.Session]; busy {
		b.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrBusy, prompt.Session)
	}
	b.byID[p.req.ID] = p
	b.bySession[prompt.Session] = p.req.ID
	b.mu.Unlock()

	defer b.take(p.req.ID)

	if b.notify != nil {
		b.notify(p.req)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case answer := <-p.answer:
		return answer, nil
	case <-p.cancelled:
		return "", ErrCancelled
	case <-timer.C:
		return "", fmt.Errorf("%w (%v)", ErrTimeout, b.timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Submit delivers the operator's answer for request id. Each request accepts
// exactly one answer.
func (b *Broker) Submit(id, answer string) error {
	p, ok := b.take(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	p.answer <- answer
	return nil
}

// Cancel aborts request id; the waiting login flow receives ErrCancelled.
func (b *Broker) Cancel(id string) error {
	p, ok := b.take(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	close(p.cancelled)
	return nil
}

// Pending lists outstanding requests, oldest first.
func (b *Broker) Pending() []Request {
	b.mu.Lock()
	out := make([]Request, 0, len(b.byID))
	for _, p := range b.byID {
		out = append(out, p.req)
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// released returns a channel that is closed once request id has been
// answered, cancelled or abandoned by its login flow.
func (b *Broker) released(id string) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.byID[id]; ok {
		return p.released
	}
	done := make(chan struct{})
	close(done)
	return done
}

func (b *Broker) take(id string) (*pending, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	delete(b.byID, id)
	delete(b.bySession, p.req.Prompt.Session)
	close(p.released)
	return p, true
}
