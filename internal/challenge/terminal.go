package challenge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ibeckermayer/snapbot/internal/types"
)

// Terminal asks challenge prompts on a line-oriented terminal. Prompts from
// concurrent sessions are asked one at a time.
type Terminal struct {
	in  io.Reader
	out io.Writer

	ask      sync.Mutex
	start    sync.Once
	lines    chan string
	readErr  error
	readDone chan struct{}
}

// NewTerminal creates a terminal host reading answers from in.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		in:       in,
		out:      out,
		lines:    make(chan string),
		readDone: make(chan struct{}),
	}
}

// reader pumps lines from in until EOF. A single goroutine owns in so that an
// abandoned prompt never leaves a second reader competing for input.
func (t *Terminal) reader() {
	defer close(t.readDone)
	scanner := bufio.NewScanner(t.in)
	for scanner.Scan() {
		t.lines <- scanner.Text()
	}
	t.readErr = scanner.Err()
	if t.readErr == nil {
		t.readErr = io.EOF
	}
}

// Resolve implements Resolver.
func (t *Terminal) Resolve(ctx context.Context, prompt types.ChallengePrompt) (string, error) {
	t.ask.Lock()
	defer t.ask.Unlock()

	t.start.Do(func() { go t.reader() })

	fmt.Fprintf(t.out, "\n[%s] %s\n> ", prompt.Session, prompt.Text)

	select {
	case line := <-t.lines:
		return strings.TrimSpace(line), nil
	case <-t.readDone:
		return "", fmt.Errorf("reading challenge response: %w", t.readErr)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			fmt.Fprintf(t.out, "\n[%s] challenge expired\n", prompt.Session)
		}
		return "", ctx.Err()
	}
}

// Serve answers broker requests with resolver until ctx is done or requests
// is closed. Each prompt lasts only as long as its request is pending and
// before its deadline; requests already settled or expired are skipped.
func Serve(ctx context.Context, b *Broker, requests <-chan Request, resolver Resolver) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-requests:
			if !ok {
				return nil
			}
			if err := serveOne(ctx, b, req, resolver); err != nil {
				return err
			}
		}
	}
}

func serveOne(ctx context.Context, b *Broker, req Request, resolver Resolver) error {
	released := b.released(req.ID)
	select {
	case <-released:
		return nil
	default:
	}
	if !req.Deadline.IsZero() && !time.Now().Before(req.Deadline) {
		return nil
	}

	var (
		reqCtx context.Context
		cancel context.CancelFunc
	)
	if req.Deadline.IsZero() {
		reqCtx, cancel = context.WithCancel(ctx)
	} else {
		reqCtx, cancel = context.WithDeadline(ctx, req.Deadline)
	}
	defer cancel()
	go func() {
		select {
		case <-released:
			cancel()
		case <-reqCtx.Done():
		}
	}()

	answer, err := resolver.Resolve(reqCtx, req.Prompt)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if reqCtx.Err() != nil {
			return nil
		}
		b.Cancel(req.ID)
		if errors.Is(err, io.EOF) {
			return err
		}
		return nil
	}
	if err := b.Submit(req.ID, answer); err != nil && !errors.Is(err, ErrUnknownRequest) {
		return err
	}
	return nil
}
