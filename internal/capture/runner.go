// Package capture runs the post-login page-capture tasks of a bot.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/ibeckermayer/snapbot/internal/browser"
	"github.com/ibeckermayer/snapbot/internal/logging"
	"github.com/ibeckermayer/snapbot/internal/types"
)

// Settings tune how tasks wait on the page.
type Settings struct {
	TaskTimeout   time.Duration // per task, 0 disables
	ReadyTimeout  time.Duration // waiting for a page's ready selector
	PromptTimeout time.Duration // waiting for each optional prompt
	Pause         time.Duration // after each scroll, click or dismissal
	MaxScrolls    int           // upper bound on scroll iterations
	MaxItems      int           // list items opened by ItemShots
}

// DefaultSettings mirror the timings the capture pages need in practice.
func DefaultSettings() Settings {
	return Settings{
		TaskTimeout:   3 * time.Minute,
		ReadyTimeout:  15 * time.Second,
		PromptTimeout: 5 * time.Second,
		Pause:         2 * time.Second,
		MaxScrolls:    50,
		MaxItems:      3,
	}
}

// Env is what a task sees: the authenticated session and where to put files.
type Env struct {
	Driver   browser.Driver
	Sink     logging.Sink
	Layout   Layout
	Site     string
	Account  string
	Settings Settings
}

// Path returns the output file for purpose.
func (e *Env) Path(purpose string) (string, error) {
	return e.Layout.File(e.Site, e.Account, purpose)
}

func (e *Env) logf(format string, args ...any) {
	if e.Sink != nil {
		e.Sink.Log(fmt.Sprintf(format, args...))
	}
}

// Task is one unit of post-login work. Run returns the files it wrote.
type Task struct {
	Name   string
	Target string
	Run    func(ctx context.Context, env *Env) ([]string, error)
}

// Runner executes tasks in order. A failing task is logged and the next one
// still runs.
type Runner struct {
	env *Env
}

// NewRunner creates a runner over env.
func NewRunner(env *Env) *Runner {
	if env.Sink == nil {
		env.Sink = logging.Discard
	}
	return &Runner{env: env}
}

// Run executes tasks and returns one result per attempted task. It stops early
// only when ctx is done.
func (r *Runner) Run(ctx context.Context, tasks []Task) []types.TaskResult {
	results := make([]types.TaskResult, 0, len(tasks))

	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		results = append(results, r.runOne(ctx, task))
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, task Task) types.TaskResult {
	if r.env.Settings.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.env.Settings.TaskTimeout)
		defer cancel()
	}

	r.env.logf("Running %s...", task.Name)
	start := time.Now()
	files, err := task.Run(ctx, r.env)

	res := types.TaskResult{
		Name:     task.Name,
		Files:    files,
		Duration: time.Since(start),
	}
	if err != nil {
		res.Err = err.Error()
		r.env.logf("Error in %s: %v", task.Name, err)
	}
	return res
}
