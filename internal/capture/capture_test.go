package capture

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/snapbot/internal/browser/browsertest"
	"github.com/ibeckermayer/snapbot/internal/logging"
)

func testEnv(t *testing.T, page *browsertest.Page) (*Env, *logging.Recorder) {
	t.Helper()
	rec := logging.NewRecorder()
	settings := DefaultSettings()
	settings.Pause = 0
	settings.ReadyTimeout = 0
	settings.PromptTimeout = time.Millisecond
	return &Env{
		Driver:   page,
		Sink:     rec,
		Layout:   Layout{Root: t.TempDir()},
		Site:     "facebook",
		Account:  "alice",
		Settings: settings,
	}, rec
}

func stub(name string, err error, calls *[]string) Task {
	return Task{
		Name: name,
		Run: func(ctx context.Context, env *Env) ([]string, error) {
			*calls = append(*calls, name)
			return nil, err
		},
	}
}

func TestRunnerContinuesAfterFailure(t *testing.T) {
	env, rec := testEnv(t, browsertest.New("about:blank"))
	var calls []string

	results := NewRunner(env).Run(context.Background(), []Task{
		stub("first", nil, &calls),
		stub("second", errors.New("selector not found"), &calls),
		stub("third", nil, &calls),
	})

	assert.Equal(t, []string{"first", "second", "third"}, calls)
	require.Len(t, results, 3)
	assert.True(t, results[0].OK())
	assert.False(t, results[1].OK())
	assert.Equal(t, "selector not found", results[1].Err)
	assert.True(t, results[2].OK())

	assert.NotEqual(t, -1, rec.Index("Running first..."))
	assert.NotEqual(t, -1, rec.Index("Error in second: selector not found"))
	assert.NotEqual(t, -1, rec.Index("Running third..."))
}

func TestRunnerStopsWhenCancelled(t *testing.T) {
	env, _ := testEnv(t, browsertest.New("about:blank"))
	ctx, cancel := context.WithCancel(context.Background())
	var calls []string

	results := NewRunner(env).Run(ctx, []Task{
		{Name: "cancel", Run: func(context.Context, *Env) ([]string, error) {
			cancel()
			return nil, nil
		}},
		stub("never", nil, &calls),
	})

	assert.Len(t, results, 1)
	assert.Empty(t, calls)
}

func TestScrollUntilStable(t *testing.T) {
	page := browsertest.New("about:blank")
	page.SetHeights(1000, 2000, 2000)

	n, err := ScrollUntilStable(context.Background(), page, 0, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, page.Scrolls)
}

func TestScrollUntilStableRespectsLimit(t *testing.T) {
	page := browsertest.New("about:blank")
	page.SetHeights(1, 2, 3, 4, 5, 6, 7, 8)

	n, err := ScrollUntilStable(context.Background(), page, 0, 3)
	assert.ErrorIs(t, err, ErrScrollLimit)
	assert.Equal(t, 3, n)
}

func TestLayout(t *testing.T) {
	l := Layout{Root: t.TempDir()}

	path, err := l.File("instagram", "alice", "full_profile")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(l.Root, "instagram", "alice", "alice_full_profile.png"), path)
	assert.DirExists(t, filepath.Dir(path))

	part, err := l.Part("instagram", "alice", "posts", 2)
	require.NoError(t, err)
	assert.Equal(t, "alice_posts_part_2.png", filepath.Base(part))
}

func TestPageShot(t *testing.T) {
	page := browsertest.New("about:blank", "#profile")
	page.WriteFiles = true
	env, rec := testEnv(t, page)

	files, err := PageShot("full_profile", Page{URL: "https://www.facebook.com/me", Ready: "#profile"}, true).Run(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.FileExists(t, files[0])
	assert.Equal(t, []string{"https://www.facebook.com/me"}, page.Navigations)
	assert.Contains(t, rec.Messages(), "Screenshot saved: "+files[0])
}

func TestPageShotMissingReady(t *testing.T) {
	env, _ := testEnv(t, browsertest.New("about:blank"))

	_, err := PageShot("full_profile", Page{Ready: "#profile"}, true).Run(context.Background(), env)
	assert.Error(t, err)
}

func TestElementShot(t *testing.T) {
	page := browsertest.New("about:blank", "header")
	env, _ := testEnv(t, page)

	files, err := ElementShot("profile_header", Page{}, "header").Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, page.ElementShots, files)
	assert.Equal(t, "alice_profile_header.png", filepath.Base(files[0]))
}

func TestScrollShot(t *testing.T) {
	page := browsertest.New("about:blank")
	page.SetHeights(1000, 3000, 3000)
	env, _ := testEnv(t, page)

	files, err := ScrollShot("friends_page", Page{URL: "https://www.facebook.com/me/friends"}).Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Scrolls)
	assert.Equal(t, "alice_friends_page.png", filepath.Base(files[0]))
}

func TestPagedShots(t *testing.T) {
	page := browsertest.New("about:blank")
	// part 1: 1000 -> 2000, part 2: 2000 -> 2000
	page.SetHeights(1000, 2000, 2000, 2000)
	env, _ := testEnv(t, page)

	files, err := PagedShots("posts", Page{}, "header").Run(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "alice_posts_part_1.png", filepath.Base(files[0]))
	assert.Equal(t, "alice_posts_part_2.png", filepath.Base(files[1]))
	assert.Contains(t, page.Evals[0], `"header"`)
}

func TestItemShots(t *testing.T) {
	const item = `div[role="listitem"]`
	page := browsertest.New("about:blank", item, `a[href="/direct/inbox/"]`)
	page.SetCount(item, 5)
	env, _ := testEnv(t, page)

	files, err := ItemShots("conversation", List{Item: item, Back: `a[href="/direct/inbox/"]`}, false).Run(context.Background(), env)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.Equal(t, []string{
		"alice_conversation_list.png",
		"alice_conversation_1.png",
		"alice_conversation_2.png",
		"alice_conversation_3.png",
	}, names)
	assert.Contains(t, page.Clicks, item+"#2")
	assert.NotContains(t, page.Clicks, item+"#3")
}

func TestItemShotsSkipsFailingItem(t *testing.T) {
	const item = `div[role="listitem"]`
	page := browsertest.New("about:blank", item)
	page.SetCount(item, 2)
	env, rec := testEnv(t, page)
	first, err := env.Path("conversation_1")
	require.NoError(t, err)
	page.Fail["shot:"+first] = errors.New("boom")

	files, err := ItemShots("conversation", List{Page: Page{URL: "https://www.facebook.com/messages/t/"}, Item: item}, true).Run(context.Background(), env)
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Equal(t, "alice_conversation_2.png", filepath.Base(files[1]))
	assert.Contains(t, rec.Messages()[len(rec.Messages())-3], "Error processing conversation 1")
}

func TestItemShotsNoItems(t *testing.T) {
	page := browsertest.New("about:blank")
	env, rec := testEnv(t, page)

	files, err := ItemShots("conversation", List{Item: "li"}, true).Run(context.Background(), env)
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Contains(t, rec.Messages(), "No conversations found.")
}

func TestDismissPrompts(t *testing.T) {
	page := browsertest.New("about:blank", `[aria-label="Close"]`, "._a9-v", "button._a9--._a9_1")
	env, rec := testEnv(t, page)

	_, err := DismissPrompts("notification_prompts", Page{}, []Prompt{
		{Detect: `button[value="decline"]`},
		{Detect: `[aria-label="Close"]`},
		{Detect: "._a9-v", Dismiss: "button._a9--._a9_1"},
	}).Run(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, []string{`[aria-label="Close"]`, "button._a9--._a9_1"}, page.Clicks)
	require.NotEmpty(t, page.Waits)
	for _, w := range page.Waits {
		assert.Equal(t, env.Settings.PromptTimeout, w.Timeout, w.Selector)
	}
	msgs := rec.Messages()
	assert.Equal(t, "Handling notification prompts...", msgs[0])
	assert.Equal(t, "Finished handling notification prompts.", msgs[len(msgs)-1])
}
