// Package sites holds the per-site login profiles, selectors and capture
// task lists. Selectors live next to the site that uses them because these
// sites change their markup often; update them when a run starts failing.
package sites

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ibeckermayer/snapbot/internal/auth"
	"github.com/ibeckermayer/snapbot/internal/capture"
)

// Site is one supported social-media site.
type Site struct {
	Name  string // directory and config key, e.g. "twitter"
	Title string // for log lines, e.g. "Twitter"

	Login auth.Profile

	// Origins whose notification permission prompt is denied up front.
	Notifications []string

	// Tasks returns the ordered capture tasks for account.
	Tasks func(account string) []capture.Task
}

var registry = map[string]Site{}

func register(s Site) {
	registry[s.Name] = s
}

// Lookup returns the site called name. "x" is accepted for twitter.
func Lookup(name string) (Site, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "x" {
		name = "twitter"
	}
	s, ok := registry[name]
	if !ok {
		return Site{}, fmt.Errorf("unknown site %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return s, nil
}

// Names lists supported sites in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns every supported site, ordered by name.
func All() []Site {
	out := make([]Site, 0, len(registry))
	for _, n := range Names() {
		out = append(out, registry[n])
	}
	return out
}
