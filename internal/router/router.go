package router

import (
	"sort"
	"strings"

	"github.com/fabian4/overwrite-homebrew-go/internal/config"
)

// Table resolves a request host and path to a subscription profile.
type Table struct {
	byHost map[string][]*config.Profile // exact host -> profiles sorted by prefix desc
	any    []*config.Profile            // wildcard profiles -> prefix desc
}

func New(profiles []config.Profile) *Table {
	t := &Table{byHost: make(map[string][]*config.Profile)}
	for i := range profiles {
		p := &profiles[i]
		if p.Host == "" {
			t.any = append(t.any, p)
			continue
		}
		h := strings.ToLower(p.Host)
		t.byHost[h] = append(t.byHost[h], p)
	}
	for h := range t.byHost {
		sortByPrefix(t.byHost[h])
	}
	sortByPrefix(t.any)
	return t
}

// Match returns the profile with the longest matching prefix, preferring an
// exact host over wildcard profiles, or nil.
func (t *Table) Match(host, path string) *config.Profile {
	h := strings.ToLower(hostOnly(host))
	if p := match(t.byHost[h], path); p != nil {
		return p
	}
	return match(t.any, path)
}

// Len is the number of distinct profiles in the table.
func (t *Table) Len() int {
	n := len(t.any)
	for _, ps := range t.byHost {
		n += len(ps)
	}
	return n
}

func sortByPrefix(ps []*config.Profile) {
	sort.SliceStable(ps, func(i, j int) bool {
		return len(ps[i].PathPrefix) > len(ps[j].PathPrefix)
	})
}

// match requires the prefix to end on a path segment boundary.
func match(ps []*config.Profile, path string) *config.Profile {
	for _, p := range ps {
		if !strings.HasPrefix(path, p.PathPrefix) {
			continue
		}
		rest := path[len(p.PathPrefix):]
		if rest == "" || rest[0] == '/' || strings.HasSuffix(p.PathPrefix, "/") {
			return p
		}
	}
	return nil
}

func hostOnly(h string) string {
	if i := strings.IndexByte(h, ':'); i >= 0 {
		return h[:i]
	}
	return h
}
