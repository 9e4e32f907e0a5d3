package overwrite

import (
	"strings"

	"github.com/samber/lo"

	"github.com/fabian4/overwrite-homebrew-go/internal/match"
	"github.com/fabian4/overwrite-homebrew-go/internal/model"
)

// Options are the per-run tuning knobs.
type Options struct {
	MinCount  int
	GroupType model.GroupType
	Overrides Overrides
}

// CatchAll describes the synthetic group for proxies outside every kept region.
type CatchAll struct {
	Name string
	Icon string
}

// BuildRegionGroups emits one group per region stat with Count >= MinCount,
// in stat order, followed by the catch-all group when at least one region was
// kept and some proxy matches none of the kept patterns.
//
// A region dropped by MinCount is not folded into the catch-all on its own:
// its proxies land there only if they also miss every kept pattern.
func BuildRegionGroups(proxies []model.Proxy, stats []model.RegionStat, opts Options, other CatchAll) ([]model.ProxyGroup, error) {
	ms := make([]match.Matcher, 0, len(stats))
	for _, s := range stats {
		if s.Count < opts.MinCount {
			continue
		}
		p, err := match.Compile(s.Pattern)
		if err != nil {
			return nil, err
		}
		ms = append(ms, p)
	}
	return buildRegionGroups(proxies, stats, ms, opts, other), nil
}

// keptMatchers must hold, in order, the compiled patterns of the stats that
// pass MinCount.
func buildRegionGroups(proxies []model.Proxy, stats []model.RegionStat, keptMatchers []match.Matcher, opts Options, other CatchAll) []model.ProxyGroup {
	var (
		groups []model.ProxyGroup
		kept   []string
	)
	for _, s := range stats {
		if s.Count < opts.MinCount {
			continue
		}
		groups = append(groups, newFilterGroup(s.Name, s.Icon, s.Pattern, false, opts))
		kept = append(kept, s.Pattern)
	}

	// nothing kept: an exclude-filter over zero patterns would claim every proxy
	if len(kept) == 0 {
		return groups
	}
	covered := match.AnyOf(keptMatchers)
	if lo.SomeBy(proxies, func(p model.Proxy) bool { return !covered.Match(p.Name) }) {
		groups = append(groups, newFilterGroup(other.Name, other.Icon, strings.Join(kept, "|"), true, opts))
	}
	return groups
}

func newFilterGroup(name, icon, pattern string, exclude bool, opts Options) model.ProxyGroup {
	g := model.ProxyGroup{Name: name, IncludeAll: true, Icon: icon}
	if exclude {
		g.ExcludeFilter = pattern
	} else {
		g.Filter = pattern
	}
	Resolve(name, opts.GroupType, opts.Overrides).apply(&g)
	return g
}
