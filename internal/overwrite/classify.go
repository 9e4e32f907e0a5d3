package overwrite

import (
	"github.com/fabian4/overwrite-homebrew-go/internal/match"
	"github.com/fabian4/overwrite-homebrew-go/internal/model"
)

// compiledRegion pairs a catalog region with its compiled pattern.
type compiledRegion struct {
	model.Region
	m match.Matcher
}

func compileRegions(rs []model.Region) ([]compiledRegion, error) {
	out := make([]compiledRegion, 0, len(rs))
	for _, r := range rs {
		p, err := match.Compile(r.Pattern)
		if err != nil {
			return nil, err
		}
		out = append(out, compiledRegion{Region: r, m: p})
	}
	return out, nil
}

// Classify counts, per region, the proxies whose name matches the region's
// pattern. A proxy may count toward several regions. Regions without a match
// are left out; the rest keep catalog order.
func Classify(proxies []model.Proxy, regions []model.Region) ([]model.RegionStat, error) {
	crs, err := compileRegions(regions)
	if err != nil {
		return nil, err
	}
	return classify(proxies, crs), nil
}

func classify(proxies []model.Proxy, regions []compiledRegion) []model.RegionStat {
	var stats []model.RegionStat
	for _, r := range regions {
		n := 0
		for _, p := range proxies {
			if r.m.Match(p.Name) {
				n++
			}
		}
		if n > 0 {
			stats = append(stats, model.RegionStat{Region: r.Region, Count: n})
		}
	}
	return stats
}
