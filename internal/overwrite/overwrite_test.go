package overwrite

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/fabian4/overwrite-homebrew-go/internal/catalog"
	"github.com/fabian4/overwrite-homebrew-go/internal/document"
	"github.com/fabian4/overwrite-homebrew-go/internal/model"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	e, err := New(catalog.Default(), l)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func proxies(names ...string) []model.Proxy {
	out := make([]model.Proxy, len(names))
	for i, n := range names {
		out[i] = model.Proxy{Name: n}
	}
	return out
}

func regionOf(t *testing.T, name string) model.Region {
	t.Helper()
	for _, r := range catalog.Default().Regions {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("region %q not in catalog", name)
	return model.Region{}
}

// regionGroups returns the groups between the manual group and the first service group.
func regionGroups(t *testing.T, cfg model.RoutingConfiguration) []model.ProxyGroup {
	t.Helper()
	n := len(cfg.Groups) - 2 - len(catalog.Default().Services)
	if n < 0 {
		t.Fatalf("too few groups: %d", len(cfg.Groups))
	}
	return cfg.Groups[2 : 2+n]
}

func findGroup(cfg model.RoutingConfiguration, name string) *model.ProxyGroup {
	for i := range cfg.Groups {
		if cfg.Groups[i].Name == name {
			return &cfg.Groups[i]
		}
	}
	return nil
}

func groupNames(gs []model.ProxyGroup) []string {
	out := make([]string, len(gs))
	for i := range gs {
		out[i] = gs[i].Name
	}
	return out
}

func TestGenerate_AllCoveredNoCatchAll(t *testing.T) {
	e := newEngine(t)
	cfg := e.Generate(proxies("HK-01", "US-02", "JP-03"), Options{GroupType: model.GroupURLTest})

	rg := regionGroups(t, cfg)
	if got, want := groupNames(rg), []string{"香港", "日本", "美国"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("region groups: got %v, want %v", got, want)
	}
	for _, g := range rg {
		if g.Type != model.GroupURLTest {
			t.Errorf("%s: type %q, want url-test", g.Name, g.Type)
		}
		if g.URL != model.DefaultHealthCheck.URL || g.Interval != 300 || g.Tolerance != 50 {
			t.Errorf("%s: health check not set: %+v", g.Name, g)
		}
		if g.Lazy == nil || *g.Lazy {
			t.Errorf("%s: lazy must be explicitly false", g.Name)
		}
		if !g.IncludeAll || g.Filter != regionOf(t, g.Name).Pattern || g.ExcludeFilter != "" {
			t.Errorf("%s: selector unexpected: %+v", g.Name, g)
		}
	}
	if findGroup(cfg, catalog.OtherRegion) != nil {
		t.Fatalf("catch-all must be absent when every proxy is covered")
	}
}

func TestGenerate_CatchAllExcludesKept(t *testing.T) {
	e := newEngine(t)
	cfg := e.Generate(proxies("HK-01", "Unknown-02"), Options{GroupType: model.GroupURLTest})

	rg := regionGroups(t, cfg)
	if got, want := groupNames(rg), []string{"香港", catalog.OtherRegion}; !reflect.DeepEqual(got, want) {
		t.Fatalf("region groups: got %v, want %v", got, want)
	}
	other := rg[1]
	if got, want := other.ExcludeFilter, regionOf(t, "香港").Pattern; got != want {
		t.Fatalf("exclude-filter: got %q, want %q", got, want)
	}
	if other.Filter != "" || !other.IncludeAll {
		t.Fatalf("catch-all selector unexpected: %+v", other)
	}
}

func TestGenerate_NothingKeptNoCatchAll(t *testing.T) {
	e := newEngine(t)
	cfg := e.Generate(proxies("HK-01"), Options{MinCount: 5, GroupType: model.GroupURLTest})

	if rg := regionGroups(t, cfg); len(rg) != 0 {
		t.Fatalf("want no region groups, got %v", groupNames(rg))
	}
	top := cfg.Groups[0]
	if top.Name != catalog.TopLevel {
		t.Fatalf("first group: got %q, want %q", top.Name, catalog.TopLevel)
	}
	if got, want := top.Proxies, []string{catalog.Manual, model.Direct}; !reflect.DeepEqual(got, want) {
		t.Fatalf("top-level members: got %v, want %v", got, want)
	}
}

func TestGenerate_OverrideBeatsDefault(t *testing.T) {
	e := newEngine(t)
	cfg := e.Generate(proxies("香港 01", "HK-02", "🇭🇰 03"), Options{
		GroupType: model.GroupURLTest,
		Overrides: Overrides{"香港": model.GroupSelect},
	})
	hk := findGroup(cfg, "香港")
	if hk == nil {
		t.Fatalf("香港 group missing")
	}
	if hk.Type != model.GroupSelect {
		t.Fatalf("type: got %q, want select", hk.Type)
	}
	if hk.HasHealthCheck() {
		t.Fatalf("select group must not carry health-check fields: %+v", hk)
	}
}

func TestGenerate_OverrideAppliesToCatchAll(t *testing.T) {
	e := newEngine(t)
	cfg := e.Generate(proxies("HK-01", "Mars-1"), Options{
		GroupType: model.GroupSelect,
		Overrides: Overrides{catalog.OtherRegion: model.GroupLoadBalance},
	})
	other := findGroup(cfg, catalog.OtherRegion)
	if other == nil || other.Type != model.GroupLoadBalance {
		t.Fatalf("catch-all: got %+v, want load-balance", other)
	}
	if hk := findGroup(cfg, "香港"); hk == nil || hk.Type != model.GroupSelect {
		t.Fatalf("香港: got %+v, want select", hk)
	}
}

func TestGenerate_InvalidDefaultFallsBack(t *testing.T) {
	e := newEngine(t)
	cfg := e.Generate(proxies("JP-1"), Options{GroupType: "fastest"})
	if jp := findGroup(cfg, "日本"); jp == nil || jp.Type != model.GroupURLTest {
		t.Fatalf("日本: got %+v, want url-test", jp)
	}
}

func TestGenerate_MultiMembership(t *testing.T) {
	stats, err := Classify(proxies("HK-US-01", "US-02"), catalog.Default().Regions)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	got := map[string]int{}
	for _, s := range stats {
		got[s.Name] = s.Count
	}
	if want := map[string]int{"香港": 1, "美国": 2}; !reflect.DeepEqual(got, want) {
		t.Fatalf("counts: got %v, want %v", got, want)
	}
}

func TestGenerate_DroppedRegionOverlappingKept(t *testing.T) {
	e := newEngine(t)
	// 日本 has one match and is dropped; its proxy also matches 香港, so it is
	// reachable only through 香港 and the catch-all is not emitted.
	cfg := e.Generate(proxies("HK-01", "HK-02", "HK-JP-03"), Options{MinCount: 2})
	if got, want := groupNames(regionGroups(t, cfg)), []string{"香港"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("region groups: got %v, want %v", got, want)
	}
}

func TestGenerate_DroppedRegionFallsIntoCatchAll(t *testing.T) {
	e := newEngine(t)
	cfg := e.Generate(proxies("HK-01", "HK-02", "SG-01"), Options{MinCount: 2})
	if got, want := groupNames(regionGroups(t, cfg)), []string{"香港", catalog.OtherRegion}; !reflect.DeepEqual(got, want) {
		t.Fatalf("region groups: got %v, want %v", got, want)
	}
}

func TestGenerate_EmptyNameIsUncovered(t *testing.T) {
	e := newEngine(t)
	cfg := e.Generate(proxies("", "HK-01"), Options{})
	if findGroup(cfg, catalog.OtherRegion) == nil {
		t.Fatalf("a nameless proxy matches no region and must trigger the catch-all")
	}
}

func TestGenerate_NoProxies(t *testing.T) {
	e := newEngine(t)
	cfg := e.Generate(nil, Options{})
	if rg := regionGroups(t, cfg); len(rg) != 0 {
		t.Fatalf("want no region groups, got %v", groupNames(rg))
	}
	if problems := CheckReferences(&cfg); len(problems) > 0 {
		t.Fatalf("dangling references: %v", problems)
	}
}

func TestGenerate_RegionCountProperty(t *testing.T) {
	e := newEngine(t)
	names := []string{"HK-1", "HK-2", "HK-3", "JP-1", "JP-2", "US-1", "SG-1", "Germany 1", "德国 2", "x"}
	for minCount := 0; minCount <= 4; minCount++ {
		stats, _ := Classify(proxies(names...), catalog.Default().Regions)
		want := 0
		for _, s := range stats {
			if s.Count >= minCount {
				want++
			}
		}
		cfg := e.Generate(proxies(names...), Options{MinCount: minCount})
		got := 0
		for _, g := range regionGroups(t, cfg) {
			if g.Name != catalog.OtherRegion {
				got++
			}
		}
		if got != want {
			t.Errorf("minCount=%d: got %d region groups, want %d", minCount, got, want)
		}
		if got > len(catalog.Default().Regions) {
			t.Errorf("minCount=%d: more region groups than regions", minCount)
		}
	}
}

func TestGenerate_Ordering(t *testing.T) {
	e := newEngine(t)
	in := proxies("US-1", "JP-1", "HK-1", "Nowhere")
	first := groupNamesOf(e.Generate(in, Options{}))
	second := groupNamesOf(e.Generate(in, Options{}))
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("group order not deterministic:\n%v\n%v", first, second)
	}

	want := []string{catalog.TopLevel, catalog.Manual, "香港", "日本", "美国", catalog.OtherRegion}
	for _, s := range catalog.Default().Services {
		want = append(want, s.Name)
	}
	if !reflect.DeepEqual(first, want) {
		t.Fatalf("group order:\ngot  %v\nwant %v", first, want)
	}
}

func groupNamesOf(cfg model.RoutingConfiguration) []string { return cfg.GroupNames() }

func TestAssemble_ServiceMembers(t *testing.T) {
	e := newEngine(t)
	cfg := e.Generate(proxies("HK-1", "Nowhere"), Options{})
	regions := []string{"香港", catalog.OtherRegion}

	proxyFirst := append(append([]string{catalog.TopLevel}, regions...), catalog.Manual, model.Direct)
	directFirst := append(append([]string{model.Direct, catalog.TopLevel}, regions...), catalog.Manual)

	cases := []struct {
		name string
		want []string
	}{
		{"OpenAI", proxyFirst},
		{"Final", proxyFirst},
		{"Apple", directFirst},
		{"国内网站", directFirst},
		{"广告拦截", []string{model.Reject, model.Direct}},
		{catalog.TopLevel, append(append([]string{}, regions...), catalog.Manual, model.Direct)},
	}
	for _, c := range cases {
		g := findGroup(cfg, c.name)
		if g == nil {
			t.Fatalf("group %q missing", c.name)
		}
		if g.Type != model.GroupSelect {
			t.Errorf("%s: type %q, want select", c.name, g.Type)
		}
		if !reflect.DeepEqual(g.Proxies, c.want) {
			t.Errorf("%s: members\ngot  %v\nwant %v", c.name, g.Proxies, c.want)
		}
	}

	manual := findGroup(cfg, catalog.Manual)
	if !manual.IncludeAll || manual.Filter != "" || len(manual.Proxies) != 0 {
		t.Fatalf("manual group must accept any proxy: %+v", manual)
	}
	if len(cfg.Rules) == 0 || cfg.Rules[len(cfg.Rules)-1] != "MATCH,Final" {
		t.Fatalf("rules must end with MATCH,Final: %v", cfg.Rules)
	}
	if cfg.Settings.Port != 7890 || cfg.Settings.ExternalController != "127.0.0.1:9090" {
		t.Fatalf("settings: %+v", cfg.Settings)
	}
}

func TestCheckReferences_Dangling(t *testing.T) {
	cfg := model.RoutingConfiguration{
		Groups: []model.ProxyGroup{
			{Name: "a", Type: model.GroupSelect, Proxies: []string{"b", model.Direct}},
			{Name: "a", Type: model.GroupSelect},
		},
		RuleProviders: []model.RuleProvider{{Name: "P"}},
		Rules: []string{
			"RULE-SET,P,a",
			"RULE-SET,Q,a",
			"DOMAIN,example.com,nope",
			"MATCH,a",
			"junk",
		},
	}
	problems := CheckReferences(&cfg)
	joined := strings.Join(problems, "\n")
	for _, want := range []string{
		`group "a" defined twice`,
		`member "b" not defined`,
		`rule-set "Q" not defined`,
		`target "nope" not defined`,
		`malformed "junk"`,
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing problem %q in:\n%s", want, joined)
		}
	}
	if len(problems) != 5 {
		t.Errorf("want 5 problems, got %d:\n%s", len(problems), joined)
	}
}

func TestCheckReferences_DuplicateReportedOnce(t *testing.T) {
	cfg := model.RoutingConfiguration{
		Groups: []model.ProxyGroup{{Name: "x"}, {Name: "x"}, {Name: "x"}, {Name: "y"}},
	}
	problems := CheckReferences(&cfg)
	if len(problems) != 1 || problems[0] != `group "x" defined twice` {
		t.Fatalf("got %q", problems)
	}
}

func TestNew_DefaultCatalog(t *testing.T) {
	eng, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cat := eng.Catalog()
	if cat == nil || len(cat.Regions) != len(catalog.Default().Regions) {
		t.Fatalf("engine must default to the built-in catalog")
	}
}

func TestNew_RejectsBadCatalog(t *testing.T) {
	cat := catalog.Default()
	cat.Regions = append(cat.Regions, model.Region{Name: "坏", Pattern: "(oops"})
	if _, err := New(cat, nil); err == nil {
		t.Fatalf("want error for invalid region pattern")
	}

	cat = catalog.Default()
	cat.Rules = append(cat.Rules, "RULE-SET,Missing,Final")
	if _, err := New(cat, nil); err == nil {
		t.Fatalf("want error for rule referencing an unknown provider")
	}
}

func TestApply_Document(t *testing.T) {
	e := newEngine(t)
	in := `
port: 1234
dns:
  enable: true
proxies:
  - { name: "HK-01", type: ss }
  - { name: "Unknown-02", type: ss }
  - { type: ss }
proxy-groups:
  - { name: old, type: select, proxies: [DIRECT] }
`
	doc, err := document.Parse([]byte(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res, err := e.Apply(doc, Options{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Proxies != 3 || res.RegionGroups != 2 {
		t.Fatalf("result: %+v", res)
	}

	keys := doc.Keys()
	if keys[0] != "port" || keys[1] != "dns" || keys[2] != "proxies" || keys[3] != "proxy-groups" {
		t.Fatalf("existing keys must keep their position: %v", keys)
	}
	if got := doc.Get("port").Value; got != "7890" {
		t.Fatalf("port: got %q, want 7890", got)
	}

	out, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	s := string(out)
	for _, want := range []string{"name: 其他地区", "exclude-filter:", "Advertising:", "- MATCH,Final", "enable: true"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, "name: old") {
		t.Errorf("old proxy-groups must be replaced:\n%s", s)
	}
}

func TestApply_MissingProxies(t *testing.T) {
	e := newEngine(t)
	doc, err := document.Parse([]byte("mode: global\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := e.Apply(doc, Options{}); !errors.Is(err, document.ErrNoProxies) {
		t.Fatalf("want ErrNoProxies, got %v", err)
	}
}
