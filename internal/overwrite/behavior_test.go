package overwrite

import (
	"reflect"
	"testing"

	"github.com/fabian4/overwrite-homebrew-go/internal/model"
)

func TestResolve(t *testing.T) {
	ov := Overrides{"香港": model.GroupSelect, "美国": model.GroupLoadBalance}
	bogus := Overrides{"香港": "bogus"}

	cases := []struct {
		name    string
		def     model.GroupType
		ov      Overrides
		want    model.GroupType
		checked bool
	}{
		{"香港", model.GroupURLTest, ov, model.GroupSelect, false},
		{"美国", model.GroupSelect, ov, model.GroupLoadBalance, false},
		{"日本", model.GroupURLTest, ov, model.GroupURLTest, true},
		{"日本", model.GroupSelect, ov, model.GroupSelect, false},
		{"日本", "", ov, model.GroupURLTest, true},
		{"香港", model.GroupSelect, bogus, model.GroupSelect, false},
		{"香港", "", bogus, model.GroupURLTest, true},
		{"日本", model.GroupLoadBalance, nil, model.GroupLoadBalance, false},
	}
	for _, c := range cases {
		b := Resolve(c.name, c.def, c.ov)
		if b.Type != c.want {
			t.Errorf("Resolve(%q, %q): type %q, want %q", c.name, c.def, b.Type, c.want)
		}
		if got := b.HealthCheck != nil; got != c.checked {
			t.Errorf("Resolve(%q, %q): health check present=%v, want %v", c.name, c.def, got, c.checked)
		}
		if b.HealthCheck != nil && *b.HealthCheck != model.DefaultHealthCheck {
			t.Errorf("Resolve(%q): health check %+v, want shared default", c.name, *b.HealthCheck)
		}
	}
}

func TestBuildRegionGroups_Direct(t *testing.T) {
	stats := []model.RegionStat{
		{Region: model.Region{Name: "A", Pattern: "A|a1"}, Count: 3},
		{Region: model.Region{Name: "B", Pattern: "B"}, Count: 1},
	}
	other := CatchAll{Name: "rest", Icon: "i"}

	gs, err := BuildRegionGroups(proxies("A-1", "a1", "B-1", "zzz"), stats, Options{MinCount: 1, GroupType: model.GroupSelect}, other)
	if err != nil {
		t.Fatalf("BuildRegionGroups: %v", err)
	}
	if got, want := groupNames(gs), []string{"A", "B", "rest"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("groups: got %v, want %v", got, want)
	}
	if got, want := gs[2].ExcludeFilter, "A|a1|B"; got != want {
		t.Fatalf("exclude-filter: got %q, want %q", got, want)
	}
	if gs[2].Icon != "i" {
		t.Fatalf("catch-all icon: got %q", gs[2].Icon)
	}

	gs, err = BuildRegionGroups(proxies("A-1", "B-1", "zzz"), stats, Options{MinCount: 2}, other)
	if err != nil {
		t.Fatalf("BuildRegionGroups: %v", err)
	}
	if got, want := groupNames(gs), []string{"A", "rest"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("groups: got %v, want %v", got, want)
	}
	if got, want := gs[1].ExcludeFilter, "A|a1"; got != want {
		t.Fatalf("exclude-filter: got %q, want %q", got, want)
	}

	gs, err = BuildRegionGroups(proxies("zzz"), stats, Options{MinCount: 10}, other)
	if err != nil {
		t.Fatalf("BuildRegionGroups: %v", err)
	}
	if len(gs) != 0 {
		t.Fatalf("no region kept: want no groups, got %v", groupNames(gs))
	}
}
