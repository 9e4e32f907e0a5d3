package overwrite

import "github.com/fabian4/overwrite-homebrew-go/internal/model"

// Overrides maps a group display name to a forced behavior. An entry with an
// unknown behavior is ignored.
type Overrides map[string]model.GroupType

// Behavior is the effective selection behavior of one group.
type Behavior struct {
	Type        model.GroupType
	HealthCheck *model.HealthCheck // set only for url-test
}

// Resolve picks the override for name when it is valid, else def. An invalid
// def falls back to model.DefaultGroupType.
func Resolve(name string, def model.GroupType, ov Overrides) Behavior {
	t, ok := model.ParseGroupType(string(ov[name]))
	if !ok {
		t, ok = model.ParseGroupType(string(def))
	}
	if !ok {
		t = model.DefaultGroupType
	}
	b := Behavior{Type: t}
	if t == model.GroupURLTest {
		hc := model.DefaultHealthCheck
		b.HealthCheck = &hc
	}
	return b
}

// apply writes the behavior onto g.
func (b Behavior) apply(g *model.ProxyGroup) {
	g.Type = b.Type
	if b.HealthCheck != nil {
		g.SetHealthCheck(*b.HealthCheck)
	}
}
