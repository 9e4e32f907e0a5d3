package overwrite

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/fabian4/overwrite-homebrew-go/internal/model"
)

// CheckReferences lists every name the configuration uses but does not
// define: group members, rule targets and RULE-SET providers. Duplicate group
// names are reported too. An empty result means the graph is closed.
func CheckReferences(cfg *model.RoutingConfiguration) []string {
	var problems []string

	names := cfg.GroupNames()
	for _, n := range lo.FindDuplicates(names) {
		problems = append(problems, fmt.Sprintf("group %q defined twice", n))
	}
	groups := make(map[string]bool, len(names))
	for _, n := range names {
		groups[n] = true
	}
	resolves := func(name string) bool {
		return groups[name] || name == model.Direct || name == model.Reject
	}

	for _, g := range cfg.Groups {
		for _, m := range g.Proxies {
			if !resolves(m) {
				problems = append(problems, fmt.Sprintf("group %q: member %q not defined", g.Name, m))
			}
		}
	}

	providers := make(map[string]bool, len(cfg.RuleProviders))
	for _, p := range cfg.RuleProviders {
		providers[p.Name] = true
	}
	for i, r := range cfg.Rules {
		kind, value, target, ok := splitRule(r)
		if !ok {
			problems = append(problems, fmt.Sprintf("rules[%d]: malformed %q", i, r))
			continue
		}
		if kind == "RULE-SET" && !providers[value] {
			problems = append(problems, fmt.Sprintf("rules[%d]: rule-set %q not defined", i, value))
		}
		if !resolves(target) {
			problems = append(problems, fmt.Sprintf("rules[%d]: target %q not defined", i, target))
		}
	}
	return problems
}

// splitRule parses KIND,VALUE,TARGET[,MODIFIER...]; MATCH has no value.
func splitRule(r string) (kind, value, target string, ok bool) {
	parts := strings.Split(r, ",")
	if len(parts) == 2 && parts[0] == "MATCH" {
		return parts[0], "", parts[1], true
	}
	if len(parts) < 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
