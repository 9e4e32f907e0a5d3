package overwrite

import (
	"github.com/samber/lo"

	"github.com/fabian4/overwrite-homebrew-go/internal/catalog"
	"github.com/fabian4/overwrite-homebrew-go/internal/model"
)

// Assemble builds the final group graph around regionGroups:
//
//	top-level selector, manual group, region groups..., service groups...
//
// and attaches the catalog's rule providers, rules and global settings.
func Assemble(regionGroups []model.ProxyGroup, cat *catalog.Catalog) model.RoutingConfiguration {
	regionNames := lo.Map(regionGroups, func(g model.ProxyGroup, _ int) string { return g.Name })

	groups := make([]model.ProxyGroup, 0, 2+len(regionGroups)+len(cat.Services))
	groups = append(groups,
		model.ProxyGroup{
			Name:    catalog.TopLevel,
			Type:    model.GroupSelect,
			Icon:    cat.TopLevelIcon,
			Proxies: lo.Flatten([][]string{regionNames, {catalog.Manual, model.Direct}}),
		},
		model.ProxyGroup{
			Name:       catalog.Manual,
			Type:       model.GroupSelect,
			Icon:       cat.ManualIcon,
			IncludeAll: true,
		},
	)
	groups = append(groups, regionGroups...)
	for _, s := range cat.Services {
		groups = append(groups, model.ProxyGroup{
			Name:    s.Name,
			Type:    model.GroupSelect,
			Icon:    s.Icon,
			Proxies: serviceMembers(s.Order, regionNames),
		})
	}

	return model.RoutingConfiguration{
		Settings:      cat.Settings,
		Groups:        groups,
		RuleProviders: append([]model.RuleProvider(nil), cat.Providers...),
		Rules:         append([]string(nil), cat.Rules...),
	}
}

func serviceMembers(order model.ServiceOrder, regionNames []string) []string {
	switch order {
	case model.DirectFirst:
		return lo.Flatten([][]string{{model.Direct, catalog.TopLevel}, regionNames, {catalog.Manual}})
	case model.Block:
		return []string{model.Reject, model.Direct}
	default:
		return lo.Flatten([][]string{{catalog.TopLevel}, regionNames, {catalog.Manual, model.Direct}})
	}
}
