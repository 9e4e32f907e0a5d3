package model

import (
	"net/url"
	"strings"
)

// Reserved terminal actions understood by the client without a group definition.
const (
	Direct = "DIRECT"
	Reject = "REJECT"
)

// GroupType is the selection behavior of a proxy group.
type GroupType string

const (
	GroupSelect      GroupType = "select"       // manual choice
	GroupURLTest     GroupType = "url-test"     // automatic, lowest latency
	GroupLoadBalance GroupType = "load-balance" // spread across members
)

// DefaultGroupType applies when no valid behavior was supplied.
const DefaultGroupType = GroupURLTest

// ParseGroupType accepts exactly one of the three behavior tokens.
func ParseGroupType(s string) (GroupType, bool) {
	switch t := GroupType(strings.TrimSpace(s)); t {
	case GroupSelect, GroupURLTest, GroupLoadBalance:
		return t, true
	}
	return "", false
}

// HealthCheck is attached to every url-test group.
type HealthCheck struct {
	URL       string
	Interval  int // seconds
	Tolerance int // milliseconds
	Lazy      bool
}

// DefaultHealthCheck is shared by all url-test groups; it is not user-configurable.
var DefaultHealthCheck = HealthCheck{
	URL:       "https://cp.cloudflare.com/generate_204",
	Interval:  300,
	Tolerance: 50,
	Lazy:      false,
}

// Proxy is an input endpoint. Only the name takes part in classification.
type Proxy struct {
	Name string
}

// Region is one entry of the pattern catalog.
type Region struct {
	Name    string // display name, also the group name
	Pattern string // alternation pattern matched against proxy names
	Icon    string
}

// RegionStat is a Region with the number of proxies its pattern matched.
type RegionStat struct {
	Region
	Count int
}

// ProxyGroup mirrors a mihomo proxy-groups entry.
type ProxyGroup struct {
	Name          string    `yaml:"name"`
	Type          GroupType `yaml:"type"`
	IncludeAll    bool      `yaml:"include-all,omitempty"`
	Icon          string    `yaml:"icon,omitempty"`
	Filter        string    `yaml:"filter,omitempty"`
	ExcludeFilter string    `yaml:"exclude-filter,omitempty"`
	Proxies       []string  `yaml:"proxies,omitempty"`
	URL           string    `yaml:"url,omitempty"`
	Interval      int       `yaml:"interval,omitempty"`
	Tolerance     int       `yaml:"tolerance,omitempty"`
	Lazy          *bool     `yaml:"lazy,omitempty"`
}

// SetHealthCheck copies hc into the group's health check fields.
func (g *ProxyGroup) SetHealthCheck(hc HealthCheck) {
	lazy := hc.Lazy
	g.URL = hc.URL
	g.Interval = hc.Interval
	g.Tolerance = hc.Tolerance
	g.Lazy = &lazy
}

// HasHealthCheck reports whether any health check field is set.
func (g *ProxyGroup) HasHealthCheck() bool {
	return g.URL != "" || g.Interval != 0 || g.Tolerance != 0 || g.Lazy != nil
}

// ServiceOrder decides the member list of a service group.
type ServiceOrder int

const (
	ProxyFirst  ServiceOrder = iota // [top, regions..., manual, DIRECT]
	DirectFirst                     // [DIRECT, top, regions..., manual]
	Block                           // [REJECT, DIRECT]
)

// ServiceGroup is a static service-oriented group definition.
type ServiceGroup struct {
	Name  string
	Icon  string
	Order ServiceOrder
}

// RuleProvider is a remote rule-set descriptor, passed through unchanged.
type RuleProvider struct {
	Name     string `yaml:"-"`
	Type     string `yaml:"type"`
	Behavior string `yaml:"behavior"`
	Format   string `yaml:"format"`
	Interval int    `yaml:"interval"`
	URL      string `yaml:"url"`
	Path     string `yaml:"path"`
}

// Settings are the global client keys overwritten on every run.
type Settings struct {
	Port               int    `yaml:"port"`
	SocksPort          int    `yaml:"socks-port"`
	AllowLan           bool   `yaml:"allow-lan"`
	Mode               string `yaml:"mode"`
	LogLevel           string `yaml:"log-level"`
	ExternalController string `yaml:"external-controller"`
}

// RoutingConfiguration is the generated part of the output document.
type RoutingConfiguration struct {
	Settings      Settings
	Groups        []ProxyGroup
	RuleProviders []RuleProvider
	Rules         []string
}

// GroupNames returns group names in list order.
func (c *RoutingConfiguration) GroupNames() []string {
	out := make([]string, len(c.Groups))
	for i := range c.Groups {
		out[i] = c.Groups[i].Name
	}
	return out
}

// Source is an upstream subscription mirror of a profile.
type Source struct {
	URL    *url.URL
	Weight int // 0 means default (1)
}
