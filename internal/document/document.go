// Package document edits a mihomo configuration document in place.
//
// The document is kept as a yaml.Node tree so keys the engine does not own
// (dns, tun, proxies, ...) survive a round trip untouched and in order.
package document

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/fabian4/overwrite-homebrew-go/internal/model"
)

// Keys written by SetRouting.
const (
	KeyProxies       = "proxies"
	KeyProxyGroups   = "proxy-groups"
	KeyRuleProviders = "rule-providers"
	KeyRules         = "rules"
)

// ErrNoProxies is returned when the document carries no proxies key at all.
var ErrNoProxies = errors.New("document has no proxies list")

type Document struct {
	root *yaml.Node // mapping node
}

// Parse decodes b. Empty input yields an empty document.
func Parse(b []byte) (*Document, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return &Document{root: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}, nil
	}
	root := resolve(doc.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("yaml: top level must be a mapping, got %s", kindName(root.Kind))
	}
	return &Document{root: root}, nil
}

// Proxies returns the proxy list in document order. Entries that are not
// mappings, or whose name is missing or not a string, get an empty name.
func (d *Document) Proxies() ([]model.Proxy, error) {
	n := d.Get(KeyProxies)
	if n == nil {
		return nil, ErrNoProxies
	}
	switch {
	case n.Kind == yaml.ScalarNode && n.Tag == "!!null":
		return []model.Proxy{}, nil
	case n.Kind != yaml.SequenceNode:
		return nil, fmt.Errorf("%s: must be a list, got %s", KeyProxies, kindName(n.Kind))
	}
	out := make([]model.Proxy, 0, len(n.Content))
	for _, item := range n.Content {
		out = append(out, model.Proxy{Name: nameOf(resolve(item))})
	}
	return out, nil
}

func nameOf(n *yaml.Node) string {
	if n.Kind != yaml.MappingNode {
		return ""
	}
	v := lookup(n, "name")
	if v == nil || v.Kind != yaml.ScalarNode || v.Tag != "!!str" {
		return ""
	}
	return v.Value
}

// Get returns the value node for key, or nil.
func (d *Document) Get(key string) *yaml.Node {
	return lookup(d.root, key)
}

// Keys lists top-level keys in document order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.root.Content)/2)
	for i := 0; i+1 < len(d.root.Content); i += 2 {
		keys = append(keys, d.root.Content[i].Value)
	}
	return keys
}

// Set encodes v and stores it under key.
func (d *Document) Set(key string, v any) error {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	d.SetNode(key, &n)
	return nil
}

// SetNode replaces the value of an existing key in place, or appends key.
func (d *Document) SetNode(key string, value *yaml.Node) {
	c := d.root.Content
	for i := 0; i+1 < len(c); i += 2 {
		if c[i].Value == key {
			c[i+1] = value
			return
		}
	}
	d.root.Content = append(c,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}

// SetRouting overwrites the global settings keys and replaces the group list,
// the rule providers and the rules.
func (d *Document) SetRouting(cfg *model.RoutingConfiguration) error {
	var settings yaml.Node
	if err := settings.Encode(cfg.Settings); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	for i := 0; i+1 < len(settings.Content); i += 2 {
		d.SetNode(settings.Content[i].Value, settings.Content[i+1])
	}

	if err := d.Set(KeyProxyGroups, cfg.Groups); err != nil {
		return err
	}
	providers, err := providersNode(cfg.RuleProviders)
	if err != nil {
		return err
	}
	d.SetNode(KeyRuleProviders, providers)
	return d.Set(KeyRules, cfg.Rules)
}

// providersNode keeps catalog order; a Go map would be emitted sorted.
func providersNode(ps []model.RuleProvider) (*yaml.Node, error) {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, p := range ps {
		var v yaml.Node
		if err := v.Encode(p); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", KeyRuleProviders, p.Name, err)
		}
		m.Content = append(m.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Name},
			&v,
		)
	}
	return m, nil
}

// Bytes encodes the document with two-space indentation.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.root); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return resolve(m.Content[i+1])
		}
	}
	return nil
}

func resolve(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "list"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "unknown"
}
