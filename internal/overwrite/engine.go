// Package overwrite turns a proxy list into a complete routing configuration:
// region groups derived from proxy names, a manual group, service groups,
// rule providers and rules.
//
// Every run is a pure function of its inputs. An Engine only holds the
// read-only catalog and its compiled patterns, so it is safe for concurrent use.
package overwrite

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fabian4/overwrite-homebrew-go/internal/catalog"
	"github.com/fabian4/overwrite-homebrew-go/internal/document"
	"github.com/fabian4/overwrite-homebrew-go/internal/match"
	"github.com/fabian4/overwrite-homebrew-go/internal/model"
)

type Engine struct {
	cat     *catalog.Catalog
	regions []compiledRegion
	byName  map[string]match.Matcher
	log     logrus.FieldLogger
}

// New compiles the catalog's region patterns and checks that the static part
// of the group graph is closed. log may be nil.
func New(cat *catalog.Catalog, log logrus.FieldLogger) (*Engine, error) {
	if cat == nil {
		cat = catalog.Default()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	crs, err := compileRegions(cat.Regions)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	e := &Engine{
		cat:     cat,
		regions: crs,
		byName:  make(map[string]match.Matcher, len(crs)),
		log:     log,
	}
	for _, r := range crs {
		e.byName[r.Name] = r.m
	}

	// rules and service groups never depend on which regions survive, so an
	// empty run exercises every static reference.
	dry := e.Generate(nil, Options{GroupType: model.DefaultGroupType})
	if problems := CheckReferences(&dry); len(problems) > 0 {
		return nil, fmt.Errorf("catalog: %s", strings.Join(problems, "; "))
	}
	return e, nil
}

// Catalog returns the tables the engine was built with.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// Generate runs classification, region group synthesis and assembly.
func (e *Engine) Generate(proxies []model.Proxy, opts Options) model.RoutingConfiguration {
	stats := classify(proxies, e.regions)

	var kept []match.Matcher
	for _, s := range stats {
		if s.Count >= opts.MinCount {
			kept = append(kept, e.byName[s.Name])
		}
	}
	regionGroups := buildRegionGroups(proxies, stats, kept, opts,
		CatchAll{Name: catalog.OtherRegion, Icon: e.cat.OtherRegionIcon})

	cfg := Assemble(regionGroups, e.cat)
	e.log.WithFields(logrus.Fields{
		"proxies":       len(proxies),
		"regions":       len(stats),
		"region_groups": len(regionGroups),
		"groups":        len(cfg.Groups),
		"min_count":     opts.MinCount,
		"group_type":    opts.GroupType,
	}).Debug("routing configuration generated")
	return cfg
}

// Result summarizes one Apply call.
type Result struct {
	Proxies      int
	RegionGroups int
	Groups       int
	Duration     time.Duration
}

// Apply reads the proxy list from doc and writes the generated configuration
// back into it. A document without a proxies key yields document.ErrNoProxies.
func (e *Engine) Apply(doc *document.Document, opts Options) (Result, error) {
	start := time.Now()
	proxies, err := doc.Proxies()
	if err != nil {
		return Result{}, err
	}
	cfg := e.Generate(proxies, opts)
	if err := doc.SetRouting(&cfg); err != nil {
		return Result{}, err
	}
	return Result{
		Proxies:      len(proxies),
		RegionGroups: len(cfg.Groups) - 2 - len(e.cat.Services),
		Groups:       len(cfg.Groups),
		Duration:     time.Since(start),
	}, nil
}

// Convert is Parse, Apply and Bytes in one step.
func (e *Engine) Convert(in []byte, opts Options) ([]byte, Result, error) {
	doc, err := document.Parse(in)
	if err != nil {
		return nil, Result{}, err
	}
	res, err := e.Apply(doc, opts)
	if err != nil {
		return nil, Result{}, err
	}
	out, err := doc.Bytes()
	if err != nil {
		return nil, Result{}, err
	}
	return out, res, nil
}
