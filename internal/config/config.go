package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fabian4/overwrite-homebrew-go/internal/model"
)

// knobsYAML holds optional tunables; nil/empty means "inherit".
type knobsYAML struct {
	MinCount      *int   `yaml:"min_count"`
	GroupType     string `yaml:"group_type"`
	GroupOverride string `yaml:"group_override"`
}

type rawConfig struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`
	Metrics  struct {
		Address string `yaml:"address"`
	} `yaml:"metrics"`
	Defaults  knobsYAML `yaml:"defaults"`
	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Timeouts struct {
		Read     string `yaml:"read"`
		Write    string `yaml:"write"`
		Upstream string `yaml:"upstream"`
	} `yaml:"timeouts"`
	AccessLog struct {
		Enabled *bool    `yaml:"enabled"`
		Fields  []string `yaml:"fields"`
	} `yaml:"access_log"`
	Profiles []struct {
		Name  string `yaml:"name"`
		Match struct {
			Host       string `yaml:"host"`
			PathPrefix string `yaml:"path_prefix"`
		} `yaml:"match"`
		Sources       []any  `yaml:"sources"`
		MinCount      *int   `yaml:"min_count"`
		GroupType     string `yaml:"group_type"`
		GroupOverride string `yaml:"group_override"`
	} `yaml:"profiles"`
}

type Config struct {
	Listen    string
	LogLevel  string
	Metrics   MetricsConfig
	Defaults  Knobs
	RateLimit RateLimitConfig
	Timeouts  Timeouts
	AccessLog AccessLogConfig
	Profiles  []Profile
}

// Paths owned by the service itself; profiles may not shadow them.
var reservedPaths = []string{"/convert", "/healthz", "/metrics"}

var accessLogFields = map[string]bool{
	"time": true, "method": true, "path": true, "status": true, "duration_ms": true,
	"remote_ip": true, "user_agent": true, "profile": true, "source": true,
	"proxies": true, "region_groups": true, "bytes_written": true,
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	var rc rawConfig
	if err := yaml.Unmarshal(b, &rc); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}

	// listen
	listen := ":8080"
	if s := strings.TrimSpace(rc.Listen); s != "" {
		listen = s
	}

	logLevel := strings.ToLower(strings.TrimSpace(rc.LogLevel))
	if logLevel == "" {
		logLevel = "info"
	}

	// defaults
	defaults, err := applyKnobs(DefaultKnobs(), rc.Defaults)
	if err != nil {
		return nil, fmt.Errorf("defaults: %v", err)
	}

	// rate limit
	if rc.RateLimit.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("rate_limit.requests_per_second: must not be negative")
	}
	rl := RateLimitConfig{RequestsPerSecond: rc.RateLimit.RequestsPerSecond, Burst: rc.RateLimit.Burst}
	if rl.RequestsPerSecond > 0 && rl.Burst <= 0 {
		rl.Burst = 1
	}

	// access log
	alc := AccessLogConfig{Enabled: true}
	if rc.AccessLog.Enabled != nil {
		alc.Enabled = *rc.AccessLog.Enabled
	}
	for i, f := range rc.AccessLog.Fields {
		f = strings.TrimSpace(f)
		if !accessLogFields[f] {
			return nil, fmt.Errorf("access_log.fields[%d]: unknown field %q", i, f)
		}
		alc.Fields = append(alc.Fields, f)
	}

	// profiles
	var profiles []Profile
	seen := make(map[string]bool)
	for i, p := range rc.Profiles {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("profiles[%d]: name is required", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("profiles: duplicate name %q", name)
		}
		seen[name] = true

		pfx := strings.TrimSpace(p.Match.PathPrefix)
		if pfx == "" {
			pfx = "/sub/" + name
		}
		if !strings.HasPrefix(pfx, "/") {
			return nil, fmt.Errorf("profiles[%d]: path_prefix must start with '/'", i)
		}
		if pfx == "/" {
			return nil, fmt.Errorf("profiles[%d]: path_prefix must not be the root", i)
		}
		for _, r := range reservedPaths {
			if pfx == r || strings.HasPrefix(pfx, r+"/") {
				return nil, fmt.Errorf("profiles[%d]: path_prefix %q shadows %s", i, pfx, r)
			}
		}

		sources, err := parseSources(p.Sources)
		if err != nil {
			return nil, fmt.Errorf("profiles[%d].%v", i, err)
		}
		knobs, err := applyKnobs(defaults, knobsYAML{
			MinCount:      p.MinCount,
			GroupType:     p.GroupType,
			GroupOverride: p.GroupOverride,
		})
		if err != nil {
			return nil, fmt.Errorf("profiles[%d]: %v", i, err)
		}
		profiles = append(profiles, Profile{
			Name:       name,
			Host:       strings.ToLower(strings.TrimSpace(p.Match.Host)),
			PathPrefix: pfx,
			Sources:    sources,
			Knobs:      knobs,
		})
	}
	// deterministic order: host asc ("" last), then longer prefix first
	sort.SliceStable(profiles, func(i, j int) bool {
		hi := profiles[i].Host
		hj := profiles[j].Host
		if hi == "" {
			hi = "~"
		}
		if hj == "" {
			hj = "~"
		}
		if hi == hj {
			return len(profiles[i].PathPrefix) > len(profiles[j].PathPrefix)
		}
		return hi < hj
	})

	// timeouts
	timeouts := Timeouts{Read: 10 * time.Second, Write: 30 * time.Second, Upstream: 15 * time.Second}
	for _, t := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"read", rc.Timeouts.Read, &timeouts.Read},
		{"write", rc.Timeouts.Write, &timeouts.Write},
		{"upstream", rc.Timeouts.Upstream, &timeouts.Upstream},
	} {
		if t.raw == "" {
			continue
		}
		d, err := time.ParseDuration(t.raw)
		if err != nil {
			return nil, fmt.Errorf("timeouts.%s: %v", t.name, err)
		}
		*t.dst = d
	}

	return &Config{
		Listen:    listen,
		LogLevel:  logLevel,
		Metrics:   MetricsConfig{Address: strings.TrimSpace(rc.Metrics.Address)},
		Defaults:  defaults,
		RateLimit: rl,
		Timeouts:  timeouts,
		AccessLog: alc,
		Profiles:  profiles,
	}, nil
}

// applyKnobs is strict, unlike Knobs.Merge: a config file with a bad
// group_type is rejected rather than silently defaulted.
func applyKnobs(base Knobs, k knobsYAML) (Knobs, error) {
	out := base
	if k.MinCount != nil {
		out.MinCount = *k.MinCount
	}
	if s := strings.TrimSpace(k.GroupType); s != "" {
		t, ok := model.ParseGroupType(s)
		if !ok {
			return Knobs{}, fmt.Errorf("group_type: unknown %q", s)
		}
		out.GroupType = t
	}
	if strings.TrimSpace(k.GroupOverride) != "" {
		out.Overrides = ParseOverrides(k.GroupOverride)
	}
	return out, nil
}

func parseSources(raw []any) ([]model.Source, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("sources: at least one is required")
	}
	var out []model.Source
	for j, r := range raw {
		var rawURL string
		weight := 1

		switch v := r.(type) {
		case string:
			rawURL = v
		case map[string]any:
			if u, ok := v["url"].(string); ok {
				rawURL = u
			}
			if w, ok := v["weight"].(int); ok {
				weight = w
			}
		default:
			return nil, fmt.Errorf("sources[%d]: invalid format", j)
		}

		u, err := url.Parse(strings.TrimSpace(rawURL))
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: parse: %v", j, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("sources[%d]: must be http(s) URL with host", j)
		}
		if weight <= 0 {
			return nil, fmt.Errorf("sources[%d]: weight must be positive", j)
		}
		out = append(out, model.Source{URL: u, Weight: weight})
	}
	return out, nil
}
