package config

import (
	"time"

	"github.com/fabian4/overwrite-homebrew-go/internal/model"
)

// Profile is a named subscription endpoint served by the converter.
type Profile struct {
	Name       string
	Host       string         // empty => wildcard
	PathPrefix string         // must start with "/"
	Sources    []model.Source // upstream mirrors, non-empty
	Knobs      Knobs          // defaults merged with the profile's own values
}

// RateLimitConfig limits requests per client IP. Zero RequestsPerSecond disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Upstream time.Duration
}

type MetricsConfig struct {
	Address string // empty => served on the main listener
}

type AccessLogConfig struct {
	Enabled bool
	Fields  []string // empty => all fields
}
