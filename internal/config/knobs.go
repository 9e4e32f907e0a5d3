package config

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/fabian4/overwrite-homebrew-go/internal/model"
	"github.com/fabian4/overwrite-homebrew-go/internal/overwrite"
)

// Request argument names, shared by the HTTP API and the profile config.
const (
	ArgMinCount      = "minCount"
	ArgGroupType     = "groupType"
	ArgGroupOverride = "groupOverride"
)

// Knobs are the user tunables of one conversion.
type Knobs struct {
	MinCount  int
	GroupType model.GroupType
	Overrides overwrite.Overrides
}

// DefaultKnobs keeps every matched region and health-checks region groups.
func DefaultKnobs() Knobs {
	return Knobs{GroupType: model.DefaultGroupType, Overrides: overwrite.Overrides{}}
}

// Options converts k for the engine.
func (k Knobs) Options() overwrite.Options {
	return overwrite.Options{MinCount: k.MinCount, GroupType: k.GroupType, Overrides: k.Overrides}
}

// Merge overlays request arguments on k. Unparseable values keep k's value;
// a groupOverride argument replaces the whole override table.
func (k Knobs) Merge(args map[string]string) Knobs {
	out := k
	if raw, ok := args[ArgMinCount]; ok {
		out.MinCount = ParseMinCount(raw, k.MinCount)
	}
	if raw, ok := args[ArgGroupType]; ok {
		if t, valid := model.ParseGroupType(raw); valid {
			out.GroupType = t
		}
	}
	if raw, ok := args[ArgGroupOverride]; ok {
		out.Overrides = ParseOverrides(raw)
	}
	return out
}

// ParseMinCount reads a leading base-10 integer ("3", " -1", "4abc").
// Anything without leading digits yields def; out-of-range values clamp.
func ParseMinCount(raw string, def int) int {
	s := strings.TrimSpace(raw)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return def
	}
	n, err := strconv.Atoi(s[:end])
	switch {
	case errors.Is(err, strconv.ErrRange) && s[0] == '-':
		return math.MinInt
	case errors.Is(err, strconv.ErrRange):
		return math.MaxInt
	case err != nil:
		return def
	}
	return n
}

// ParseOverrides reads "name:type,name:type". Pairs with an empty name or an
// unknown type are dropped without error.
func ParseOverrides(raw string) overwrite.Overrides {
	out := overwrite.Overrides{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.Split(pair, ":")
		name := strings.TrimSpace(parts[0])
		if name == "" || len(parts) < 2 {
			continue
		}
		t, ok := model.ParseGroupType(parts[1])
		if !ok {
			continue
		}
		out[name] = t
	}
	return out
}
