package version

import "strings"

// Set with -ldflags "-X github.com/fabian4/overwrite-homebrew-go/internal/version.Value=..."
var (
	Value     = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func normalized(value, fallback string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return fallback
	}
	return v
}

func BuildInfo() string {
	return "overwrite-homebrew-go/" + normalized(Value, "dev") +
		" commit=" + normalized(Commit, "unknown") +
		" build=" + normalized(BuildTime, "unknown")
}
