package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	cfg "github.com/fabian4/overwrite-homebrew-go/internal/config"
	"github.com/fabian4/overwrite-homebrew-go/internal/model"
	"github.com/fabian4/overwrite-homebrew-go/internal/overwrite"
	"github.com/fabian4/overwrite-homebrew-go/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to service YAML config; enables serve mode")
	in := flag.String("in", "-", "input document, - for stdin")
	out := flag.String("out", "-", "output document, - for stdout")
	minCount := flag.Int("min-count", 0, "minimum endpoints for a region group")
	groupType := flag.String("group-type", "url-test", "default region group type: select, url-test or load-balance")
	groupOverride := flag.String("group-override", "", `per-group types, e.g. "香港:select,美国:load-balance"`)
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.BuildInfo())
		return
	}

	if *configPath != "" {
		if err := serve(*configPath); err != nil {
			logrus.Fatalln(err)
		}
		return
	}

	setLogLevel("")
	eng, err := overwrite.New(nil, logrus.StandardLogger())
	if err != nil {
		logrus.Fatalln("engine:", err)
	}

	// Only flags given on the command line override the defaults.
	args := map[string]string{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "min-count":
			args[cfg.ArgMinCount] = strconv.Itoa(*minCount)
		case "group-type":
			args[cfg.ArgGroupType] = *groupType
		case "group-override":
			args[cfg.ArgGroupOverride] = *groupOverride
		}
	})
	knobs := cfg.DefaultKnobs().Merge(args)
	if raw, ok := args[cfg.ArgGroupType]; ok {
		if _, valid := model.ParseGroupType(raw); !valid {
			logrus.Warnf("unknown group type %q, using %s", raw, knobs.GroupType)
		}
	}

	if err := convertFile(eng, *in, *out, knobs); err != nil {
		logrus.Fatalln(err)
	}
}

// setLogLevel prefers LOG_LEVEL over the configured level.
func setLogLevel(configured string) {
	lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		lvl, err = logrus.ParseLevel(configured)
		if err != nil {
			lvl = logrus.InfoLevel
		}
	}
	logrus.SetLevel(lvl)
}
