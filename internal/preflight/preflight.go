package preflight

import (
	"errors"
	"fmt"
	"strings"

	"spotrip/internal/config"
	"spotrip/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Fatal  bool
	Detail string
}

// RunAll executes the startup checks for the given config. Directories are
// created first so a fresh install does not fail on a missing output folder.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	var results []Result
	results = append(results, CheckEncoder(cfg))

	if err := cfg.EnsureDirectories(); err != nil {
		results = append(results, Result{Name: "Directories", Fatal: true, Detail: err.Error()})
		return results
	}
	results = append(results, withFatal(CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir)))
	results = append(results, withFatal(CheckDirectoryAccess("Settings directory", cfg.Paths.SettingsDir)))
	return results
}

// Err folds fatal failures into one configuration error, or nil when the run
// may proceed.
func Err(results []Result) error {
	var details []string
	for _, r := range results {
		if r.Passed || !r.Fatal {
			continue
		}
		details = append(details, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	if len(details) == 0 {
		return nil
	}
	marker := services.ErrConfiguration
	for _, r := range results {
		if r.Name == "Encoder" && !r.Passed {
			marker = services.ErrEncoderSpawn
		}
	}
	return services.Wrap(marker, "preflight", "", strings.Join(details, "; "), errors.New("startup checks failed"))
}

func withFatal(r Result) Result {
	r.Fatal = !r.Passed
	return r
}
