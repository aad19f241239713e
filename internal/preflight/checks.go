package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"spotrip/internal/config"
	"spotrip/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckEncoder verifies the encoder for the configured output format is on
// PATH. A failing result carries an install hint and is fatal to the run.
func CheckEncoder(cfg *config.Config) Result {
	const name = "Encoder"
	status := deps.ResolveEncoder(cfg.Encoding.Format, cfg.Encoding.EncoderBinary)
	if status.Available {
		if status.Path == "" {
			return Result{Name: name, Passed: true, Detail: status.Detail}
		}
		return Result{Name: name, Passed: true, Detail: status.Path}
	}
	detail := fmt.Sprintf("Missing dependency '%s'. Please install and add to path", status.Command)
	if hint := deps.InstallHint(status.Package); hint != "" {
		detail += fmt.Sprintf(" (try: %s)", hint)
	}
	return Result{Name: name, Fatal: true, Detail: detail}
}
