package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"spotrip/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "music")
	cfgVal.Paths.SettingsDir = filepath.Join(base, "settings")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Spotify.TokenFile = filepath.Join(base, "settings", "token.json")
	cfgVal.Spotify.User = "tester"
	cfgVal.Engine.PullTimeoutMillis = 20
	cfgVal.Engine.RetryBackoffMillis = 1
	cfgVal.Engine.EncoderGraceSeconds = 1
	cfgVal.Notifications.Desktop = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	for _, dir := range []string{cfgVal.Paths.OutputDir, cfgVal.Paths.SettingsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return builder.cfg
}

// WithFormat selects the output format on the test config.
func WithFormat(format string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Encoding.Format = format
	}
}

// WithFailLog enables the fail log under the output directory.
func WithFailLog(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Output.FailLog = name
	}
}

// WithStubbedBinaries writes stub encoders that copy stdin to their output
// file and prepends them to PATH. If names is empty, lame and flac are
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"lame", "flac"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			writeStub(b.t, binDir, name, EncoderCopy)
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}
