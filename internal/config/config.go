package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir   string `toml:"output_dir"`
	SettingsDir string `toml:"settings_dir"`
	LogDir      string `toml:"log_dir"`
}

// Encoding selects the output codec and its quality knobs.
type Encoding struct {
	Format        string `toml:"format"`
	Bitrate       int    `toml:"bitrate"`
	CBR           bool   `toml:"cbr"`
	VBR           string `toml:"vbr"`
	Comp          int    `toml:"comp"`
	StereoMode    string `toml:"stereo_mode"`
	EncoderBinary string `toml:"encoder_binary"`
}

// Output controls file naming and what gets written next to the audio.
type Output struct {
	FormatString  string `toml:"format_string"`
	Flat          bool   `toml:"flat"`
	FlatWithIndex bool   `toml:"flat_with_index"`
	Overwrite     bool   `toml:"overwrite"`
	ASCII         bool   `toml:"ascii"`
	ASCIIPathOnly bool   `toml:"ascii_path_only"`
	FailLog       string `toml:"fail_log"`
	CoverFile     string `toml:"cover_file"`
	Comment       string `toml:"comment"`
	ID3v23        bool   `toml:"id3_v23"`
}

// Playlist contains playlist-source post actions.
type Playlist struct {
	M3U                bool `toml:"m3u"`
	WPL                bool `toml:"wpl"`
	Sync               bool `toml:"sync"`
	RemoveFromPlaylist bool `toml:"remove_from_playlist"`
}

// Spotify contains session credentials and catalog settings.
type Spotify struct {
	User              string   `toml:"user"`
	Password          string   `toml:"password"`
	ClientID          string   `toml:"client_id"`
	ClientSecret      string   `toml:"client_secret"`
	TokenFile         string   `toml:"token_file"`
	Quality           int      `toml:"quality"`
	Normalize         bool     `toml:"normalize"`
	Market            string   `toml:"market"`
	Genres            string   `toml:"genres"`
	ExcludeAppearsOn  bool     `toml:"exclude_appears_on"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	PCMCommand        []string `toml:"pcm_command"`
}

// Engine tunes buffering, retry and encoder shutdown behaviour.
type Engine struct {
	BufferBytes         int  `toml:"buffer_bytes"`
	LowWaterPercent     int  `toml:"low_water_percent"`
	PrebufferPercent    int  `toml:"prebuffer_percent"`
	PullTimeoutMillis   int  `toml:"pull_timeout_ms"`
	TransientRetries    int  `toml:"transient_retries"`
	RetryBackoffMillis  int  `toml:"retry_backoff_ms"`
	EncoderGraceSeconds int  `toml:"encoder_grace_seconds"`
	SkipRipped          bool `toml:"skip_ripped"`
}

// Notifications contains configuration for ntfy and desktop notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Desktop        bool   `toml:"desktop"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Config encapsulates all configuration values for spotrip.
//
// Configuration sections by subsystem:
//   - Paths: output, settings and log directories
//   - Encoding: codec, bitrate/VBR/compression, encoder override
//   - Output: path template, overwrite policy, ASCII modes, fail log
//   - Playlist: m3u/wpl files, sync, remote removal
//   - Spotify: credentials, stream quality, PCM helper command
//   - Engine: frame buffer sizing, retries, encoder shutdown
//   - Notifications: ntfy topic and desktop toggle
//   - Logging: log format, level and destination
type Config struct {
	Paths         Paths         `toml:"paths"`
	Encoding      Encoding      `toml:"encoding"`
	Output        Output        `toml:"output"`
	Playlist      Playlist      `toml:"playlist"`
	Spotify       Spotify       `toml:"spotify"`
	Engine        Engine        `toml:"engine"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Finalize re-applies normalization and validation after callers (the CLI)
// override individual fields.
func (c *Config) Finalize() error {
	if err := c.normalize(); err != nil {
		return err
	}
	return c.Validate()
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("spotrip.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the settings and output directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.SettingsDir, c.Paths.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LogDir) != "" {
		if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
			return fmt.Errorf("create log directory %q: %w", c.Paths.LogDir, err)
		}
	}
	return nil
}

// HistoryPath is the rip ledger database inside the settings directory.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.SettingsDir, "history.db")
}

// LockPath is the single-instance lock file inside the settings directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.SettingsDir, "spotrip.lock")
}

// FailLogPath returns the absolute fail-log location, or "" when disabled.
func (c *Config) FailLogPath() string {
	name := strings.TrimSpace(c.Output.FailLog)
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Paths.OutputDir, name)
}

// FormatTemplate resolves the effective output path template.
func (c *Config) FormatTemplate() string {
	switch {
	case c.Output.Flat:
		return FlatFormat
	case c.Output.FlatWithIndex:
		return FlatWithIndexFormat
	case strings.TrimSpace(c.Output.FormatString) != "":
		return c.Output.FormatString
	default:
		return DefaultFormat
	}
}

// ASCIITags reports whether tags (not only paths) are folded to ASCII.
func (c *Config) ASCIITags() bool {
	return c.Output.ASCII && !c.Output.ASCIIPathOnly
}

// ASCIIPaths reports whether file paths are folded to ASCII.
func (c *Config) ASCIIPaths() bool {
	return c.Output.ASCII || c.Output.ASCIIPathOnly
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
