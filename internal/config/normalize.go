package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEncoding()
	if err := c.normalizeSpotify(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.SettingsDir) == "" {
		c.Paths.SettingsDir = defaultSettingsDir
	}
	if c.Paths.SettingsDir, err = expandPath(c.Paths.SettingsDir); err != nil {
		return fmt.Errorf("paths.settings_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

// normalizeEncoding applies the per-format quality defaults when the user left
// the generic values in place.
func (c *Config) normalizeEncoding() {
	c.Encoding.Format = CanonicalFormat(c.Encoding.Format)
	if c.Encoding.Format == "" {
		c.Encoding.Format = defaultFormat
	}
	c.Encoding.VBR = strings.TrimSpace(c.Encoding.VBR)
	if c.Encoding.VBR == "" {
		c.Encoding.VBR = defaultVBR
	}
	if c.Encoding.Bitrate <= 0 {
		c.Encoding.Bitrate = defaultBitrate
	}
	c.Encoding.StereoMode = strings.ToLower(strings.TrimSpace(c.Encoding.StereoMode))
	c.Encoding.EncoderBinary = strings.TrimSpace(c.Encoding.EncoderBinary)

	switch c.Encoding.Format {
	case FormatFLAC:
		if c.Encoding.Comp == defaultComp {
			c.Encoding.Comp = 8
		}
	case FormatOgg:
		if c.Encoding.VBR == defaultVBR {
			c.Encoding.VBR = "10"
		}
	case FormatOpus:
		if c.Encoding.VBR == defaultVBR {
			c.Encoding.VBR = "320"
		}
	case FormatAAC:
		if c.Encoding.VBR == defaultVBR {
			c.Encoding.VBR = "500"
		}
	case FormatM4A:
		if c.Encoding.VBR == defaultVBR {
			c.Encoding.VBR = "5"
		}
	}

	if c.Output.ASCIIPathOnly {
		c.Output.ASCII = true
	}
}

func (c *Config) normalizeSpotify() error {
	envPath := filepath.Join(c.Paths.SettingsDir, ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envPath, err)
	}

	lookup := func(field *string, keys ...string) {
		if strings.TrimSpace(*field) != "" {
			return
		}
		for _, key := range keys {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				*field = strings.TrimSpace(value)
				return
			}
		}
	}
	lookup(&c.Spotify.User, "SPOTRIP_USER")
	lookup(&c.Spotify.Password, "SPOTRIP_PASSWORD")
	lookup(&c.Spotify.ClientID, "SPOTIFY_ID", "SPOTIFY_CLIENT_ID")
	lookup(&c.Spotify.ClientSecret, "SPOTIFY_SECRET", "SPOTIFY_CLIENT_SECRET")

	if strings.TrimSpace(c.Spotify.TokenFile) == "" {
		c.Spotify.TokenFile = filepath.Join(c.Paths.SettingsDir, "token.json")
	}
	var err error
	if c.Spotify.TokenFile, err = expandPath(c.Spotify.TokenFile); err != nil {
		return fmt.Errorf("spotify.token_file: %w", err)
	}
	if c.Spotify.Quality == 0 {
		c.Spotify.Quality = defaultQuality
	}
	c.Spotify.Market = strings.TrimSpace(c.Spotify.Market)
	c.Spotify.Genres = strings.ToLower(strings.TrimSpace(c.Spotify.Genres))
	if c.Spotify.RequestsPerSecond <= 0 {
		c.Spotify.RequestsPerSecond = defaultRequestsPerSecond
	}
	return nil
}

func (c *Config) normalizeEngine() {
	if c.Engine.BufferBytes <= 0 {
		c.Engine.BufferBytes = defaultBufferBytes
	}
	if c.Engine.LowWaterPercent <= 0 {
		c.Engine.LowWaterPercent = defaultLowWaterPercent
	}
	if c.Engine.PullTimeoutMillis <= 0 {
		c.Engine.PullTimeoutMillis = defaultPullTimeoutMillis
	}
	if c.Engine.TransientRetries < 0 {
		c.Engine.TransientRetries = 0
	}
	if c.Engine.RetryBackoffMillis < 0 {
		c.Engine.RetryBackoffMillis = 0
	}
	if c.Engine.EncoderGraceSeconds <= 0 {
		c.Engine.EncoderGraceSeconds = defaultEncoderGraceSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.File = strings.TrimSpace(c.Logging.File)
}
