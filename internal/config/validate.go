package config

import (
	"errors"
	"fmt"
	"slices"
)

var stereoModes = []string{"j", "s", "f", "d", "m", "l", "r"}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if err := c.validateSpotify(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEncoding() error {
	if _, ok := formatExtensions[c.Encoding.Format]; !ok {
		return fmt.Errorf("encoding.format: unsupported value %q", c.Encoding.Format)
	}
	if c.Encoding.StereoMode != "" {
		if c.Encoding.Format != FormatMP3 {
			return errors.New("encoding.stereo_mode is only supported for mp3 output")
		}
		if !slices.Contains(stereoModes, c.Encoding.StereoMode) {
			return fmt.Errorf("encoding.stereo_mode: unsupported value %q", c.Encoding.StereoMode)
		}
	}
	if c.Encoding.Comp < 0 || c.Encoding.Comp > 10 {
		return errors.New("encoding.comp must be between 0 and 10")
	}
	return nil
}

func (c *Config) validateSpotify() error {
	switch c.Spotify.Quality {
	case 96, 160, 320:
	default:
		return fmt.Errorf("spotify.quality must be one of 96, 160, 320 (got %d)", c.Spotify.Quality)
	}
	switch c.Spotify.Genres {
	case "", "artist", "album":
	default:
		return fmt.Errorf("spotify.genres: unsupported value %q", c.Spotify.Genres)
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.BufferBytes < 4*1024 {
		return errors.New("engine.buffer_bytes must be at least 4096")
	}
	if c.Engine.LowWaterPercent >= 100 {
		return errors.New("engine.low_water_percent must be below 100")
	}
	if c.Engine.PrebufferPercent < 0 || c.Engine.PrebufferPercent > 100 {
		return errors.New("engine.prebuffer_percent must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
