package config

const (
	defaultConfigPath          = "~/.config/spotrip/config.toml"
	defaultOutputDir           = "~/Music/spotrip"
	defaultSettingsDir         = "~/.spotrip"
	defaultFormat              = FormatMP3
	defaultBitrate             = 320
	defaultVBR                 = "0"
	defaultComp                = 10
	defaultQuality             = 320
	defaultRequestsPerSecond   = 5
	defaultBufferBytes         = 176400 // one second of 16-bit stereo 44.1 kHz
	defaultLowWaterPercent     = 50
	defaultPrebufferPercent    = 25
	defaultPullTimeoutMillis   = 200
	defaultTransientRetries    = 1
	defaultRetryBackoffMillis  = 2000
	defaultEncoderGraceSeconds = 3
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Output path templates.
const (
	DefaultFormat       = "{album_artist}/{album}/{artist} - {track_name}.{ext}"
	FlatFormat          = "{artist} - {track_name}.{ext}"
	FlatWithIndexFormat = "{idx:3} - {artist} - {track_name}.{ext}"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir:   defaultOutputDir,
			SettingsDir: defaultSettingsDir,
		},
		Encoding: Encoding{
			Format:  defaultFormat,
			Bitrate: defaultBitrate,
			VBR:     defaultVBR,
			Comp:    defaultComp,
		},
		Spotify: Spotify{
			Quality:           defaultQuality,
			Market:            "from_token",
			RequestsPerSecond: defaultRequestsPerSecond,
		},
		Engine: Engine{
			BufferBytes:         defaultBufferBytes,
			LowWaterPercent:     defaultLowWaterPercent,
			PrebufferPercent:    defaultPrebufferPercent,
			PullTimeoutMillis:   defaultPullTimeoutMillis,
			TransientRetries:    defaultTransientRetries,
			RetryBackoffMillis:  defaultRetryBackoffMillis,
			EncoderGraceSeconds: defaultEncoderGraceSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
