package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"spotrip/internal/config"
	"spotrip/internal/history"
	"spotrip/internal/logging"
	"spotrip/internal/preflight"
	"spotrip/internal/progress"
	"spotrip/internal/ripping"
	"spotrip/internal/runlock"
	"spotrip/internal/services"
	"spotrip/internal/session"
)

// ripFlags mirrors the config keys a single run may override.
type ripFlags struct {
	format     string
	bitrate    int
	cbr        bool
	vbr        string
	comp       int
	stereoMode string

	directory     string
	settings      string
	formatString  string
	flat          bool
	flatWithIndex bool
	overwrite     bool
	failLog       string
	ascii         bool
	asciiPathOnly bool

	m3u    bool
	wpl    bool
	sync   bool
	remove bool

	genres    string
	comment   string
	coverFile string
	id3v23    bool

	user             string
	password         string
	last             bool
	quality          int
	normalize        bool
	excludeAppearsOn bool

	logFile    string
	skipRipped bool
}

func newRipCommand(ctx *commandContext) *cobra.Command {
	flags := &ripFlags{}

	cmd := &cobra.Command{
		Use:   "rip <uri>...",
		Short: "Rip tracks, albums, artists or playlists",
		Long: `Rip the given Spotify URIs (or files listing one URI per line) to the
output directory. Tracks are ripped one at a time in the order given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cfg, cmd); err != nil {
				return err
			}
			return runRip(cmd, cfg, flags, args)
		},
	}

	flags.register(cmd)
	return cmd
}

// register binds the flags to cmd.
func (f *ripFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.format, "format", "", "Output format: mp3, flac, ogg, opus, aac, m4a, alac, wav or pcm")
	fs.IntVar(&f.bitrate, "bitrate", 0, "Encoder bitrate in kbps")
	fs.BoolVar(&f.cbr, "cbr", false, "Constant bitrate encoding (mp3 and aac)")
	fs.StringVar(&f.vbr, "vbr", "", "VBR quality setting")
	fs.IntVar(&f.comp, "comp", 0, "Compression level (flac and opus)")
	fs.StringVar(&f.stereoMode, "stereo-mode", "", "Stereo mode: j, s, f or d")

	fs.StringVarP(&f.directory, "directory", "d", "", "Base output directory")
	fs.StringVarP(&f.settings, "settings", "s", "", "Settings directory override")
	fs.StringVarP(&f.formatString, "format-string", "f", "", "Path template for output files")
	fs.BoolVar(&f.flat, "flat", false, "Save all files to the output directory without subfolders")
	fs.BoolVar(&f.flatWithIndex, "flat-with-index", false, "Like --flat with the playlist position as a prefix")
	fs.BoolVarP(&f.overwrite, "overwrite", "o", false, "Overwrite existing files")
	fs.StringVar(&f.failLog, "fail-log", "", "Log the URIs of failed tracks to this file")
	fs.BoolVarP(&f.ascii, "ascii", "a", false, "Convert file names and tags to ASCII")
	fs.BoolVarP(&f.asciiPathOnly, "ascii-path-only", "A", false, "Convert file names to ASCII but keep Unicode tags")

	fs.BoolVar(&f.m3u, "playlist-m3u", false, "Write an .m3u file for ripped playlists")
	fs.BoolVar(&f.wpl, "playlist-wpl", false, "Write a .wpl file for ripped playlists")
	fs.BoolVar(&f.sync, "playlist-sync", false, "Remove files of tracks no longer in the playlist")
	fs.BoolVarP(&f.remove, "remove-from-playlist", "r", false, "Remove ripped tracks from owned playlists")

	fs.StringVarP(&f.genres, "genres", "g", "", "Genre tagging: artist or album")
	fs.StringVar(&f.comment, "comment", "", "Comment tag written to every file")
	fs.StringVar(&f.coverFile, "cover-file", "", "Also save album art beside each file under this name")
	fs.BoolVar(&f.id3v23, "id3-v23", false, "Write ID3 v2.3 tags instead of v2.4 (mp3)")

	fs.StringVarP(&f.user, "user", "u", "", "Spotify user name")
	fs.StringVarP(&f.password, "password", "p", "", "Spotify password (prompted when omitted)")
	fs.BoolVarP(&f.last, "last", "l", false, "Reuse the last logged-in account")
	fs.IntVarP(&f.quality, "quality", "Q", 0, "Spotify bitrate in kbps: 96, 160 or 320")
	fs.BoolVar(&f.normalize, "normalize", false, "Ask the PCM helper to normalize track volume")
	fs.BoolVarP(&f.excludeAppearsOn, "exclude-appears-on", "x", false, "Skip albums an artist only appears on when ripping an artist URI")

	fs.StringVarP(&f.logFile, "log", "L", "", "Write log lines to this file instead of stderr (- for stdout)")
	fs.BoolVar(&f.skipRipped, "skip-ripped", false, "Skip tracks a previous run already ripped")

	cmd.MarkFlagsMutuallyExclusive("user", "last")
	cmd.MarkFlagsMutuallyExclusive("flat", "flat-with-index")
	cmd.MarkFlagsMutuallyExclusive("ascii", "ascii-path-only")
}

// apply copies the flags the user set onto cfg and re-finalizes it.
func (f *ripFlags) apply(cfg *config.Config, cmd *cobra.Command) error {
	changed := cmd.Flags().Changed

	if changed("format") {
		cfg.Encoding.Format = f.format
	}
	if changed("bitrate") {
		cfg.Encoding.Bitrate = f.bitrate
	}
	if changed("cbr") {
		cfg.Encoding.CBR = f.cbr
	}
	if changed("vbr") {
		cfg.Encoding.VBR = f.vbr
	}
	if changed("comp") {
		cfg.Encoding.Comp = f.comp
	}
	if changed("stereo-mode") {
		cfg.Encoding.StereoMode = f.stereoMode
	}

	if changed("directory") {
		cfg.Paths.OutputDir = f.directory
	}
	if changed("settings") {
		// The default token file follows the settings directory.
		if cfg.Spotify.TokenFile == filepath.Join(cfg.Paths.SettingsDir, "token.json") {
			cfg.Spotify.TokenFile = ""
		}
		cfg.Paths.SettingsDir = f.settings
	}
	if changed("format-string") {
		cfg.Output.FormatString = f.formatString
	}
	if changed("flat") {
		cfg.Output.Flat = f.flat
	}
	if changed("flat-with-index") {
		cfg.Output.FlatWithIndex = f.flatWithIndex
	}
	if changed("overwrite") {
		cfg.Output.Overwrite = f.overwrite
	}
	if changed("fail-log") {
		cfg.Output.FailLog = f.failLog
	}
	if changed("ascii") {
		cfg.Output.ASCII = f.ascii
	}
	if changed("ascii-path-only") {
		cfg.Output.ASCIIPathOnly = f.asciiPathOnly
	}

	if changed("playlist-m3u") {
		cfg.Playlist.M3U = f.m3u
	}
	if changed("playlist-wpl") {
		cfg.Playlist.WPL = f.wpl
	}
	if changed("playlist-sync") {
		cfg.Playlist.Sync = f.sync
	}
	if changed("remove-from-playlist") {
		cfg.Playlist.RemoveFromPlaylist = f.remove
	}

	if changed("genres") {
		cfg.Spotify.Genres = f.genres
	}
	if changed("comment") {
		cfg.Output.Comment = f.comment
	}
	if changed("cover-file") {
		cfg.Output.CoverFile = f.coverFile
	}
	if changed("id3-v23") {
		cfg.Output.ID3v23 = f.id3v23
	}

	if changed("user") {
		cfg.Spotify.User = f.user
		// A password from the config belongs to the configured user.
		cfg.Spotify.Password = ""
	}
	if changed("password") {
		cfg.Spotify.Password = f.password
	}
	if changed("quality") {
		cfg.Spotify.Quality = f.quality
	}
	if changed("normalize") {
		cfg.Spotify.Normalize = f.normalize
	}
	if changed("exclude-appears-on") {
		cfg.Spotify.ExcludeAppearsOn = f.excludeAppearsOn
	}

	if changed("log") {
		cfg.Logging.File = f.logFile
	}
	if changed("skip-ripped") {
		cfg.Engine.SkipRipped = f.skipRipped
	}

	if err := cfg.Finalize(); err != nil {
		return fmt.Errorf("apply flags: %w", err)
	}
	return nil
}

func runRip(cmd *cobra.Command, cfg *config.Config, flags *ripFlags, args []string) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	printBanner(out, cfg, isTerminal(out))

	results := preflight.RunAll(cfg)
	for _, r := range results {
		if !r.Passed {
			fmt.Fprintf(errOut, "%s: %s\n", r.Name, r.Detail)
		}
	}
	if err := preflight.Err(results); err != nil {
		return err
	}

	lock, err := runlock.Acquire(cfg.LockPath())
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	if err := promptPassword(cmd, cfg, flags); err != nil {
		return err
	}

	store, err := history.Open(cfg)
	if err != nil {
		logging.WarnWithContext(logger, "rip history unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "--skip-ripped and playlist sync are disabled for this run"),
		)
		store = nil
	} else {
		defer store.Close()
	}

	render := progress.ShouldRender(out, logging.LogsToTerminal(cfg))
	reporter := progress.New(progress.Options{
		Writer: out,
		Render: render,
		Size:   progress.StdoutSize,
		Logger: logger,
	})

	sess := session.NewSpotify(cfg, logger)
	defer sess.Close()

	engine, err := ripping.New(cfg, ripping.Dependencies{
		Session:  sess,
		History:  store,
		Reporter: reporter,
		Stdout:   out,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if render {
		progress.WatchResize(sigCtx, reporter)
	}

	creds := session.Credentials{
		User:     cfg.Spotify.User,
		Password: cfg.Spotify.Password,
		UseLast:  flags.last,
	}
	if err := engine.Login(sigCtx, creds); err != nil {
		fmt.Fprintln(errOut, "Encountered issue while logging into Spotify, aborting...")
		return err
	}

	if err := engine.Start(cmd.Context(), args); err != nil {
		return err
	}

	finished := make(chan struct{})
	go func() {
		select {
		case <-sigCtx.Done():
			fmt.Fprintln(errOut, "\nAborting...")
			engine.Abort()
		case <-finished:
		}
	}()
	summary, err := engine.Join()
	close(finished)
	if err != nil {
		return err
	}
	if sigCtx.Err() != nil {
		return services.Wrap(services.ErrAborted, "rip", "run", fmt.Sprintf("%d of %d tracks finished", summary.Succeeded+summary.Skipped, summary.Total), nil)
	}
	return nil
}

// promptPassword asks for the password when a user was given without one.
// The stored token is reused otherwise, so a missing password is not an
// error by itself.
func promptPassword(cmd *cobra.Command, cfg *config.Config, flags *ripFlags) error {
	if flags.last || strings.TrimSpace(cfg.Spotify.User) == "" || cfg.Spotify.Password != "" {
		return nil
	}
	if !cmd.Flags().Changed("user") {
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return nil
		}
		return fmt.Errorf("read password: %w", err)
	}
	cfg.Spotify.Password = string(raw)
	return nil
}
