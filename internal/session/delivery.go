package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"spotrip/internal/config"
	"spotrip/internal/logging"
	"spotrip/internal/procutil"
	"spotrip/internal/services"
)

const (
	readChunkSize  = 8192
	minRefuseDelay = 5 * time.Millisecond
	maxRefuseDelay = 100 * time.Millisecond
	drainGrace     = 2 * time.Second
)

// CommandDelivery streams PCM from a helper process that prints raw s16le
// stereo 44.1 kHz audio for one track URI on stdout.
type CommandDelivery struct {
	command   []string
	quality   int
	normalize bool
	user      func() string
	password  string
	logger    *slog.Logger

	mu     sync.Mutex
	active *delivery
}

type delivery struct {
	uri    string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCommandDelivery builds a delivery from the [spotify] pcm_command. user
// is consulted at each BeginDelivery so it reflects the logged-in account.
func NewCommandDelivery(cfg *config.Config, user func() string, logger *slog.Logger) *CommandDelivery {
	if user == nil {
		user = func() string { return cfg.Spotify.User }
	}
	return &CommandDelivery{
		command:   append([]string(nil), cfg.Spotify.PCMCommand...),
		quality:   cfg.Spotify.Quality,
		normalize: cfg.Spotify.Normalize,
		user:      user,
		password:  cfg.Spotify.Password,
		logger:    logging.NewComponentLogger(logger, "delivery"),
	}
}

// Configured reports whether a helper command is set.
func (d *CommandDelivery) Configured() bool {
	return len(d.command) > 0 && strings.TrimSpace(d.command[0]) != ""
}

func (d *CommandDelivery) expand(uri string) []string {
	r := strings.NewReplacer(
		"{uri}", uri,
		"{bitrate}", strconv.Itoa(d.quality),
		"{normalize}", strconv.FormatBool(d.normalize),
		"{user}", d.user(),
	)
	args := make([]string, len(d.command))
	for i, arg := range d.command {
		args[i] = r.Replace(arg)
	}
	return args
}

// BeginDelivery starts the helper for uri and returns once it is running.
// Audio, end-of-track and errors are reported to h from a goroutine owned by
// the delivery.
func (d *CommandDelivery) BeginDelivery(ctx context.Context, uri string, h Handler) error {
	if !d.Configured() {
		return services.Wrap(services.ErrConfiguration, "delivery", "begin",
			"spotify.pcm_command is not configured", nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		return services.Wrap(services.ErrValidation, "delivery", "begin",
			fmt.Sprintf("delivery of %s still active", d.active.uri), nil)
	}

	runCtx, cancel := context.WithCancel(ctx)
	args := d.expand(uri)
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...) //nolint:gosec
	cmd.Env = append(os.Environ(),
		"SPOTRIP_URI="+uri,
		"SPOTRIP_USER="+d.user(),
		"SPOTRIP_PASSWORD="+d.password,
		"SPOTRIP_BITRATE="+strconv.Itoa(d.quality),
		"SPOTRIP_NORMALIZE="+strconv.FormatBool(d.normalize),
	)
	procutil.Isolate(cmd)
	cmd.WaitDelay = drainGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return services.Wrap(services.ErrConfiguration, "delivery", "stdout pipe", "", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return services.Wrap(services.ErrConfiguration, "delivery", "stderr pipe", "", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return services.Wrap(services.ErrConfiguration, "delivery", "start", args[0], err)
	}

	active := &delivery{uri: uri, cancel: cancel, done: make(chan struct{})}
	d.active = active
	logger := d.logger.With(logging.TrackURI(uri))
	logger.Debug("delivery started", logging.Int("pid", cmd.Process.Pid))

	go d.run(runCtx, cmd, stdout, stderr, h, active, logger)
	return nil
}

func (d *CommandDelivery) run(ctx context.Context, cmd *exec.Cmd, stdout, stderr io.ReadCloser, h Handler, active *delivery, logger *slog.Logger) {
	defer func() {
		d.mu.Lock()
		if d.active == active {
			d.active = nil
		}
		d.mu.Unlock()
		close(active.done)
	}()

	var tail []string
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			logger.Debug("helper output", logging.String("line", line))
			tail = append(tail, line)
			if len(tail) > 5 {
				tail = tail[1:]
			}
		}
	}()

	readErr := d.pump(ctx, stdout, h)
	if readErr != nil {
		_ = procutil.Kill(cmd)
	}

	// Keep reading stdout so a helper blocked on a full pipe can exit. A
	// stopped helper whose pipes stay open past drainGrace is cut off.
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(io.Discard, stdout)
	}()
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		select {
		case <-drained:
		case <-time.After(drainGrace):
			logger.Debug("helper pipes still open after stop, closing")
			_ = procutil.Kill(cmd)
			_ = stdout.Close()
			_ = stderr.Close()
			<-drained
		}
	}
	waitErr := cmd.Wait()

	switch {
	case ctx.Err() != nil:
		logger.Debug("delivery stopped")
	case readErr != nil:
		h.DeliveryError(services.Wrap(services.ErrTransientDelivery, "delivery", "read", "", readErr))
	case waitErr != nil:
		msg := strings.Join(tail, " | ")
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			msg = strings.TrimSpace(fmt.Sprintf("helper exited with status %d %s", exitErr.ExitCode(), msg))
		}
		h.DeliveryError(services.Wrap(services.ErrTransientDelivery, "delivery", "helper", msg, waitErr))
	default:
		h.EndOfTrack()
	}
}

// pump reads helper output and offers it to h, holding back whatever the
// handler refuses until it is accepted. Partial frames carry over to the next
// read. It returns nil at EOF or when ctx is cancelled.
func (d *CommandDelivery) pump(ctx context.Context, r io.Reader, h Handler) error {
	frameSize := PCM16Stereo44k.FrameSize()
	buf := make([]byte, readChunkSize)
	var pending []byte

	offer := func(final bool) bool {
		delay := minRefuseDelay
		for len(pending) >= frameSize {
			if ctx.Err() != nil {
				return false
			}
			usable := len(pending) - len(pending)%frameSize
			accepted := h.Deliver(pending[:usable], PCM16Stereo44k)
			if accepted > 0 {
				pending = pending[accepted*frameSize:]
				delay = minRefuseDelay
				continue
			}
			select {
			case <-ctx.Done():
				return false
			case <-time.After(delay):
			}
			delay = min(delay*2, maxRefuseDelay)
		}
		if final {
			pending = nil
		}
		return true
	}

	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			if !offer(false) {
				return nil
			}
		}
		if err == io.EOF {
			offer(true)
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// StopDelivery cancels the active helper and waits for its goroutine.
// Handler methods are not called after it returns.
func (d *CommandDelivery) StopDelivery() {
	d.mu.Lock()
	active := d.active
	d.mu.Unlock()
	if active == nil {
		return
	}
	active.cancel()
	<-active.done
}
