package encoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"spotrip/internal/fileutil"
	"spotrip/internal/framebuf"
	"spotrip/internal/logging"
	"spotrip/internal/procutil"
	"spotrip/internal/services"
	"spotrip/internal/track"
)

const stderrTail = 8

type processSink struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	outputs []io.Closer
	path    string
	partial string
	grace   time.Duration
	logger  *slog.Logger
	started time.Time

	mu      sync.Mutex
	written int64
	closed  bool
	done    bool
	tail    []string

	exited  chan struct{}
	waitErr error
}

func startProcessSink(ctx context.Context, binary string, args []string, path string, grace time.Duration, logger *slog.Logger) (*processSink, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	procutil.Isolate(cmd)
	cmd.WaitDelay = grace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, services.Wrap(services.ErrEncoderSpawn, "encoder", "stdin pipe", "", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, services.Wrap(services.ErrEncoderSpawn, "encoder", "stdout pipe", "", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, services.Wrap(services.ErrEncoderSpawn, "encoder", "stderr pipe", "", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrEncoderSpawn, "encoder", "start", binary, err)
	}

	s := &processSink{
		cmd:     cmd,
		stdin:   stdin,
		outputs: []io.Closer{stdout, stderr},
		path:    path,
		partial: PartialPath(path),
		grace:   grace,
		logger:  logger,
		started: time.Now(),
		exited:  make(chan struct{}),
	}
	logger.Debug("encoder started",
		logging.String("binary", binary),
		logging.Int("pid", cmd.Process.Pid),
		logging.String("output", s.partial),
	)

	var wg sync.WaitGroup
	scan := func(r io.Reader, stream string) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if stream == "stderr" {
				s.remember(line)
			}
			logger.Debug("encoder output", logging.String("stream", stream), logging.String("line", line))
		}
	}
	wg.Add(2)
	go scan(stdout, "stdout")
	go scan(stderr, "stderr")

	go func() {
		wg.Wait()
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()
	return s, nil
}

func (s *processSink) remember(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tail = append(s.tail, line)
	if len(s.tail) > stderrTail {
		s.tail = s.tail[len(s.tail)-stderrTail:]
	}
}

func (s *processSink) diagnostics() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.tail, " | ")
}

func (s *processSink) Write(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return services.Wrap(services.ErrEncoderRuntime, "encoder", "write", "input already closed", nil)
	}
	n, err := s.stdin.Write(chunk)
	s.mu.Lock()
	s.written += int64(n)
	s.mu.Unlock()
	if err != nil {
		return services.Wrap(services.ErrEncoderRuntime, "encoder", "write", s.diagnostics(), err)
	}
	return nil
}

func (s *processSink) closeInput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.stdin.Close()
}

func (s *processSink) Finish() (Result, error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return Result{}, services.Wrap(services.ErrEncoderRuntime, "encoder", "finish", "sink already finished", nil)
	}
	s.done = true
	s.mu.Unlock()

	s.closeInput()
	<-s.exited

	if s.waitErr != nil {
		s.cleanup()
		msg := s.diagnostics()
		var exitErr *exec.ExitError
		if errors.As(s.waitErr, &exitErr) {
			msg = strings.TrimSpace(fmt.Sprintf("exit status %d %s", exitErr.ExitCode(), msg))
		}
		return Result{}, services.Wrap(services.ErrEncoderRuntime, "encoder", "finish", msg, s.waitErr)
	}

	size := fileutil.Size(s.partial)
	if size <= 0 {
		s.cleanup()
		return Result{}, services.Wrap(services.ErrEncoderRuntime, "encoder", "verify", "encoder produced no output", nil)
	}
	if err := os.Rename(s.partial, s.path); err != nil {
		s.cleanup()
		return Result{}, services.Wrap(services.ErrEncoderRuntime, "encoder", "rename", s.path, err)
	}

	s.mu.Lock()
	frames := s.written / framebuf.FrameSize
	s.mu.Unlock()
	result := Result{
		Path:     s.path,
		Bytes:    size,
		Frames:   frames,
		Duration: time.Duration(float64(frames) / track.SampleRate * float64(time.Second)),
	}
	s.logger.Debug("encoder finished",
		logging.String("output", s.path),
		logging.Int64("bytes", size),
		logging.Duration("elapsed", time.Since(s.started)),
	)
	return result, nil
}

// Abort closes stdin and gives the encoder grace to exit before killing its
// process group. Pipes a stray descendant still holds after a second grace
// period are closed so Abort always returns.
func (s *processSink) Abort() error {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()

	s.closeInput()
	select {
	case <-s.exited:
	case <-time.After(s.grace):
		_ = procutil.Kill(s.cmd)
		select {
		case <-s.exited:
		case <-time.After(s.grace):
			s.logger.Debug("encoder pipes still open after kill, closing")
			for _, c := range s.outputs {
				_ = c.Close()
			}
			<-s.exited
		}
	}
	return s.cleanup()
}

func (s *processSink) cleanup() error {
	if _, err := fileutil.RemoveIfExists(s.partial); err != nil {
		return fmt.Errorf("remove partial output: %w", err)
	}
	return nil
}
