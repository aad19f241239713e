package encoder

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"spotrip/internal/fileutil"
	"spotrip/internal/framebuf"
	"spotrip/internal/logging"
	"spotrip/internal/services"
	"spotrip/internal/track"
)

const (
	wavHeaderSize = 44
	channels      = 2
	bitsPerSample = 16
)

// fileSink writes PCM straight to disk, optionally behind a RIFF/WAVE header
// whose size fields are patched once the length is known.
type fileSink struct {
	mu      sync.Mutex
	file    *os.File
	w       *bufio.Writer
	path    string
	partial string
	wav     bool
	written int64
	done    bool
	logger  *slog.Logger
}

func openFileSink(path string, wav bool, logger *slog.Logger) (*fileSink, error) {
	partial := PartialPath(path)
	file, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, services.Wrap(services.ErrEncoderSpawn, "encoder", "create", partial, err)
	}
	s := &fileSink{
		file:    file,
		w:       bufio.NewWriterSize(file, 64*1024),
		path:    path,
		partial: partial,
		wav:     wav,
		logger:  logger,
	}
	if wav {
		if _, err := s.w.Write(wavHeader(0)); err != nil {
			_ = file.Close()
			_, _ = fileutil.RemoveIfExists(partial)
			return nil, services.Wrap(services.ErrEncoderSpawn, "encoder", "header", partial, err)
		}
	}
	return s, nil
}

// wavHeader renders a canonical 44-byte PCM WAVE header for dataSize bytes of
// s16le stereo 44.1 kHz audio.
func wavHeader(dataSize uint32) []byte {
	const blockAlign = channels * bitsPerSample / 8
	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataSize)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1)
	binary.LittleEndian.PutUint16(h[22:24], channels)
	binary.LittleEndian.PutUint32(h[24:28], track.SampleRate)
	binary.LittleEndian.PutUint32(h[28:32], track.SampleRate*blockAlign)
	binary.LittleEndian.PutUint16(h[32:34], blockAlign)
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataSize)
	return h
}

func (s *fileSink) Write(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return services.Wrap(services.ErrEncoderRuntime, "encoder", "write", "sink already closed", nil)
	}
	n, err := s.w.Write(chunk)
	s.written += int64(n)
	if err != nil {
		return services.Wrap(services.ErrEncoderRuntime, "encoder", "write", s.partial, err)
	}
	return nil
}

func (s *fileSink) Finish() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return Result{}, services.Wrap(services.ErrEncoderRuntime, "encoder", "finish", "sink already closed", nil)
	}
	s.done = true

	fail := func(op string, err error) (Result, error) {
		_ = s.file.Close()
		_, _ = fileutil.RemoveIfExists(s.partial)
		return Result{}, services.Wrap(services.ErrEncoderRuntime, "encoder", op, s.partial, err)
	}

	if err := s.w.Flush(); err != nil {
		return fail("flush", err)
	}
	if s.written == 0 {
		return fail("verify", fmt.Errorf("no audio written"))
	}
	if s.wav {
		if s.written > int64(^uint32(0))-36 {
			return fail("header", fmt.Errorf("%d bytes exceed the WAVE size limit", s.written))
		}
		if _, err := s.file.WriteAt(wavHeader(uint32(s.written)), 0); err != nil {
			return fail("header", err)
		}
	}
	if err := s.file.Close(); err != nil {
		_, _ = fileutil.RemoveIfExists(s.partial)
		return Result{}, services.Wrap(services.ErrEncoderRuntime, "encoder", "close", s.partial, err)
	}
	if err := os.Rename(s.partial, s.path); err != nil {
		_, _ = fileutil.RemoveIfExists(s.partial)
		return Result{}, services.Wrap(services.ErrEncoderRuntime, "encoder", "rename", s.path, err)
	}

	frames := s.written / framebuf.FrameSize
	s.logger.Debug("pcm written", logging.String("output", s.path), logging.Int64("frames", frames))
	return Result{
		Path:     s.path,
		Bytes:    fileutil.Size(s.path),
		Frames:   frames,
		Duration: time.Duration(float64(frames) / track.SampleRate * float64(time.Second)),
	}, nil
}

func (s *fileSink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.done = true
		_ = s.file.Close()
	}
	if _, err := fileutil.RemoveIfExists(s.partial); err != nil {
		return fmt.Errorf("remove partial output: %w", err)
	}
	return nil
}
