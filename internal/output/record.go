package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	pkglog "github.com/slatecast/slatecast/pkg/log"

	"github.com/slatecast/slatecast/internal/capture"
)

// RecordSink appends captured frames to a raw recording file, each
// frame as the binary header followed by its pixel payload. It is a
// development and archival aid, not a codec: frames are stored
// uncompressed.
type RecordSink struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	frames  uint64
	stopped bool
}

// NewRecordSink creates the recording file under dir. Construction
// fails if the directory cannot be created or the file cannot be
// opened; the caller's sink registry stays unchanged in that case.
func NewRecordSink(dir string) (*RecordSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}

	name := fmt.Sprintf("slatecast-%s.raw", time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}

	pkglog.L().Info().Str("path", path).Msg("recording started")
	return &RecordSink{file: f, path: path}, nil
}

// Path returns the recording file path.
func (s *RecordSink) Path() string { return s.path }

// Send appends one frame to the recording.
func (s *RecordSink) Send(frame capture.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrNotRunning
	}

	if _, err := s.file.Write(encodeFrame(frame)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	s.frames++
	return nil
}

// IsRunning reports whether the recording file is still open.
func (s *RecordSink) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped
}

// Stop closes the recording file. Idempotent.
func (s *RecordSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true

	if err := s.file.Close(); err != nil {
		pkglog.L().Warn().Err(err).Str("path", s.path).Msg("failed to close recording")
		return
	}
	pkglog.L().Info().Str("path", s.path).Uint64("frames", s.frames).Msg("recording closed")
}
