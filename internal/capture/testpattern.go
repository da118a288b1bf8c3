package capture

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/slatecast/slatecast/internal/config"
)

// TestPatternSource is a built-in frame source that synthesises BGRA
// gradient frames at the configured rate. It stands in for a native
// screen-capture backend during development and in tests, and delivers
// frames from its own goroutine the same way a capture callback would.
type TestPatternSource struct {
	width  int
	height int
	fps    int
}

// NewTestPatternSource builds a source from the capture config.
func NewTestPatternSource(cfg config.CaptureConfig) *TestPatternSource {
	width, height, fps := cfg.Width, cfg.Height, cfg.FPS
	if width < 1 {
		width = 1280
	}
	if height < 1 {
		height = 720
	}
	if fps < 1 {
		fps = 30
	}
	return &TestPatternSource{width: width, height: height, fps: fps}
}

// Resolve accepts any display ID and synthesises a matching target.
// Negative display IDs simulate an unknown display.
func (s *TestPatternSource) Resolve(sel Selector) (Target, error) {
	if sel.DisplayID < 0 {
		return Target{}, fmt.Errorf("display %d not found", sel.DisplayID)
	}
	desc := "test pattern"
	if sel.Window != "" {
		desc = "test pattern (window " + sel.Window + ")"
	}
	return Target{
		ID:          sel.DisplayID,
		Description: desc,
		Width:       s.width,
		Height:      s.height,
	}, nil
}

// Begin starts generating frames until the delivery ends.
func (s *TestPatternSource) Begin(target Target, onFrame func(Frame)) (Delivery, error) {
	d := &patternDelivery{stop: make(chan struct{})}

	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(s.fps))
		defer ticker.Stop()

		var seq uint64
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
				onFrame(s.makeFrame(seq))
				seq++
			}
		}
	}()

	return d, nil
}

// makeFrame renders a moving horizontal gradient so consecutive frames
// differ visibly.
func (s *TestPatternSource) makeFrame(seq uint64) Frame {
	stride := s.width * 4
	data := make([]byte, stride*s.height)
	shift := byte(seq)

	for y := 0; y < s.height; y++ {
		row := data[y*stride:]
		for x := 0; x < s.width; x++ {
			v := byte(x*255/s.width) + shift
			row[x*4+0] = v          // B
			row[x*4+1] = 255 - v    // G
			row[x*4+2] = byte(y)    // R
			row[x*4+3] = 255        // A
		}
	}

	return Frame{
		Data:        data,
		Width:       s.width,
		Height:      s.height,
		Stride:      stride,
		TimestampNS: uint64(time.Now().UnixNano()),
	}
}

type patternDelivery struct {
	stopped atomic.Bool
	stop    chan struct{}
}

func (d *patternDelivery) End() {
	if d.stopped.CompareAndSwap(false, true) {
		close(d.stop)
	}
}
