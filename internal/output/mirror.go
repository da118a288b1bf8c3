package output

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	pkglog "github.com/slatecast/slatecast/pkg/log"

	"github.com/slatecast/slatecast/internal/capture"
)

// frameHeaderSize is the fixed binary prefix before the pixel payload:
// width, height, stride as uint32 LE followed by the timestamp as
// uint64 LE.
const frameHeaderSize = 20

func encodeFrame(frame capture.Frame) []byte {
	buf := make([]byte, frameHeaderSize+len(frame.Data))
	binary.LittleEndian.PutUint32(buf[0:], uint32(frame.Width))
	binary.LittleEndian.PutUint32(buf[4:], uint32(frame.Height))
	binary.LittleEndian.PutUint32(buf[8:], uint32(frame.Stride))
	binary.LittleEndian.PutUint64(buf[12:], frame.TimestampNS)
	copy(buf[frameHeaderSize:], frame.Data)
	return buf
}

// MirrorSink pushes captured frames as binary WebSocket messages to any
// attached viewer connections. A viewer that cannot keep up loses
// frames rather than slowing the capture path; zero viewers is not an
// error.
type MirrorSink struct {
	running atomic.Bool

	mu      sync.Mutex
	viewers map[uint64]chan []byte
	nextID  uint64
}

// NewMirrorSink creates a running mirror sink with no viewers yet.
func NewMirrorSink() *MirrorSink {
	s := &MirrorSink{viewers: make(map[uint64]chan []byte)}
	s.running.Store(true)
	return s
}

// Send offers a frame to every attached viewer, dropping it for any
// viewer whose queue is full.
func (s *MirrorSink) Send(frame capture.Frame) error {
	if !s.running.Load() {
		return ErrNotRunning
	}

	payload := encodeFrame(frame)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.viewers {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// IsRunning reports whether the sink accepts frames.
func (s *MirrorSink) IsRunning() bool {
	return s.running.Load()
}

// Stop detaches every viewer and refuses further frames. Idempotent.
func (s *MirrorSink) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.viewers {
		close(ch)
		delete(s.viewers, id)
	}
}

// ServeViewer streams frames to one viewer connection until the viewer
// disconnects or the sink stops. It blocks and is meant to be called
// from the viewer's HTTP handler.
func (s *MirrorSink) ServeViewer(conn *websocket.Conn) {
	if !s.running.Load() {
		conn.Close()
		return
	}

	ch := make(chan []byte, 2)

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.viewers[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if _, ok := s.viewers[id]; ok {
			delete(s.viewers, id)
			close(ch)
		}
		s.mu.Unlock()
		conn.Close()
	}()

	// Surface viewer-side closes; inbound payloads are ignored.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for payload := range ch {
		if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			pkglog.L().Debug().Err(err).Msg("mirror viewer write failed")
			return
		}
	}
}
