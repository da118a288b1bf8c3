package output

import (
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slatecast/slatecast/internal/capture"
)

func sampleFrame() capture.Frame {
	return capture.Frame{
		Data:        []byte{0xDE, 0xAD, 0xBE, 0xEF},
		Width:       2,
		Height:      1,
		Stride:      4,
		TimestampNS: 123456789,
	}
}

func TestEncodeFrameLayout(t *testing.T) {
	buf := encodeFrame(sampleFrame())

	require.Len(t, buf, frameHeaderSize+4)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(buf[0:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[4:]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(buf[8:]))
	assert.Equal(t, uint64(123456789), binary.LittleEndian.Uint64(buf[12:]))
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, buf[frameHeaderSize:])
}

func TestMirrorSendWithoutViewers(t *testing.T) {
	s := NewMirrorSink()
	defer s.Stop()

	assert.True(t, s.IsRunning())
	assert.NoError(t, s.Send(sampleFrame()))
}

func TestMirrorSendAfterStop(t *testing.T) {
	s := NewMirrorSink()
	s.Stop()
	s.Stop()

	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Send(sampleFrame()), ErrNotRunning)
}

func TestMirrorViewerReceivesFrames(t *testing.T) {
	s := NewMirrorSink()
	defer s.Stop()

	up := websocket.Upgrader{}
	var wg sync.WaitGroup
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ServeViewer(conn)
		}()
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Attachment races the dial response; retry until the viewer is in.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.viewers) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Send(sampleFrame()))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)
	assert.Equal(t, encodeFrame(sampleFrame()), payload)

	// Stopping the sink ends the viewer stream.
	s.Stop()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	wg.Wait()
}

func TestMirrorViewerDisconnectDetaches(t *testing.T) {
	s := NewMirrorSink()
	defer s.Stop()

	up := websocket.Upgrader{}
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go func() {
			defer close(done)
			s.ServeViewer(conn)
		}()
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.viewers) == 1
	}, 2*time.Second, 5*time.Millisecond)

	conn.Close()

	// The dead viewer is detached by its next failed write, so keep
	// frames flowing until the cleanup runs.
	require.Eventually(t, func() bool {
		require.NoError(t, s.Send(sampleFrame()))
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.viewers) == 0
	}, 2*time.Second, 5*time.Millisecond)

	<-done

	// The sink itself keeps running.
	assert.True(t, s.IsRunning())
	assert.NoError(t, s.Send(sampleFrame()))
}
