package capture

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slatecast/slatecast/internal/config"
	"github.com/slatecast/slatecast/internal/state"
)

type fakeDelivery struct {
	ended atomic.Bool
}

func (d *fakeDelivery) End() { d.ended.Store(true) }

// fakeSource hands the registered callback to the test so it can inject
// frames as if they arrived on the source's thread.
type fakeSource struct {
	mu         sync.Mutex
	onFrame    func(Frame)
	delivery   *fakeDelivery
	resolveErr error
	beginErr   error
}

func (s *fakeSource) Resolve(sel Selector) (Target, error) {
	if s.resolveErr != nil {
		return Target{}, s.resolveErr
	}
	return Target{ID: sel.DisplayID, Description: "fake", Width: 640, Height: 480}, nil
}

func (s *fakeSource) Begin(target Target, onFrame func(Frame)) (Delivery, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = onFrame
	s.delivery = &fakeDelivery{}
	return s.delivery, nil
}

func (s *fakeSource) inject(frame Frame) {
	s.mu.Lock()
	onFrame := s.onFrame
	s.mu.Unlock()
	onFrame(frame)
}

type fakeSink struct {
	running atomic.Bool
	stopped atomic.Bool
	sendErr error
	frames  atomic.Uint64
}

func newFakeSink() *fakeSink {
	s := &fakeSink{}
	s.running.Store(true)
	return s
}

func (s *fakeSink) Send(frame Frame) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.frames.Add(1)
	return nil
}

func (s *fakeSink) IsRunning() bool { return s.running.Load() }

func (s *fakeSink) Stop() {
	s.running.Store(false)
	s.stopped.Store(true)
}

func testCaptureConfig() config.CaptureConfig {
	return config.CaptureConfig{
		FPS:          30,
		Width:        640,
		Height:       480,
		StopPoll:     time.Millisecond,
		StopDeadline: time.Second,
	}
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeSource, *state.Store) {
	t.Helper()
	source := &fakeSource{}
	store := state.New()
	return NewPipeline(source, store, testCaptureConfig()), source, store
}

func testFrame() Frame {
	return Frame{Data: []byte{1, 2, 3, 4}, Width: 1, Height: 1, Stride: 4, TimestampNS: 1}
}

func TestStartWhileRunningFails(t *testing.T) {
	p, _, store := newTestPipeline(t)

	require.NoError(t, p.Start(Selector{}))
	defer p.Stop()

	assert.True(t, p.Running())
	assert.True(t, store.Integration().CaptureActive)
	assert.ErrorIs(t, p.Start(Selector{}), ErrAlreadyRunning)
}

func TestStartResolveFailureStaysIdle(t *testing.T) {
	source := &fakeSource{resolveErr: errors.New("display 9 not found")}
	store := state.New()
	p := NewPipeline(source, store, testCaptureConfig())

	require.Error(t, p.Start(Selector{DisplayID: 9}))
	assert.False(t, p.Running())
	assert.False(t, store.Integration().CaptureActive)
}

func TestStartBeginFailureStaysIdle(t *testing.T) {
	source := &fakeSource{beginErr: errors.New("device busy")}
	store := state.New()
	p := NewPipeline(source, store, testCaptureConfig())

	require.Error(t, p.Start(Selector{}))
	assert.False(t, p.Running())
	assert.False(t, store.Integration().CaptureActive)
}

func TestStopIsIdempotent(t *testing.T) {
	p, source, store := newTestPipeline(t)

	require.NoError(t, p.Stop()) // idle stop is a no-op

	require.NoError(t, p.Start(Selector{}))
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())

	assert.False(t, p.Running())
	assert.False(t, store.Integration().CaptureActive)
	assert.True(t, source.delivery.ended.Load())
}

func TestFrameCounters(t *testing.T) {
	p, source, store := newTestPipeline(t)
	require.NoError(t, p.Start(Selector{}))
	defer p.Stop()

	sink := newFakeSink()
	require.NoError(t, p.RegisterSink("mirror", sink))

	source.inject(testFrame())
	source.inject(testFrame())
	source.inject(Frame{}) // empty frames never count

	integ := store.Integration()
	assert.Equal(t, uint64(2), integ.FramesCaptured)
	assert.Equal(t, uint64(2), integ.FramesSent)
	assert.Equal(t, uint64(2), sink.frames.Load())
}

func TestFramesSentCountsPerSinkDelivery(t *testing.T) {
	p, source, store := newTestPipeline(t)
	require.NoError(t, p.Start(Selector{}))
	defer p.Stop()

	require.NoError(t, p.RegisterSink("mirror", newFakeSink()))
	require.NoError(t, p.RegisterSink("record", newFakeSink()))

	source.inject(testFrame())

	integ := store.Integration()
	assert.Equal(t, uint64(1), integ.FramesCaptured)
	assert.Equal(t, uint64(2), integ.FramesSent)
}

func TestSinkFailureDoesNotBlockOthers(t *testing.T) {
	p, source, store := newTestPipeline(t)
	require.NoError(t, p.Start(Selector{}))
	defer p.Stop()

	failing := newFakeSink()
	failing.sendErr = errors.New("connection reset")
	healthy := newFakeSink()

	require.NoError(t, p.RegisterSink("mirror", failing))
	require.NoError(t, p.RegisterSink("record", healthy))

	source.inject(testFrame())

	assert.Equal(t, uint64(1), healthy.frames.Load())
	assert.Equal(t, uint64(1), store.Integration().FramesSent)
}

func TestStoppedSinkIsSkipped(t *testing.T) {
	p, source, _ := newTestPipeline(t)
	require.NoError(t, p.Start(Selector{}))
	defer p.Stop()

	sink := newFakeSink()
	sink.running.Store(false)
	require.NoError(t, p.RegisterSink("mirror", sink))

	source.inject(testFrame())

	assert.Zero(t, sink.frames.Load())
}

func TestRegisterSinkExclusivePerKind(t *testing.T) {
	p, _, store := newTestPipeline(t)

	first := newFakeSink()
	require.NoError(t, p.RegisterSink("mirror", first))
	assert.ErrorIs(t, p.RegisterSink("mirror", newFakeSink()), ErrSinkExists)
	assert.True(t, store.Integration().OutputsActive["mirror"])

	require.NoError(t, p.StopSink("mirror"))
	assert.True(t, first.stopped.Load())
	assert.False(t, store.Integration().OutputsActive["mirror"])

	assert.ErrorIs(t, p.StopSink("mirror"), ErrSinkNotFound)

	require.NoError(t, p.RegisterSink("mirror", newFakeSink()))
	assert.Equal(t, []string{"mirror"}, p.SinkKinds())
}

func TestStopTearsDownSinksAndResetsCounters(t *testing.T) {
	p, source, store := newTestPipeline(t)
	require.NoError(t, p.Start(Selector{}))

	mirror := newFakeSink()
	record := newFakeSink()
	require.NoError(t, p.RegisterSink("mirror", mirror))
	require.NoError(t, p.RegisterSink("record", record))

	source.inject(testFrame())
	require.Equal(t, uint64(1), store.Integration().FramesCaptured)

	require.NoError(t, p.Stop())

	assert.True(t, mirror.stopped.Load())
	assert.True(t, record.stopped.Load())
	assert.Empty(t, p.SinkKinds())

	integ := store.Integration()
	assert.False(t, integ.CaptureActive)
	assert.Zero(t, integ.FramesCaptured)
	assert.Zero(t, integ.FramesSent)
	assert.False(t, integ.OutputsActive["mirror"])
	assert.False(t, integ.OutputsActive["record"])
}

func TestRestartAfterStop(t *testing.T) {
	p, source, store := newTestPipeline(t)

	require.NoError(t, p.Start(Selector{}))
	require.NoError(t, p.Stop())

	require.NoError(t, p.Start(Selector{}))
	defer p.Stop()

	require.NoError(t, p.RegisterSink("mirror", newFakeSink()))
	source.inject(testFrame())

	integ := store.Integration()
	assert.True(t, integ.CaptureActive)
	assert.Equal(t, uint64(1), integ.FramesCaptured)
}
