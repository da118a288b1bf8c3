package capture

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	pkglog "github.com/slatecast/slatecast/pkg/log"

	"github.com/slatecast/slatecast/internal/config"
	"github.com/slatecast/slatecast/internal/state"
)

var (
	// ErrAlreadyRunning is returned by Start while a capture is active.
	ErrAlreadyRunning = errors.New("capture already running")

	// ErrSinkExists is returned when registering a sink kind that
	// already has an instance. The old instance must be stopped first.
	ErrSinkExists = errors.New("sink kind already registered")

	// ErrSinkNotFound is returned when stopping an unregistered kind.
	ErrSinkNotFound = errors.New("sink kind not registered")
)

// Pipeline drives the capture-to-output fan-out. It is Idle until Start
// succeeds and returns to Idle when Stop completes. Frames arrive on
// the source's own thread; the pipeline offers each one to every
// running sink and keeps the session frame counters.
type Pipeline struct {
	source Source
	store  *state.Store
	cfg    config.CaptureConfig

	mu       sync.Mutex
	running  bool
	stopping atomic.Bool
	done     chan struct{}

	sinkMu sync.Mutex
	sinks  map[string]Sink
}

// NewPipeline creates an idle pipeline over the given frame source.
func NewPipeline(source Source, store *state.Store, cfg config.CaptureConfig) *Pipeline {
	return &Pipeline{
		source: source,
		store:  store,
		cfg:    cfg,
		sinks:  make(map[string]Sink),
	}
}

// Running reports whether the pipeline is capturing.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start resolves the selector and begins capturing. If resolution or
// delivery setup fails the pipeline stays Idle and the capture-active
// flag is never raised, so the session state cannot claim a capture
// that does not exist.
func (p *Pipeline) Start(sel Selector) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}

	target, err := p.source.Resolve(sel)
	if err != nil {
		return err
	}

	delivery, err := p.source.Begin(target, p.onFrame)
	if err != nil {
		return err
	}

	pkglog.L().Info().
		Int("target_id", target.ID).
		Str("target", target.Description).
		Msg("capture started")

	p.running = true
	p.stopping.Store(false)
	p.done = make(chan struct{})
	p.store.SetCaptureActive(true)

	go p.run(delivery)
	return nil
}

// Stop ends the capture. When the pipeline is already Idle it is a
// no-op. Otherwise it signals the capture goroutine, waits for it to
// observe the signal (cancellation latency is bounded by the poll
// interval, not zero), then tears down every sink and resets the frame
// counters.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}

	p.stopping.Store(true)

	select {
	case <-p.done:
	case <-time.After(p.cfg.StopDeadline):
		pkglog.L().Warn().Msg("capture loop did not stop within deadline")
	}

	p.running = false
	return nil
}

// run owns the frame delivery for the whole capturing period. It polls
// for the stop signal at a bounded interval; frames keep arriving on
// the source's thread independently of this loop.
func (p *Pipeline) run(delivery Delivery) {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.StopPoll)
	defer ticker.Stop()

	for range ticker.C {
		if p.stopping.Load() {
			break
		}
	}

	delivery.End()
	p.teardownSinks()
	p.store.ResetFrameCounters()
	p.store.SetCaptureActive(false)
	pkglog.L().Info().Msg("capture stopped")
}

// onFrame runs on the source's delivery thread. Empty frames are
// discarded without counting; every frame with payload is counted once
// and offered to each running sink. One sink's failure never blocks
// the others.
func (p *Pipeline) onFrame(frame Frame) {
	if frame.Empty() {
		return
	}

	p.store.IncrementFramesCaptured()

	for _, entry := range p.snapshotSinks() {
		if !entry.sink.IsRunning() {
			continue
		}
		if err := entry.sink.Send(frame); err != nil {
			pkglog.L().Debug().Err(err).Str(pkglog.FieldSinkKind, entry.kind).Msg("sink send failed")
			continue
		}
		p.store.IncrementFramesSent()
	}
}

type sinkEntry struct {
	kind string
	sink Sink
}

// snapshotSinks copies the registry so the lock is never held across a
// sink's Send.
func (p *Pipeline) snapshotSinks() []sinkEntry {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()

	entries := make([]sinkEntry, 0, len(p.sinks))
	for kind, sink := range p.sinks {
		entries = append(entries, sinkEntry{kind: kind, sink: sink})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].kind < entries[j].kind })
	return entries
}

// RegisterSink adds a sink under its kind. Registration is exclusive
// per kind; callers must stop the previous instance first.
func (p *Pipeline) RegisterSink(kind string, sink Sink) error {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()

	if _, ok := p.sinks[kind]; ok {
		return ErrSinkExists
	}
	p.sinks[kind] = sink
	p.store.SetOutputActive(kind, true)
	pkglog.L().Info().Str(pkglog.FieldSinkKind, kind).Msg("output sink registered")
	return nil
}

// StopSink stops and removes one sink kind.
func (p *Pipeline) StopSink(kind string) error {
	p.sinkMu.Lock()
	sink, ok := p.sinks[kind]
	if ok {
		delete(p.sinks, kind)
	}
	p.sinkMu.Unlock()

	if !ok {
		return ErrSinkNotFound
	}

	sink.Stop()
	p.store.SetOutputActive(kind, false)
	pkglog.L().Info().Str(pkglog.FieldSinkKind, kind).Msg("output sink stopped")
	return nil
}

// SinkKinds returns the registered sink kinds in deterministic order.
func (p *Pipeline) SinkKinds() []string {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()

	kinds := make([]string, 0, len(p.sinks))
	for kind := range p.sinks {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// teardownSinks stops every registered sink in deterministic kind
// order: each sink is signalled to stop before its handle is dropped.
func (p *Pipeline) teardownSinks() {
	p.sinkMu.Lock()
	entries := make([]sinkEntry, 0, len(p.sinks))
	for kind, sink := range p.sinks {
		entries = append(entries, sinkEntry{kind: kind, sink: sink})
	}
	p.sinks = make(map[string]Sink)
	p.sinkMu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].kind < entries[j].kind })
	for _, entry := range entries {
		entry.sink.Stop()
		p.store.SetOutputActive(entry.kind, false)
	}
}
