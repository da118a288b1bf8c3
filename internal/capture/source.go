// Package capture owns the frame-source lifecycle and fans captured
// frames out to the active output sinks.
package capture

// Frame is a raw captured video frame. Pixels are opaque to the
// pipeline; a frame with no payload means acquisition failed and is
// discarded without touching any counter.
type Frame struct {
	Data        []byte
	Width       int
	Height      int
	Stride      int
	TimestampNS uint64
}

// Empty reports whether the frame carries no pixel data.
func (f Frame) Empty() bool { return len(f.Data) == 0 }

// Selector picks a capture target: a specific display by ID, or a
// window by title substring when DisplayID is zero.
type Selector struct {
	DisplayID int
	Window    string
}

// Target is a resolved capture target.
type Target struct {
	ID          int
	Description string
	Width       int
	Height      int
}

// Delivery is a running frame delivery owned by the pipeline for the
// whole capturing period.
type Delivery interface {
	// End stops frame delivery and releases the underlying resource.
	End()
}

// Sink is any output destination for captured frames. Concrete
// destinations live in the output package; the pipeline depends only on
// this capability.
type Sink interface {
	// Send offers one frame to the destination. It may fail
	// transiently (no connected viewer, closed file).
	Send(frame Frame) error

	// IsRunning reports whether the sink accepts frames.
	IsRunning() bool

	// Stop releases the underlying resource. Idempotent.
	Stop()
}

// Source is the frame-source collaborator. Frames are delivered via the
// callback on the source's own thread, outside the cooperative
// scheduler.
type Source interface {
	// Resolve maps a selector to a concrete target. Resolution failure
	// must abort any capture start.
	Resolve(sel Selector) (Target, error)

	// Begin starts delivering frames for the target to onFrame.
	Begin(target Target, onFrame func(Frame)) (Delivery, error)
}
