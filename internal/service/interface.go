package service

import (
	"encoding/json"

	"github.com/slatecast/slatecast/internal/protocol"
)

// Engine applies protocol commands and host operations against the
// session state and produces the direct response event. Broadcast-worthy
// responses to connection commands are re-published by the caller after
// the direct response is delivered; host-originated operations publish
// through the engine's own broadcaster.
type Engine interface {
	// NextPage advances one page, clamped at the last page.
	NextPage() protocol.Event

	// PreviousPage goes back one page, clamped at the first page.
	PreviousPage() protocol.Event

	// GoToPage jumps to an explicit page; out-of-range targets error
	// and leave the page unchanged.
	GoToPage(page int) protocol.Event

	// SetZoom stores the zoom level clamped into the valid range.
	SetZoom(zoom float64) protocol.Event

	// TogglePresenter flips presenter mode.
	TogglePresenter() protocol.Event

	// AddAnnotation appends an opaque annotation value to a page.
	AddAnnotation(page int, value json.RawMessage) protocol.Event

	// ClearAnnotations empties the annotation store.
	ClearAnnotations() protocol.Event

	// StateSnapshot returns the full session state event.
	StateSnapshot() protocol.Event

	// OpenDocument loads a document and broadcasts DOCUMENT_OPENED.
	OpenDocument(path string, pages int) error

	// CloseDocument closes the current document and broadcasts
	// DOCUMENT_CLOSED.
	CloseDocument() error
}

// Broadcaster publishes events to every connected client.
type Broadcaster interface {
	Broadcast(ev protocol.Event)
}

// Notifier delivers best-effort notifications to the host GUI layer.
// Failures are logged by the implementation, never propagated.
type Notifier interface {
	Notify(event string, payload any)
}
