// Package protocol defines the JSON message vocabulary exchanged with
// remote clients. Every frame is a JSON object with a "type"
// discriminator; the command set (client -> driver) and event set
// (driver -> client) are closed.
package protocol

import "encoding/json"

// Command types from client.
const (
	CmdNextPage         = "NEXT_PAGE"
	CmdPreviousPage     = "PREVIOUS_PAGE"
	CmdGoToPage         = "GO_TO_PAGE"
	CmdGetState         = "GET_STATE"
	CmdSetZoom          = "SET_ZOOM"
	CmdTogglePresenter  = "TOGGLE_PRESENTER"
	CmdPing             = "PING"
	CmdAddAnnotation    = "ADD_ANNOTATION"
	CmdClearAnnotations = "CLEAR_ANNOTATIONS"
)

// Event types to client.
const (
	EvtState              = "STATE"
	EvtPageChanged        = "PAGE_CHANGED"
	EvtDocumentOpened     = "DOCUMENT_OPENED"
	EvtDocumentClosed     = "DOCUMENT_CLOSED"
	EvtZoomChanged        = "ZOOM_CHANGED"
	EvtPresenterChanged   = "PRESENTER_CHANGED"
	EvtAnnotationsUpdated = "ANNOTATIONS_UPDATED"
	EvtAnnotationsCleared = "ANNOTATIONS_CLEARED"
	EvtError              = "ERROR"
	EvtPong               = "PONG"
	EvtConnected          = "CONNECTED"
)

// BaseMessage is the minimal structure probed to discover a message's type.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server commands

// GoToPageCommand navigates to a specific page.
type GoToPageCommand struct {
	Type string `json:"type"`
	Page int    `json:"page"`
}

// SetZoomCommand sets the zoom level (1.0 = 100%).
type SetZoomCommand struct {
	Type string  `json:"type"`
	Zoom float64 `json:"zoom"`
}

// AddAnnotationCommand appends an annotation to a page. The annotation
// payload is an opaque structured value; the driver stores and
// redistributes it without interpreting it.
type AddAnnotationCommand struct {
	Type       string          `json:"type"`
	Page       int             `json:"page"`
	Annotation json.RawMessage `json:"annotation"`
}

// Server -> Client events

// Event is any outbound protocol event. Kind returns the wire type
// discriminator and decides broadcast-worthiness.
type Event interface {
	Kind() string
}

// StateEvent is the full session snapshot sent on join and on GET_STATE.
type StateEvent struct {
	Type            string  `json:"type"`
	Page            int     `json:"page"`
	TotalPages      int     `json:"total_pages"`
	Zoom            float64 `json:"zoom"`
	DocumentLoaded  bool    `json:"document_loaded"`
	DocumentPath    string  `json:"document_path,omitempty"`
	PresenterActive bool    `json:"presenter_active"`
}

func (e *StateEvent) Kind() string { return EvtState }

// PageChangedEvent notifies a page navigation.
type PageChangedEvent struct {
	Type       string `json:"type"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
}

func NewPageChanged(page, totalPages int) *PageChangedEvent {
	return &PageChangedEvent{Type: EvtPageChanged, Page: page, TotalPages: totalPages}
}

func (e *PageChangedEvent) Kind() string { return EvtPageChanged }

// DocumentOpenedEvent notifies that the driver opened a document.
type DocumentOpenedEvent struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	PageCount int    `json:"page_count"`
}

func NewDocumentOpened(path string, pageCount int) *DocumentOpenedEvent {
	return &DocumentOpenedEvent{Type: EvtDocumentOpened, Path: path, PageCount: pageCount}
}

func (e *DocumentOpenedEvent) Kind() string { return EvtDocumentOpened }

// DocumentClosedEvent notifies that the current document was closed.
type DocumentClosedEvent struct {
	Type string `json:"type"`
}

func NewDocumentClosed() *DocumentClosedEvent {
	return &DocumentClosedEvent{Type: EvtDocumentClosed}
}

func (e *DocumentClosedEvent) Kind() string { return EvtDocumentClosed }

// ZoomChangedEvent notifies a zoom change. Zoom is always within the
// valid range; out-of-range requests are clamped, not rejected.
type ZoomChangedEvent struct {
	Type string  `json:"type"`
	Zoom float64 `json:"zoom"`
}

func NewZoomChanged(zoom float64) *ZoomChangedEvent {
	return &ZoomChangedEvent{Type: EvtZoomChanged, Zoom: zoom}
}

func (e *ZoomChangedEvent) Kind() string { return EvtZoomChanged }

// PresenterChangedEvent notifies that presenter mode toggled.
type PresenterChangedEvent struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func NewPresenterChanged(active bool) *PresenterChangedEvent {
	return &PresenterChangedEvent{Type: EvtPresenterChanged, Active: active}
}

func (e *PresenterChangedEvent) Kind() string { return EvtPresenterChanged }

// AnnotationsUpdatedEvent carries a partial update keyed by page: only
// the pages present in the map changed, and only the listed values were
// appended.
type AnnotationsUpdatedEvent struct {
	Type        string                    `json:"type"`
	Annotations map[int][]json.RawMessage `json:"annotations"`
}

func NewAnnotationsUpdated(page int, values []json.RawMessage) *AnnotationsUpdatedEvent {
	return &AnnotationsUpdatedEvent{
		Type:        EvtAnnotationsUpdated,
		Annotations: map[int][]json.RawMessage{page: values},
	}
}

func (e *AnnotationsUpdatedEvent) Kind() string { return EvtAnnotationsUpdated }

// AnnotationsClearedEvent notifies that all annotations were removed.
type AnnotationsClearedEvent struct {
	Type string `json:"type"`
}

func NewAnnotationsCleared() *AnnotationsClearedEvent {
	return &AnnotationsClearedEvent{Type: EvtAnnotationsCleared}
}

func (e *AnnotationsClearedEvent) Kind() string { return EvtAnnotationsCleared }

// ErrorEvent reports a command failure to the originating connection
// only. It never terminates the connection.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) *ErrorEvent {
	return &ErrorEvent{Type: EvtError, Message: message}
}

func (e *ErrorEvent) Kind() string { return EvtError }

// PongEvent answers a PING.
type PongEvent struct {
	Type string `json:"type"`
}

func NewPong() *PongEvent { return &PongEvent{Type: EvtPong} }

func (e *PongEvent) Kind() string { return EvtPong }

// ConnectedEvent confirms the handshake and reports the driver version.
type ConnectedEvent struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

func NewConnected(version string) *ConnectedEvent {
	return &ConnectedEvent{Type: EvtConnected, Version: version}
}

func (e *ConnectedEvent) Kind() string { return EvtConnected }

// Broadcastable reports whether an event kind must reach every
// connection rather than just the originator. It is a pure function of
// the kind and is applied identically regardless of the event's origin.
func Broadcastable(kind string) bool {
	switch kind {
	case EvtPageChanged,
		EvtZoomChanged,
		EvtPresenterChanged,
		EvtDocumentOpened,
		EvtDocumentClosed,
		EvtAnnotationsUpdated,
		EvtAnnotationsCleared:
		return true
	default:
		return false
	}
}
