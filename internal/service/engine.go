package service

import (
	"encoding/json"
	"fmt"

	"github.com/slatecast/slatecast/internal/protocol"
	"github.com/slatecast/slatecast/internal/state"
)

// Host notification event names. These mirror the protocol events but
// travel over the host/GUI channel, not the wire.
const (
	NotifyPageChanged        = "page-changed"
	NotifyZoomChanged        = "zoom-changed"
	NotifyPresenterChanged   = "presenter-changed"
	NotifyAnnotationAdded    = "annotation-added"
	NotifyAnnotationsCleared = "annotations-cleared"
	NotifyDocumentOpened     = "document-opened"
	NotifyDocumentClosed     = "document-closed"
)

type engine struct {
	store     *state.Store
	notifier  Notifier
	broadcast Broadcaster
}

// NewEngine creates the command engine. The broadcaster carries
// host-originated events (document open/close) to connected clients.
func NewEngine(store *state.Store, notifier Notifier, broadcast Broadcaster) Engine {
	return &engine{store: store, notifier: notifier, broadcast: broadcast}
}

func (e *engine) NextPage() protocol.Event {
	doc := e.store.Document()
	if !doc.Loaded {
		return protocol.NewError("No document is currently open")
	}
	if doc.CurrentPage >= doc.TotalPages {
		return protocol.NewError("Already on last page")
	}

	newPage := doc.CurrentPage + 1
	if err := e.store.UpdateDocument(func(d *state.DocumentState) {
		d.CurrentPage = newPage
	}); err != nil {
		return protocol.NewError(err.Error())
	}

	e.notify(NotifyPageChanged, map[string]int{"page": newPage, "total_pages": doc.TotalPages})
	return protocol.NewPageChanged(newPage, doc.TotalPages)
}

func (e *engine) PreviousPage() protocol.Event {
	doc := e.store.Document()
	if !doc.Loaded {
		return protocol.NewError("No document is currently open")
	}
	if doc.CurrentPage <= 1 {
		return protocol.NewError("Already on first page")
	}

	newPage := doc.CurrentPage - 1
	if err := e.store.UpdateDocument(func(d *state.DocumentState) {
		d.CurrentPage = newPage
	}); err != nil {
		return protocol.NewError(err.Error())
	}

	e.notify(NotifyPageChanged, map[string]int{"page": newPage, "total_pages": doc.TotalPages})
	return protocol.NewPageChanged(newPage, doc.TotalPages)
}

func (e *engine) GoToPage(page int) protocol.Event {
	doc := e.store.Document()
	if !doc.Loaded {
		return protocol.NewError("No document is currently open")
	}
	if page < 1 || page > doc.TotalPages {
		return protocol.NewError(fmt.Sprintf("Page %d is out of range (1-%d)", page, doc.TotalPages))
	}

	if err := e.store.UpdateDocument(func(d *state.DocumentState) {
		d.CurrentPage = page
	}); err != nil {
		return protocol.NewError(err.Error())
	}

	e.notify(NotifyPageChanged, map[string]int{"page": page, "total_pages": doc.TotalPages})
	return protocol.NewPageChanged(page, doc.TotalPages)
}

func (e *engine) SetZoom(zoom float64) protocol.Event {
	if zoom < state.MinZoom {
		zoom = state.MinZoom
	}
	if zoom > state.MaxZoom {
		zoom = state.MaxZoom
	}

	if err := e.store.UpdateDocument(func(d *state.DocumentState) {
		d.Zoom = zoom
	}); err != nil {
		return protocol.NewError(err.Error())
	}

	e.notify(NotifyZoomChanged, map[string]float64{"zoom": zoom})
	return protocol.NewZoomChanged(zoom)
}

func (e *engine) TogglePresenter() protocol.Event {
	var active bool
	if err := e.store.UpdatePresenter(func(p *state.PresenterState) {
		p.Active = !p.Active
		active = p.Active
	}); err != nil {
		return protocol.NewError(err.Error())
	}

	e.notify(NotifyPresenterChanged, map[string]bool{"active": active})
	return protocol.NewPresenterChanged(active)
}

func (e *engine) AddAnnotation(page int, value json.RawMessage) protocol.Event {
	if len(value) == 0 || !json.Valid(value) {
		return protocol.NewError("Invalid annotation payload")
	}
	if err := e.store.AddAnnotation(page, value); err != nil {
		return protocol.NewError(err.Error())
	}

	e.notify(NotifyAnnotationAdded, map[string]any{"page": page, "annotation": value})

	// Partial update: only the value just added, keyed by its page.
	return protocol.NewAnnotationsUpdated(page, []json.RawMessage{value})
}

func (e *engine) ClearAnnotations() protocol.Event {
	e.store.ClearAnnotations()
	e.notify(NotifyAnnotationsCleared, nil)
	return protocol.NewAnnotationsCleared()
}

func (e *engine) StateSnapshot() protocol.Event {
	doc := e.store.Document()
	pres := e.store.Presenter()

	return &protocol.StateEvent{
		Type:            protocol.EvtState,
		Page:            doc.CurrentPage,
		TotalPages:      doc.TotalPages,
		Zoom:            doc.Zoom,
		DocumentLoaded:  doc.Loaded,
		DocumentPath:    doc.Path,
		PresenterActive: pres.Active,
	}
}

func (e *engine) OpenDocument(path string, pages int) error {
	if pages < 1 {
		return fmt.Errorf("document %q has no pages", path)
	}

	if err := e.store.UpdateDocument(func(d *state.DocumentState) {
		d.Path = path
		d.TotalPages = pages
		d.CurrentPage = 1
		d.Loaded = true
	}); err != nil {
		return err
	}

	e.notify(NotifyDocumentOpened, map[string]any{"path": path, "page_count": pages})
	e.broadcast.Broadcast(protocol.NewDocumentOpened(path, pages))
	return nil
}

func (e *engine) CloseDocument() error {
	if err := e.store.UpdateDocument(func(d *state.DocumentState) {
		d.Loaded = false
	}); err != nil {
		return err
	}

	e.notify(NotifyDocumentClosed, nil)
	e.broadcast.Broadcast(protocol.NewDocumentClosed())
	return nil
}

// notify is fire-and-forget: a nil notifier or a failing one never
// fails the command.
func (e *engine) notify(event string, payload any) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(event, payload)
}
