// Package state holds the authoritative session state for a running
// driver process. All access goes through the Store's synchronized
// accessors; field groups (document, presenter, annotations,
// integration) are independently locked so a slow reader of one group
// never blocks progress on another.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrStateUnavailable is returned when a field group could not be read
// or mutated consistently (a transform panicked mid-update). Callers
// must treat it as "temporarily unknown state" and report upstream,
// never assume a stale snapshot is current.
var ErrStateUnavailable = errors.New("session state unavailable")

// Zoom bounds. SetZoom clamps into this range rather than rejecting.
const (
	MinZoom = 0.1
	MaxZoom = 5.0
)

// DocumentState describes the currently presented document.
// When Loaded is false, TotalPages is 0 and CurrentPage is 1.
type DocumentState struct {
	Path        string  `json:"path,omitempty"`
	CurrentPage int     `json:"current_page"`
	TotalPages  int     `json:"total_pages"`
	Zoom        float64 `json:"zoom"`
	Loaded      bool    `json:"loaded"`
}

// PresenterConfig is the presenter window placement and visual config.
type PresenterConfig struct {
	AlwaysOnTop bool `json:"always_on_top"`
	Transparent bool `json:"transparent"`
	Borderless  bool `json:"borderless"`
	X           int  `json:"x"`
	Y           int  `json:"y"`
	Width       int  `json:"width"`
	Height      int  `json:"height"`
}

// PresenterState describes the presenter overlay.
type PresenterState struct {
	Active bool            `json:"active"`
	Config PresenterConfig `json:"config"`
}

// IntegrationState tracks the capture/output side of the session.
// Frame counters only grow while capture runs and reset on capture stop.
type IntegrationState struct {
	CaptureActive  bool            `json:"capture_active"`
	OutputsActive  map[string]bool `json:"outputs_active"`
	FramesCaptured uint64          `json:"frames_captured"`
	FramesSent     uint64          `json:"frames_sent"`
}

// Store is the single authoritative, concurrently accessed session
// state record. The zero value is not usable; construct with New.
type Store struct {
	docMu sync.RWMutex
	doc   DocumentState

	presMu sync.RWMutex
	pres   PresenterState

	annMu sync.RWMutex
	ann   map[int][]json.RawMessage

	intMu sync.Mutex
	integ IntegrationState
}

// New returns a Store with an empty session: no document, presenter
// inactive, zoom at 100%, no annotations, capture idle.
func New() *Store {
	return &Store{
		doc: DocumentState{CurrentPage: 1, Zoom: 1.0},
		pres: PresenterState{
			Config: PresenterConfig{
				AlwaysOnTop: true,
				Transparent: true,
				Borderless:  true,
				X:           100,
				Y:           100,
				Width:       800,
				Height:      600,
			},
		},
		ann:   make(map[int][]json.RawMessage),
		integ: IntegrationState{OutputsActive: make(map[string]bool)},
	}
}

// Document returns a snapshot of the document group.
func (s *Store) Document() DocumentState {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	return s.doc
}

// UpdateDocument mutates the document group atomically. The transform
// runs under the group lock and must not perform I/O. After the
// transform, invariants are re-normalised: zoom is clamped into
// [MinZoom, MaxZoom]; when loaded, the page is clamped into
// [1, TotalPages]; when not loaded, TotalPages is 0 and the page
// resets to 1.
func (s *Store) UpdateDocument(fn func(*DocumentState)) (err error) {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: document update panicked: %v", ErrStateUnavailable, r)
		}
	}()

	fn(&s.doc)
	normalizeDocument(&s.doc)
	return nil
}

func normalizeDocument(d *DocumentState) {
	if d.Zoom < MinZoom {
		d.Zoom = MinZoom
	}
	if d.Zoom > MaxZoom {
		d.Zoom = MaxZoom
	}
	if !d.Loaded {
		d.Path = ""
		d.TotalPages = 0
		d.CurrentPage = 1
		return
	}
	if d.TotalPages < 1 {
		d.TotalPages = 1
	}
	if d.CurrentPage < 1 {
		d.CurrentPage = 1
	}
	if d.CurrentPage > d.TotalPages {
		d.CurrentPage = d.TotalPages
	}
}

// Presenter returns a snapshot of the presenter group.
func (s *Store) Presenter() PresenterState {
	s.presMu.RLock()
	defer s.presMu.RUnlock()
	return s.pres
}

// UpdatePresenter mutates the presenter group atomically.
func (s *Store) UpdatePresenter(fn func(*PresenterState)) (err error) {
	s.presMu.Lock()
	defer s.presMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: presenter update panicked: %v", ErrStateUnavailable, r)
		}
	}()

	fn(&s.pres)
	return nil
}

// AddAnnotation appends an annotation to the given page, preserving
// insertion order within the page.
func (s *Store) AddAnnotation(page int, value json.RawMessage) error {
	if page < 1 {
		return fmt.Errorf("annotation page %d out of range", page)
	}
	s.annMu.Lock()
	defer s.annMu.Unlock()
	s.ann[page] = append(s.ann[page], value)
	return nil
}

// AnnotationsForPage returns the annotations of one page in insertion
// order. Pages never written to are implicitly empty.
func (s *Store) AnnotationsForPage(page int) []json.RawMessage {
	s.annMu.RLock()
	defer s.annMu.RUnlock()
	src := s.ann[page]
	if len(src) == 0 {
		return nil
	}
	out := make([]json.RawMessage, len(src))
	copy(out, src)
	return out
}

// Annotations returns a copy of the whole annotation store.
func (s *Store) Annotations() map[int][]json.RawMessage {
	s.annMu.RLock()
	defer s.annMu.RUnlock()
	out := make(map[int][]json.RawMessage, len(s.ann))
	for page, values := range s.ann {
		cp := make([]json.RawMessage, len(values))
		copy(cp, values)
		out[page] = cp
	}
	return out
}

// ClearAnnotations empties the annotation store wholesale.
func (s *Store) ClearAnnotations() {
	s.annMu.Lock()
	defer s.annMu.Unlock()
	s.ann = make(map[int][]json.RawMessage)
}

// Integration returns a snapshot of the integration group.
func (s *Store) Integration() IntegrationState {
	s.intMu.Lock()
	defer s.intMu.Unlock()
	return s.integrationLocked()
}

func (s *Store) integrationLocked() IntegrationState {
	snap := s.integ
	snap.OutputsActive = make(map[string]bool, len(s.integ.OutputsActive))
	for kind, active := range s.integ.OutputsActive {
		snap.OutputsActive[kind] = active
	}
	return snap
}

// SetCaptureActive records whether the capture pipeline is running.
// This flag must always reflect reality, not optimistic intent.
func (s *Store) SetCaptureActive(active bool) {
	s.intMu.Lock()
	defer s.intMu.Unlock()
	s.integ.CaptureActive = active
}

// SetOutputActive records whether a sink kind currently has a running
// instance.
func (s *Store) SetOutputActive(kind string, active bool) {
	s.intMu.Lock()
	defer s.intMu.Unlock()
	s.integ.OutputsActive[kind] = active
}

// IncrementFramesCaptured bumps the captured-frame counter. Called once
// per frame that carried pixel data.
func (s *Store) IncrementFramesCaptured() {
	s.intMu.Lock()
	defer s.intMu.Unlock()
	s.integ.FramesCaptured++
}

// IncrementFramesSent bumps the sent-frame counter. Called once per
// successful sink delivery.
func (s *Store) IncrementFramesSent() {
	s.intMu.Lock()
	defer s.intMu.Unlock()
	s.integ.FramesSent++
}

// ResetFrameCounters zeroes both frame counters. Called when capture
// stops.
func (s *Store) ResetFrameCounters() {
	s.intMu.Lock()
	defer s.intMu.Unlock()
	s.integ.FramesCaptured = 0
	s.integ.FramesSent = 0
}
