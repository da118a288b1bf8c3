package state

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDocument(t *testing.T, s *Store, pages int) {
	t.Helper()
	require.NoError(t, s.UpdateDocument(func(d *DocumentState) {
		d.Path = "/tmp/deck.pdf"
		d.TotalPages = pages
		d.CurrentPage = 1
		d.Loaded = true
	}))
}

func TestNewStoreDefaults(t *testing.T) {
	s := New()

	doc := s.Document()
	assert.False(t, doc.Loaded)
	assert.Equal(t, 1, doc.CurrentPage)
	assert.Equal(t, 0, doc.TotalPages)
	assert.Equal(t, 1.0, doc.Zoom)

	assert.False(t, s.Presenter().Active)
	assert.Zero(t, s.Integration().FramesCaptured)
}

func TestUpdateDocumentClampsPage(t *testing.T) {
	s := New()
	loadDocument(t, s, 10)

	require.NoError(t, s.UpdateDocument(func(d *DocumentState) {
		d.CurrentPage = 99
	}))
	assert.Equal(t, 10, s.Document().CurrentPage)

	require.NoError(t, s.UpdateDocument(func(d *DocumentState) {
		d.CurrentPage = -3
	}))
	assert.Equal(t, 1, s.Document().CurrentPage)
}

func TestUpdateDocumentClampsZoom(t *testing.T) {
	s := New()

	for input, want := range map[float64]float64{
		0.001:  MinZoom,
		-2:     MinZoom,
		100:    MaxZoom,
		1.5:    1.5,
		MinZoom: MinZoom,
		MaxZoom: MaxZoom,
	} {
		require.NoError(t, s.UpdateDocument(func(d *DocumentState) {
			d.Zoom = input
		}))
		assert.Equal(t, want, s.Document().Zoom, "zoom input %v", input)
	}
}

func TestUnloadResetsDocument(t *testing.T) {
	s := New()
	loadDocument(t, s, 10)
	require.NoError(t, s.UpdateDocument(func(d *DocumentState) {
		d.CurrentPage = 7
	}))

	require.NoError(t, s.UpdateDocument(func(d *DocumentState) {
		d.Loaded = false
	}))

	doc := s.Document()
	assert.False(t, doc.Loaded)
	assert.Equal(t, 0, doc.TotalPages)
	assert.Equal(t, 1, doc.CurrentPage)
	assert.Empty(t, doc.Path)
}

func TestUpdateDocumentPanicSurfacesAsUnavailable(t *testing.T) {
	s := New()
	loadDocument(t, s, 10)

	err := s.UpdateDocument(func(d *DocumentState) {
		panic("boom")
	})
	require.ErrorIs(t, err, ErrStateUnavailable)

	// The group must stay usable after a failed transform.
	require.NoError(t, s.UpdateDocument(func(d *DocumentState) {
		d.CurrentPage = 3
	}))
	assert.Equal(t, 3, s.Document().CurrentPage)
}

func TestAnnotationsPreserveInsertionOrder(t *testing.T) {
	s := New()

	x := json.RawMessage(`{"shape":"X"}`)
	y := json.RawMessage(`{"shape":"Y"}`)
	require.NoError(t, s.AddAnnotation(3, x))
	require.NoError(t, s.AddAnnotation(3, y))

	got := s.AnnotationsForPage(3)
	require.Len(t, got, 2)
	assert.Equal(t, x, got[0])
	assert.Equal(t, y, got[1])

	// Unwritten pages are implicitly empty.
	assert.Empty(t, s.AnnotationsForPage(4))
}

func TestAddAnnotationRejectsNonPositivePage(t *testing.T) {
	s := New()
	assert.Error(t, s.AddAnnotation(0, json.RawMessage(`{}`)))
	assert.Error(t, s.AddAnnotation(-1, json.RawMessage(`{}`)))
}

func TestClearAnnotations(t *testing.T) {
	s := New()
	require.NoError(t, s.AddAnnotation(1, json.RawMessage(`{}`)))
	require.NoError(t, s.AddAnnotation(2, json.RawMessage(`{}`)))

	s.ClearAnnotations()
	assert.Empty(t, s.Annotations())
}

func TestFrameCounters(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.IncrementFramesCaptured()
				s.IncrementFramesSent()
			}
		}()
	}
	wg.Wait()

	integ := s.Integration()
	assert.Equal(t, uint64(800), integ.FramesCaptured)
	assert.Equal(t, uint64(800), integ.FramesSent)

	s.ResetFrameCounters()
	integ = s.Integration()
	assert.Zero(t, integ.FramesCaptured)
	assert.Zero(t, integ.FramesSent)
}

func TestIntegrationSnapshotIsACopy(t *testing.T) {
	s := New()
	s.SetOutputActive("mirror", true)

	snap := s.Integration()
	snap.OutputsActive["mirror"] = false

	assert.True(t, s.Integration().OutputsActive["mirror"])
}
