package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slatecast/slatecast/internal/state"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deck.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `{"path":"/tmp/deck.pdf","title":"Quarterly","pages":24}`)

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/deck.pdf", m.Path)
	assert.Equal(t, "Quarterly", m.Title)
	assert.Equal(t, 24, m.Pages)
}

func TestLoadManifestRejectsBadInput(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadManifest(writeManifest(t, `{not json`))
	assert.Error(t, err)

	_, err = LoadManifest(writeManifest(t, `{"path":"/tmp/deck.pdf","pages":0}`))
	assert.ErrorContains(t, err, "page count")
}

func TestStaticProviderDefaults(t *testing.T) {
	var p StaticProvider

	doc := p.Current()
	assert.False(t, doc.Loaded)
	assert.Equal(t, 1, doc.CurrentPage)
	assert.Equal(t, 1.0, doc.Zoom)
}

func TestStaticProviderLoadedSnapshot(t *testing.T) {
	p := StaticProvider{Snapshot: state.DocumentState{
		Path:        "/tmp/deck.pdf",
		CurrentPage: 3,
		TotalPages:  9,
		Zoom:        1.5,
		Loaded:      true,
	}}

	doc := p.Current()
	assert.Equal(t, 3, doc.CurrentPage)
	assert.Equal(t, 9, doc.TotalPages)
}
