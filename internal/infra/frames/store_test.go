package frames

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uiextract/uiextract-processing-service/internal/sampler"
	"go.uber.org/zap"
)

func testFrame(w, h int, ts float64) *sampler.Frame {
	pix := make([]byte, w*h*3)
	for i := range pix {
		pix[i] = byte(i % 251)
	}
	return &sampler.Frame{Width: w, Height: h, Pix: pix, Timestamp: ts}
}

func TestResetClearsStaleFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keyframes")
	require.NoError(t, os.MkdirAll(dir, 0755))
	stale := filepath.Join(dir, "ui_99.00s.png")
	require.NoError(t, os.WriteFile(stale, []byte("old run"), 0644))

	store := NewStore(dir, zap.NewNop())
	require.NoError(t, store.Reset(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPersistWritesDecodablePNG(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "keyframes"), zap.NewNop())
	require.NoError(t, store.Reset(context.Background()))

	path, err := store.Persist(testFrame(12, 7, 0.5), "ui_0.50s.png")
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 12, img.Bounds().Dx())
	assert.Equal(t, 7, img.Bounds().Dy())
}

func TestPersistRejectsDuplicateFilename(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "keyframes"), zap.NewNop())
	require.NoError(t, store.Reset(context.Background()))

	_, err := store.Persist(testFrame(4, 4, 1.0), "ui_1.00s.png")
	require.NoError(t, err)

	_, err = store.Persist(testFrame(4, 4, 1.0), "ui_1.00s.png")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestResetAllowsFilenameReuseAcrossRuns(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "keyframes"), zap.NewNop())
	require.NoError(t, store.Reset(context.Background()))

	_, err := store.Persist(testFrame(4, 4, 0), "ui_0.00s.png")
	require.NoError(t, err)

	require.NoError(t, store.Reset(context.Background()))
	_, err = store.Persist(testFrame(4, 4, 0), "ui_0.00s.png")
	assert.NoError(t, err)
}
