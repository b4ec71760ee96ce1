package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uiextract/uiextract-processing-service/internal/domain/entity"
)

func writeKeyframes(t *testing.T, dir string, n int) []entity.Keyframe {
	t.Helper()
	items := make([]entity.Keyframe, 0, n)
	for i := 0; i < n; i++ {
		ts := float64(i)
		name := fmt.Sprintf("ui_%.2fs.png", ts)
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("png-"+name), 0644))
		items = append(items, entity.Keyframe{ImagePath: path, Timestamp: ts, Filename: name})
	}
	return items
}

func zipEntryNames(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names
}

func TestCreateArchiveSelectedSubset(t *testing.T) {
	dir := t.TempDir()
	items := writeKeyframes(t, dir, 5)
	zipPath := filepath.Join(dir, "out.zip")

	selection := []string{items[1].Filename, items[3].Filename}
	err := NewZipBuilder().CreateArchive(context.Background(), items, selection, zipPath)
	require.NoError(t, err)

	assert.Equal(t, []string{"ui_1.00s.png", "ui_3.00s.png"}, zipEntryNames(t, zipPath))
}

func TestCreateArchiveAllItems(t *testing.T) {
	dir := t.TempDir()
	items := writeKeyframes(t, dir, 3)
	zipPath := filepath.Join(dir, "out.zip")

	selection := make([]string, 0, len(items))
	for _, it := range items {
		selection = append(selection, it.Filename)
	}
	err := NewZipBuilder().CreateArchive(context.Background(), items, selection, zipPath)
	require.NoError(t, err)

	assert.Len(t, zipEntryNames(t, zipPath), 3)
}

func TestCreateArchiveEmptySelection(t *testing.T) {
	dir := t.TempDir()
	items := writeKeyframes(t, dir, 2)
	zipPath := filepath.Join(dir, "out.zip")

	err := NewZipBuilder().CreateArchive(context.Background(), items, nil, zipPath)
	assert.ErrorIs(t, err, ErrEmptySelection)

	_, statErr := os.Stat(zipPath)
	assert.True(t, os.IsNotExist(statErr), "no archive file should be written")
}

func TestCreateArchiveUnknownSelection(t *testing.T) {
	dir := t.TempDir()
	items := writeKeyframes(t, dir, 2)
	zipPath := filepath.Join(dir, "out.zip")

	err := NewZipBuilder().CreateArchive(context.Background(), items, []string{"nope.png"}, zipPath)
	assert.ErrorIs(t, err, ErrEmptySelection)
}

func TestCreateArchiveCancelledContext(t *testing.T) {
	dir := t.TempDir()
	items := writeKeyframes(t, dir, 2)
	zipPath := filepath.Join(dir, "out.zip")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewZipBuilder().CreateArchive(ctx, items, []string{items[0].Filename}, zipPath)
	assert.ErrorIs(t, err, context.Canceled)
}
