package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsImage(t *testing.T) {
	for _, p := range []string{"a.png", "b.JPG", "c.jpeg", "d.webp", "e.avif", "f.TIFF", "g.bmp", "h.gif"} {
		assert.True(t, IsImage(p), p)
	}
	for _, p := range []string{"a.txt", "b", "c.png.bak", "selected_tags.csv"} {
		assert.False(t, IsImage(p), p)
	}
}

func TestImages(t *testing.T) {
	root := t.TempDir()
	files := []string{
		"b.png",
		"a.jpg",
		"notes.txt",
		filepath.Join("sub", "c.webp"),
		filepath.Join("sub", "deeper", "d.PNG"),
	}
	for _, f := range files {
		p := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}

	got, err := Images(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.jpg"),
		filepath.Join(root, "b.png"),
		filepath.Join(root, "sub", "c.webp"),
		filepath.Join(root, "sub", "deeper", "d.PNG"),
	}, got)

	_, err = Images(filepath.Join(root, "missing"))
	require.Error(t, err)
}
