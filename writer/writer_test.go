package writer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krau/konabatch/labels"
)

var result = labels.Result{
	Ratings:   []labels.TagScore{{Tag: "general", Score: 0.9}, {Tag: "sensitive", Score: 0.1}},
	General:   []labels.TagScore{{Tag: "1girl", Score: 0.99}, {Tag: "o_o", Score: 0.5}},
	Character: []labels.TagScore{{Tag: "hatsunemiku", Score: 0.9}},
}

func TestOutputPath(t *testing.T) {
	in := filepath.Join("data", "in")
	out := filepath.Join("data", "out")

	got, err := OutputPath(in, out, filepath.Join(in, "a", "b", "cat.v2.png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "a", "b", "cat.v2.txt"), got)

	got, err = OutputPath(in, out, filepath.Join(in, "top.jpg"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "top.txt"), got)

	_, err = OutputPath(in, out, filepath.Join("data", "elsewhere", "x.png"))
	require.ErrorIs(t, err, ErrIO)
}

func TestFormatTags(t *testing.T) {
	assert.Equal(t, "1girl, o_o, hatsunemiku", FormatTags(result, false))
	assert.Equal(t, "general, 1girl, o_o, hatsunemiku", FormatTags(result, true))
	assert.Equal(t, "", FormatTags(labels.Result{}, true))
}

func TestFileWriter(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	w := NewFileWriter(in, out, false)

	require.NoError(t, w.Write(filepath.Join(in, "sub", "img.png"), result))

	b, err := os.ReadFile(filepath.Join(out, "sub", "img.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1girl, o_o, hatsunemiku", string(b))
}

func TestFileWriterUnwritable(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(out, nil, 0o644))

	w := NewFileWriter(in, out, false)
	err := w.Write(filepath.Join(in, "sub", "img.png"), result)
	require.ErrorIs(t, err, ErrIO)
}
