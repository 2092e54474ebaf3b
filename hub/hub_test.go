package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	backoffBase = time.Millisecond
}

func TestRepoID(t *testing.T) {
	repo, err := RepoID("wd-vit-tagger-v3")
	require.NoError(t, err)
	assert.Equal(t, "SmilingWolf/wd-vit-tagger-v3", repo)

	repo, err = RepoID("someone/custom-tagger")
	require.NoError(t, err)
	assert.Equal(t, "someone/custom-tagger", repo)

	for _, bad := range []string{"", "nope", "/x", "x/", "a/b/c"} {
		_, err := RepoID(bad)
		assert.Error(t, err, bad)
	}
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/owner/tagger/resolve/main/model.onnx", r.URL.Path)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("weights"))
	}))
	defer srv.Close()

	cache := t.TempDir()
	path, err := Fetch(context.Background(), srv.Client(), srv.URL, "owner/tagger", "model.onnx", cache)
	require.NoError(t, err)
	assert.Equal(t, CachePath(cache, "owner/tagger", "model.onnx"), path)
	assert.Equal(t, int32(2), calls.Load())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "weights", string(b))

	// cached: no further requests
	_, err = Fetch(context.Background(), srv.Client(), srv.URL, "owner/tagger", "model.onnx", cache)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	leftovers, err := filepath.Glob(filepath.Join(cache, "owner--tagger", "*.part"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFetchDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cache := t.TempDir()
	_, err := Fetch(context.Background(), srv.Client(), srv.URL, "owner/tagger", "model.onnx", cache)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.NoFileExists(t, CachePath(cache, "owner/tagger", "model.onnx"))
}

func TestFetchGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), srv.Client(), srv.URL, "owner/tagger", "model.onnx", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, int32(maxRetries+1), calls.Load())
}

func TestResolveDownloadsBothFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(filepath.Base(r.URL.Path)))
	}))
	defer srv.Close()

	files, err := Resolve(context.Background(), ResolveOptions{
		Model:     "wd-swinv2-tagger-v3",
		BaseURL:   srv.URL,
		CacheDir:  t.TempDir(),
		ModelFile: "model.onnx",
		TagsFile:  "selected_tags.csv",
		Client:    srv.Client(),
	})
	require.NoError(t, err)
	assert.Contains(t, files.Model, "SmilingWolf--wd-swinv2-tagger-v3")
	b, err := os.ReadFile(files.Tags)
	require.NoError(t, err)
	assert.Equal(t, "selected_tags.csv", string(b))
}

func TestResolveLocalDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.onnx"), nil, 0o644))

	opts := ResolveOptions{Model: dir, ModelFile: "model.onnx", TagsFile: "selected_tags.csv"}
	_, err := Resolve(context.Background(), opts)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "selected_tags.csv"), nil, 0o644))
	files, err := Resolve(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "model.onnx"), files.Model)
	assert.Equal(t, filepath.Join(dir, "selected_tags.csv"), files.Tags)
}
