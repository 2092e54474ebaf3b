package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	retry "github.com/sethvargo/go-retry"
)

// Models maps short names to tagger repositories.
var Models = map[string]string{
	"wd-swinv2-tagger-v3":          "SmilingWolf/wd-swinv2-tagger-v3",
	"wd-convnext-tagger-v3":        "SmilingWolf/wd-convnext-tagger-v3",
	"wd-vit-tagger-v3":             "SmilingWolf/wd-vit-tagger-v3",
	"wd-v1-4-moat-tagger-v2":       "SmilingWolf/wd-v1-4-moat-tagger-v2",
	"wd-v1-4-convnextv2-tagger-v2": "SmilingWolf/wd-v1-4-convnextv2-tagger-v2",
	"wd-v1-4-swinv2-tagger-v2":     "SmilingWolf/wd-v1-4-swinv2-tagger-v2",
	"wd-v1-4-convnext-tagger-v2":   "SmilingWolf/wd-v1-4-convnext-tagger-v2",
	"wd-v1-4-vit-tagger-v2":        "SmilingWolf/wd-v1-4-vit-tagger-v2",
	"wd-v1-4-convnext-tagger":      "SmilingWolf/wd-v1-4-convnext-tagger",
	"wd-v1-4-vit-tagger":           "SmilingWolf/wd-v1-4-vit-tagger",
}

const maxRetries = 3

var backoffBase = time.Second

type Files struct {
	Model string
	Tags  string
}

type ResolveOptions struct {
	// Model is a short name from Models, an owner/name repository id or a local directory.
	Model     string
	BaseURL   string
	CacheDir  string
	ModelFile string
	TagsFile  string
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// RepoID returns the repository id for a short name or an owner/name id.
func RepoID(name string) (string, error) {
	if repo, ok := Models[name]; ok {
		return repo, nil
	}
	owner, model, ok := strings.Cut(name, "/")
	if !ok || owner == "" || model == "" || strings.Contains(model, "/") {
		return "", fmt.Errorf("unknown model %q", name)
	}
	return name, nil
}

// Resolve returns local paths of the model and its tag file, downloading
// them into the cache when needed.
func Resolve(ctx context.Context, opts ResolveOptions) (Files, error) {
	if info, err := os.Stat(opts.Model); err == nil && info.IsDir() {
		files := Files{
			Model: filepath.Join(opts.Model, opts.ModelFile),
			Tags:  filepath.Join(opts.Model, opts.TagsFile),
		}
		for _, p := range []string{files.Model, files.Tags} {
			if _, err := os.Stat(p); err != nil {
				return Files{}, fmt.Errorf("local model: %w", err)
			}
		}
		return files, nil
	}

	repo, err := RepoID(opts.Model)
	if err != nil {
		return Files{}, err
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	modelPath, err := Fetch(ctx, client, opts.BaseURL, repo, opts.ModelFile, opts.CacheDir)
	if err != nil {
		return Files{}, err
	}
	tagsPath, err := Fetch(ctx, client, opts.BaseURL, repo, opts.TagsFile, opts.CacheDir)
	if err != nil {
		return Files{}, err
	}
	return Files{Model: modelPath, Tags: tagsPath}, nil
}

// CachePath is where Fetch stores file of repo.
func CachePath(cacheDir, repo, file string) string {
	return filepath.Join(cacheDir, strings.ReplaceAll(repo, "/", "--"), file)
}

type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.url, http.StatusText(e.code))
}

func (e *statusError) transient() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

// Fetch downloads <baseURL>/<repo>/resolve/main/<file> into the cache unless it
// is already there. Network errors and 5xx/429 responses are retried.
func Fetch(ctx context.Context, client *http.Client, baseURL, repo, file, cacheDir string) (string, error) {
	dst := CachePath(cacheDir, repo, file)
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}
	src, err := url.JoinPath(baseURL, repo, "resolve", "main", file)
	if err != nil {
		return "", fmt.Errorf("build url: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	slog.Info("Downloading model file", slog.String("url", src), slog.String("path", dst))
	b := retry.WithMaxRetries(maxRetries, retry.NewExponential(backoffBase))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		err := download(ctx, client, src, dst)
		if err == nil {
			return nil
		}
		var se *statusError
		if errors.As(err, &se) && !se.transient() {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		slog.Warn("Download failed, retrying", slog.String("url", src), slog.String("error", err.Error()))
		return retry.RetryableError(err)
	})
	if err != nil {
		return "", fmt.Errorf("fetch %s/%s: %w", repo, file, err)
	}
	return dst, nil
}

func download(ctx context.Context, client *http.Client, src, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &statusError{url: src, code: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
