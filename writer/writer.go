package writer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/krau/konabatch/labels"
)

var ErrIO = errors.New("write output")

// Writer persists the tags of one image.
type Writer interface {
	Write(path string, res labels.Result) error
}

// FileWriter mirrors the input tree under the output root, one .txt per image.
type FileWriter struct {
	inputRoot      string
	outputRoot     string
	includeRatings bool
}

func NewFileWriter(inputRoot, outputRoot string, includeRatings bool) *FileWriter {
	return &FileWriter{
		inputRoot:      inputRoot,
		outputRoot:     outputRoot,
		includeRatings: includeRatings,
	}
}

// OutputPath maps an image under inputRoot to <outputRoot>/<relative dir>/<stem>.txt.
func OutputPath(inputRoot, outputRoot, path string) (string, error) {
	rel, err := filepath.Rel(inputRoot, path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside %s", ErrIO, path, inputRoot)
	}
	base := filepath.Base(rel)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputRoot, filepath.Dir(rel), stem+".txt"), nil
}

// FormatTags joins general then character tags with ", ". With includeRatings
// the top rating leads the list.
func FormatTags(res labels.Result, includeRatings bool) string {
	tags := make([]string, 0, len(res.General)+len(res.Character)+1)
	if includeRatings && len(res.Ratings) > 0 {
		tags = append(tags, res.Ratings[0].Tag)
	}
	for _, t := range res.General {
		tags = append(tags, t.Tag)
	}
	for _, t := range res.Character {
		tags = append(tags, t.Tag)
	}
	return strings.Join(tags, ", ")
}

func (w *FileWriter) Write(path string, res labels.Result) error {
	out, err := OutputPath(w.inputRoot, w.outputRoot, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := os.WriteFile(out, []byte(FormatTags(res, w.includeRatings)), 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}
