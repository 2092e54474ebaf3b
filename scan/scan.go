package scan

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// extensions with a registered decoder
var formatExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
	".avif": true,
}

func IsImage(path string) bool {
	return formatExtensions[strings.ToLower(filepath.Ext(path))]
}

// Images walks root in lexical order and returns every file with a supported
// image extension. Unreadable subdirectories are skipped.
func Images(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && IsImage(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return paths, nil
}
