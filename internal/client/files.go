package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidationError describes an unusable path argument.
type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// imageExtensions are the file types accepted for upload.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// IsImage reports whether the path has a recognised image extension.
func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// CollectImages validates the path and returns the image files it names.
// A file argument must itself be an image; a directory argument contributes
// every image directly inside it (no recursion).
func CollectImages(path string) ([]string, error) {
	p := filepath.Clean(path)
	info, err := os.Stat(p)
	if err != nil {
		return nil, &ValidationError{Arg: path, Cause: "not found or not accessible"}
	}

	if !info.IsDir() {
		if !IsImage(p) {
			return nil, &ValidationError{Arg: path, Cause: "not an image file"}
		}
		return []string{p}, nil
	}

	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, &ValidationError{Arg: path, Cause: "not readable"}
	}

	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !IsImage(entry.Name()) {
			continue
		}
		out = append(out, filepath.Join(p, entry.Name()))
	}

	if len(out) == 0 {
		return nil, &ValidationError{Arg: path, Cause: "no image files found"}
	}
	return out, nil
}
