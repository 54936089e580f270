package pantry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ImageStorage defines the interface for storing captured images
type ImageStorage interface {
	// Save saves an image and returns the reference stored on the record
	Save(filename string, data []byte) (string, error)

	// Get retrieves an image by reference
	Get(ref string) ([]byte, error)

	// Delete removes an image
	Delete(ref string) error
}

// LocalImageStore implements ImageStorage on the local filesystem
type LocalImageStore struct {
	basePath string
}

// NewLocalImageStore creates the image directory if needed
func NewLocalImageStore(basePath string) (*LocalImageStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}

	return &LocalImageStore{
		basePath: basePath,
	}, nil
}

// resolve keeps references inside basePath
func (l *LocalImageStore) resolve(ref string) (string, error) {
	clean := filepath.Base(filepath.Clean(ref))
	if clean == "." || clean == string(filepath.Separator) || clean != ref {
		return "", fmt.Errorf("invalid image reference %q", ref)
	}
	return filepath.Join(l.basePath, clean), nil
}

// Save writes an image to the image directory
func (l *LocalImageStore) Save(filename string, data []byte) (string, error) {
	path, err := l.resolve(filename)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing image: %w", err)
	}
	return filename, nil
}

// Get reads an image from the image directory
func (l *LocalImageStore) Get(ref string) ([]byte, error) {
	path, err := l.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return data, nil
}

// Delete removes an image from the image directory
func (l *LocalImageStore) Delete(ref string) error {
	path, err := l.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	return nil
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename removes special characters and truncates the base name to 50 characters
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, "_")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "capture"
	}

	ext = unsafeFilenameChars.ReplaceAllString(strings.TrimPrefix(ext, "."), "")
	if ext == "" {
		return base
	}
	return base + "." + strings.ToLower(ext)
}
