// Package store manages the durable on-disk directory of stylesheet source
// files. The registry is a rebuildable cache over this store; disk is the
// source of truth.
package store

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	svcerrors "github.com/dans-labs/transformer/internal/errors"
)

// Extensions recognized as stylesheet files.
var extensions = []string{".xsl", ".xslt"}

// Store is a flat-or-nested directory of stylesheet files, one per name.
type Store struct {
	dir string
}

// New opens (creating if needed) the stylesheet store directory.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// NormalizeName gives a submitted stylesheet name its extension if missing.
func NormalizeName(name string) string {
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			return name
		}
	}
	return name + ".xsl"
}

// IsStylesheet reports whether the filename carries a stylesheet extension.
func IsStylesheet(name string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// Files walks the store recursively and returns the paths of every
// stylesheet file, for registry reload.
func (s *Store) Files() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsStylesheet(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Read returns the source text stored under name.
func (s *Store) Read(name string) (string, error) {
	path, err := s.path(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", svcerrors.NewNotFound(name)
		}
		return "", err
	}
	return string(data), nil
}

// ReadAll returns name to source text for every stored stylesheet. Names
// are store-relative paths, so files in different subdirectories never
// collide in the listing.
func (s *Store) ReadAll() (map[string]string, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	all := make(map[string]string, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		name, err := filepath.Rel(s.dir, file)
		if err != nil {
			name = filepath.Base(file)
		}
		all[name] = string(data)
	}
	return all, nil
}

// Write persists source under name, overwriting any previous content.
// Bytes must be valid UTF-8 text.
func (s *Store) Write(name string, source []byte) error {
	if !utf8.Valid(source) {
		return svcerrors.NewInvalidInput("stylesheet source is not valid UTF-8", nil)
	}
	path, err := s.path(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, source, 0o644)
}

// Delete is declared for completeness and intentionally not implemented.
func (s *Store) Delete(name string) error {
	return svcerrors.NewNotImplemented("stylesheet deletion")
}

// path resolves a name inside the store, rejecting traversal outside it.
func (s *Store) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", svcerrors.NewInvalidInput("invalid stylesheet name", nil)
	}
	return filepath.Join(s.dir, name), nil
}
