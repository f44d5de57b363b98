// Package storage keeps uploaded documents in a scratch directory.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"ragchat/internal/domain"
)

// DefaultDir is the scratch directory used when none is configured.
const DefaultDir = "temp_pdf_uploads"

// Manager owns one scratch directory. Not safe for concurrent writers.
type Manager struct {
	dir string
}

func NewManager(dir string) *Manager {
	if dir == "" {
		dir = DefaultDir
	}
	return &Manager{dir: dir}
}

// Dir returns the managed directory.
func (m *Manager) Dir() string { return m.dir }

// Ensure creates the directory if it does not exist yet.
func (m *Manager) Ensure() error {
	return os.MkdirAll(m.dir, 0o755)
}

// Clear drops every stored document and recreates an empty directory.
func (m *Manager) Clear() error {
	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("remove %s: %w", m.dir, err)
	}
	return m.Ensure()
}

// Save writes the document bytes under its base name, replacing any file
// with the same name, and returns the written path.
func (m *Manager) Save(doc domain.UploadedDocument) (string, error) {
	name := filepath.Base(doc.Name)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", errors.New("document name is empty")
	}
	if err := m.Ensure(); err != nil {
		return "", err
	}
	path := filepath.Join(m.dir, name)
	if err := os.WriteFile(path, doc.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// List returns the names of the stored documents in lexical order.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
