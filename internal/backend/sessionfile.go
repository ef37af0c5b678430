package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sakif/smart-bookmarks/internal/model"
)

// SessionFile persists the signed-in session between runs.
//
// The file holds a bearer token, so it is written with 0600 permissions in a
// 0700 directory.
type SessionFile struct {
	path string
}

// NewSessionFile returns a SessionFile at path. Nothing is touched on disk
// until Save.
func NewSessionFile(path string) *SessionFile {
	return &SessionFile{path: path}
}

// Path returns the file location.
func (f *SessionFile) Path() string { return f.path }

// Load reads the saved session. A missing file means "signed out" and
// returns (nil, nil).
func (f *SessionFile) Load() (*model.Session, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("backend: reading session file: %w", err)
	}

	var s model.Session
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("backend: parsing session file %s: %w", f.path, err)
	}
	if s.AccessToken == "" {
		return nil, nil
	}
	return &s, nil
}

// Save writes s atomically (temp file + rename).
func (f *SessionFile) Save(s *model.Session) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("backend: creating session directory: %w", err)
	}

	raw, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("backend: encoding session: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*.yaml")
	if err != nil {
		return fmt.Errorf("backend: writing session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("backend: writing session file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("backend: writing session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("backend: writing session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("backend: writing session file: %w", err)
	}
	return nil
}

// Clear deletes the saved session. A missing file is not an error.
func (f *SessionFile) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("backend: removing session file: %w", err)
	}
	return nil
}
