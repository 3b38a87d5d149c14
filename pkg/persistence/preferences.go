package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// PreferencesVersion is the current version of the preferences file format.
const PreferencesVersion = 1

// DefaultFileName is the preferences file name inside the state directory.
const DefaultFileName = "preferences.yaml"

// ErrUnsupportedVersion is returned for files written by a newer release.
var ErrUnsupportedVersion = errors.New("unsupported preferences version")

// Preferences holds the console's local choices.
type Preferences struct {
	// Version is the file format version.
	Version int `yaml:"version"`

	// SavedAt is when the file was last written.
	SavedAt time.Time `yaml:"saved_at"`

	// Endpoint is the last backend the console connected to.
	Endpoint string `yaml:"endpoint,omitempty"`

	// SelectedSlot is the slot the device console acts on.
	SelectedSlot string `yaml:"selected_slot,omitempty"`

	// MQTTProvider is the cloud connector used by MQTT_CONNECT.
	MQTTProvider string `yaml:"mqtt_provider,omitempty"`
}

// Store reads and writes a preferences file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store for the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// NewStoreInDir creates a store for DefaultFileName inside dir.
func NewStoreInDir(dir string) *Store {
	return NewStore(filepath.Join(dir, DefaultFileName))
}

// Path returns the file path.
func (s *Store) Path() string {
	return s.path
}

// Save writes p to disk, creating the parent directory if needed.
func (s *Store) Save(p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	p.Version = PreferencesVersion
	if p.SavedAt.IsZero() {
		p.SavedAt = time.Now()
	}

	data, err := yaml.Marshal(&p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	// Write to a temp file and rename so a crash never leaves a torn file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the preferences. A missing file yields the zero Preferences
// and no error.
func (s *Store) Load() (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Preferences{}, nil
	}
	if err != nil {
		return Preferences{}, err
	}

	var p Preferences
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Preferences{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if p.Version > PreferencesVersion {
		return Preferences{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, p.Version)
	}
	return p, nil
}

// Clear removes the file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
