package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Preferences is ordinary, unprotected key/value storage.
type Preferences interface {
	String(key string) (string, bool, error)

	// SetStrings writes every pair at once; readers see all or none.
	SetStrings(values map[string]string) error
}

// FilePreferences stores preferences in a YAML file, rewritten atomically.
type FilePreferences struct {
	path string
	mu   sync.Mutex
}

// NewFilePreferences returns preferences backed by path. The file is
// created on first write.
func NewFilePreferences(path string) (*FilePreferences, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create preferences dir: %w", err)
	}
	return &FilePreferences{path: path}, nil
}

// String implements Preferences.
func (p *FilePreferences) String(key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	values, err := p.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// SetStrings implements Preferences.
func (p *FilePreferences) SetStrings(values map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.read()
	if err != nil {
		return err
	}
	for k, v := range values {
		current[k] = v
	}

	data, err := yaml.Marshal(current)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}

func (p *FilePreferences) read() (map[string]string, error) {
	values := map[string]string{}
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode preferences %s: %w", p.path, err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return values, nil
}

// MemoryPreferences keeps preferences in process memory.
type MemoryPreferences struct {
	mu     sync.Mutex
	values map[string]string
	writes int
}

// NewMemoryPreferences returns empty preferences.
func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{values: map[string]string{}}
}

// String implements Preferences.
func (m *MemoryPreferences) String(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// SetStrings implements Preferences.
func (m *MemoryPreferences) SetStrings(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	m.writes++
	return nil
}

// Writes returns how many times SetStrings was called.
func (m *MemoryPreferences) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
