package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Facility is a hardware-backed key store. Keys are addressed by alias and
// never leave the facility; callers can only seal and open data with them.
type Facility interface {
	HasKey(alias string) (bool, error)
	GenerateKey(alias string) error
	DeleteKey(alias string) error

	// Seal encrypts plaintext with the alias key. The facility picks the IV.
	Seal(alias string, plaintext []byte) (iv, ciphertext []byte, err error)

	// Open decrypts ciphertext sealed by Seal.
	Open(alias string, iv, ciphertext []byte) ([]byte, error)
}

const keySize = 32

// FileFacility is a software Facility for hosts without a hardware key
// store. Each alias is a 256-bit AES-GCM key in its own 0600 file.
type FileFacility struct {
	dir string
	mu  sync.Mutex
}

// NewFileFacility returns a FileFacility rooted at dir, creating it 0700.
func NewFileFacility(dir string) (*FileFacility, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	return &FileFacility{dir: dir}, nil
}

func (f *FileFacility) path(alias string) (string, error) {
	if alias == "" || strings.ContainsAny(alias, `/\`) || alias == "." || alias == ".." {
		return "", fmt.Errorf("invalid key alias %q", alias)
	}
	return filepath.Join(f.dir, alias+".key"), nil
}

// HasKey implements Facility.
func (f *FileFacility) HasKey(alias string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.load(alias)
	if errors.Is(err, ErrNoKey) {
		return false, nil
	}
	return err == nil, err
}

// GenerateKey implements Facility. An existing key is replaced.
func (f *FileFacility) GenerateKey(alias string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.path(alias)
	if err != nil {
		return err
	}
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, key, 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	return nil
}

// DeleteKey implements Facility. Deleting a missing key is not an error.
func (f *FileFacility) DeleteKey(alias string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.path(alias)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}

// Seal implements Facility.
func (f *FileFacility) Seal(alias string, plaintext []byte) ([]byte, []byte, error) {
	f.mu.Lock()
	key, err := f.load(alias)
	f.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	return seal(key, plaintext)
}

// Open implements Facility.
func (f *FileFacility) Open(alias string, iv, ciphertext []byte) ([]byte, error) {
	f.mu.Lock()
	key, err := f.load(alias)
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return open(key, iv, ciphertext)
}

// load reads the key for alias. Callers hold f.mu.
func (f *FileFacility) load(alias string) ([]byte, error) {
	p, err := f.path(alias)
	if err != nil {
		return nil, err
	}
	key, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, ErrNoKey
	}
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("key %q is corrupt (%d bytes)", alias, len(key))
	}
	return key, nil
}

// MemoryFacility keeps keys in process memory. Used by tests and by
// ephemeral stores.
type MemoryFacility struct {
	mu   sync.Mutex
	keys map[string][]byte
}

// NewMemoryFacility returns an empty MemoryFacility.
func NewMemoryFacility() *MemoryFacility {
	return &MemoryFacility{keys: make(map[string][]byte)}
}

// HasKey implements Facility.
func (m *MemoryFacility) HasKey(alias string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[alias]
	return ok, nil
}

// GenerateKey implements Facility.
func (m *MemoryFacility) GenerateKey(alias string) error {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[alias] = key
	return nil
}

// DeleteKey implements Facility.
func (m *MemoryFacility) DeleteKey(alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, alias)
	return nil
}

// Seal implements Facility.
func (m *MemoryFacility) Seal(alias string, plaintext []byte) ([]byte, []byte, error) {
	m.mu.Lock()
	key, ok := m.keys[alias]
	m.mu.Unlock()
	if !ok {
		return nil, nil, ErrNoKey
	}
	return seal(key, plaintext)
}

// Open implements Facility.
func (m *MemoryFacility) Open(alias string, iv, ciphertext []byte) ([]byte, error) {
	m.mu.Lock()
	key, ok := m.keys[alias]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNoKey
	}
	return open(key, iv, ciphertext)
}

func seal(key, plaintext []byte) ([]byte, []byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, fmt.Errorf("generate iv: %w", err)
	}
	return iv, gcm.Seal(nil, iv, plaintext, nil), nil
}

func open(key, iv, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != gcm.NonceSize() {
		return nil, fmt.Errorf("iv has %d bytes, want %d", len(iv), gcm.NonceSize())
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong key or tampered data)")
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
