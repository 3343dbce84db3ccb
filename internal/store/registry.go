package store

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/roach88/healthstore/internal/keystore"
)

// Registry hands out one *Store per database file, so every service
// touching the same file shares one connection pool.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*registered
}

type registered struct {
	store *Store
	key   []byte
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]*registered)}
}

// Open returns the store for path, opening it on first use. Later calls
// must present the same passphrase; a different one fails with a
// *keystore.SecurityError wrapping ErrWrongKey.
func (r *Registry) Open(path string, passphrase keystore.Secret) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	key, err := databaseKey(passphrase)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.stores[abs]; ok {
		if subtle.ConstantTimeCompare(reg.key, key) != 1 {
			return nil, &keystore.SecurityError{Op: "open " + abs, Err: ErrWrongKey}
		}
		return reg.store, nil
	}
	s, err := Open(abs, passphrase)
	if err != nil {
		return nil, err
	}
	r.stores[abs] = &registered{store: s, key: key}
	return s, nil
}

// Close closes every store the registry opened.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for path, reg := range r.stores {
		if err := reg.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
		delete(r.stores, path)
	}
	return errors.Join(errs...)
}
