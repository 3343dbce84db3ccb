// Package keystore manages the lifecycle of the database passphrase.
//
// The passphrase is a random string generated once per device. It is
// wrapped by a key held in a hardware-backed Facility and only the wrapped
// form (plus its IV, both base64) is written to Preferences. The plaintext
// lives in process memory for the lifetime of the Manager.
//
// Losing the facility key makes the data unreadable. There is no recovery
// path: the Manager fails with a *SecurityError rather than generating a
// new passphrase for an existing store.
package keystore

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Defaults for the key slot and preference keys.
const (
	DefaultAlias = "healthy_axolotl"
	PrefIV       = "iv"
	PrefSecret   = "secret"
)

// Secret is the plaintext database passphrase. It formats and logs redacted.
type Secret []byte

// String implements fmt.Stringer.
func (Secret) String() string { return "[redacted]" }

// LogValue implements slog.LogValuer.
func (Secret) LogValue() slog.Value { return slog.StringValue("[redacted]") }

// Manager derives the effective database passphrase. The first call to
// EffectiveKey is single-flight; later calls read the cached value.
type Manager struct {
	facility Facility
	prefs    Preferences
	alias    string
	generate func() string
	logger   *slog.Logger

	group  singleflight.Group
	cached atomic.Pointer[Secret]
}

// Option configures a Manager.
type Option func(*Manager)

// WithAlias sets the facility key alias.
func WithAlias(alias string) Option {
	return func(m *Manager) { m.alias = alias }
}

// WithPassphraseSource replaces the passphrase generator.
func WithPassphraseSource(fn func() string) Option {
	return func(m *Manager) { m.generate = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a Manager over facility and prefs.
func NewManager(facility Facility, prefs Preferences, opts ...Option) *Manager {
	m := &Manager{
		facility: facility,
		prefs:    prefs,
		alias:    DefaultAlias,
		generate: uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EffectiveKey returns the plaintext passphrase, creating and wrapping a
// new one on first use. Concurrent first calls share one derivation.
func (m *Manager) EffectiveKey() (Secret, error) {
	if s := m.cached.Load(); s != nil {
		return *s, nil
	}
	v, err, _ := m.group.Do(m.alias, func() (any, error) {
		if s := m.cached.Load(); s != nil {
			return *s, nil
		}
		s, err := m.unwrap()
		if err != nil {
			return nil, err
		}
		m.cached.Store(&s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Secret), nil
}

// Initialize creates the facility key and the wrapped passphrase unless
// both already exist.
func (m *Manager) Initialize() error {
	has, err := m.facility.HasKey(m.alias)
	if err != nil {
		return &SecurityError{Op: "check key", Err: err}
	}
	secret, _, err := m.prefs.String(PrefSecret)
	if err != nil {
		return fmt.Errorf("read preferences: %w", err)
	}
	if has && secret != "" {
		return nil
	}

	m.logger.Info("generating database key", "alias", m.alias)
	if err := m.facility.DeleteKey(m.alias); err != nil {
		return &SecurityError{Op: "delete stale key", Err: err}
	}
	if err := m.facility.GenerateKey(m.alias); err != nil {
		return &SecurityError{Op: "generate key", Err: err}
	}
	has, err = m.facility.HasKey(m.alias)
	if err != nil || !has {
		return &SecurityError{Op: "retrieve generated key", Err: err}
	}

	iv, wrapped, err := m.facility.Seal(m.alias, []byte(m.generate()))
	if err != nil {
		return &SecurityError{Op: "wrap passphrase", Err: err}
	}
	err = m.prefs.SetStrings(map[string]string{
		PrefIV:     base64.StdEncoding.EncodeToString(iv),
		PrefSecret: base64.StdEncoding.EncodeToString(wrapped),
	})
	if err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}

func (m *Manager) unwrap() (Secret, error) {
	iv, wrapped, err := m.readWrapped()
	if err != nil {
		return nil, err
	}
	if len(iv) == 0 || len(wrapped) == 0 {
		if err := m.Initialize(); err != nil {
			return nil, err
		}
		if iv, wrapped, err = m.readWrapped(); err != nil {
			return nil, err
		}
	}

	has, err := m.facility.HasKey(m.alias)
	if err != nil || !has {
		return nil, &SecurityError{Op: "retrieve key", Err: err}
	}
	plain, err := m.facility.Open(m.alias, iv, wrapped)
	if err != nil {
		return nil, &SecurityError{Op: "unwrap passphrase", Err: err}
	}
	return Secret(plain), nil
}

func (m *Manager) readWrapped() (iv, wrapped []byte, err error) {
	iv, err = m.pref(PrefIV)
	if err != nil {
		return nil, nil, err
	}
	wrapped, err = m.pref(PrefSecret)
	if err != nil {
		return nil, nil, err
	}
	return iv, wrapped, nil
}

func (m *Manager) pref(key string) ([]byte, error) {
	s, _, err := m.prefs.String(key)
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &SecurityError{Op: "decode " + key, Err: err}
	}
	return b, nil
}
