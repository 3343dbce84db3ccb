// Package healthstore wires the store's services together.
//
// Open builds, in order: the key manager, the database (through a
// registry keyed by path), the token checker from the live schema, the
// facades with their router, and the transaction coordinator. On the first
// boot with a policy file it applies the default access policies as the
// owner.
package healthstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/healthstore/internal/coordinator"
	"github.com/roach88/healthstore/internal/keystore"
	"github.com/roach88/healthstore/internal/policy"
	"github.com/roach88/healthstore/internal/provider"
	"github.com/roach88/healthstore/internal/record"
	"github.com/roach88/healthstore/internal/sqlcheck"
	"github.com/roach88/healthstore/internal/store"
)

// DefaultOwner is the caller allowed to manage access entries unless
// configured otherwise.
const DefaultOwner = "org.lineageos.settings"

// PrefPoliciesLoaded marks that the default policies were applied.
const PrefPoliciesLoaded = "policies_loaded"

// Layout of DataDir.
const (
	keysDir         = "keys"
	preferencesFile = "preferences.yaml"
)

// Config configures Open. Only DataDir is required.
type Config struct {
	DataDir   string
	Authority string
	Owner     string

	// PolicyFile is a CUE document of default access policies. It is
	// applied once; later boots skip it.
	PolicyFile string

	// Facility and Preferences default to files under DataDir.
	Facility    keystore.Facility
	Preferences keystore.Preferences

	// Registry shares open databases between stores in one process. When
	// nil the store owns a private registry and closes it on Close.
	Registry *store.Registry

	Logger *slog.Logger
	Clock  coordinator.Clock
	IDs    coordinator.IDGenerator
}

// HealthStore is an open store.
type HealthStore struct {
	cfg          Config
	db           *store.Store
	registry     *store.Registry
	ownsRegistry bool
	checker      *sqlcheck.Checker
	router       *provider.Router
	coord        *coordinator.Coordinator
	logger       *slog.Logger
}

func (cfg Config) withDefaults() (Config, error) {
	if cfg.DataDir == "" {
		return cfg, errors.New("data dir is required")
	}
	if cfg.Authority == "" {
		cfg.Authority = provider.DefaultAuthority
	}
	if cfg.Owner == "" {
		cfg.Owner = DefaultOwner
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return cfg, fmt.Errorf("create data dir: %w", err)
	}
	if cfg.Facility == nil {
		f, err := keystore.NewFileFacility(filepath.Join(cfg.DataDir, keysDir))
		if err != nil {
			return cfg, err
		}
		cfg.Facility = f
	}
	if cfg.Preferences == nil {
		p, err := keystore.NewFilePreferences(filepath.Join(cfg.DataDir, preferencesFile))
		if err != nil {
			return cfg, err
		}
		cfg.Preferences = p
	}
	return cfg, nil
}

// Open opens the store described by cfg.
func Open(ctx context.Context, cfg Config) (*HealthStore, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("open health store: %w", err)
	}
	logger := cfg.Logger

	keys := keystore.NewManager(cfg.Facility, cfg.Preferences, keystore.WithLogger(logger))
	secret, err := keys.EffectiveKey()
	if err != nil {
		return nil, fmt.Errorf("open health store: %w", err)
	}

	hs := &HealthStore{cfg: cfg, registry: cfg.Registry, logger: logger}
	if hs.registry == nil {
		hs.registry = store.NewRegistry()
		hs.ownsRegistry = true
	}
	hs.db, err = hs.registry.Open(filepath.Join(cfg.DataDir, store.DatabaseName), secret)
	if err != nil {
		hs.Close()
		return nil, fmt.Errorf("open health store: %w", err)
	}

	tokens, err := hs.db.SchemaTokens(ctx)
	if err != nil {
		hs.Close()
		return nil, fmt.Errorf("open health store: %w", err)
	}
	hs.checker = sqlcheck.New(append(tokens, sqlcheck.SubqueryKeyword))

	hs.router = provider.NewRouter(provider.Deps{
		Authority: cfg.Authority,
		Owner:     cfg.Owner,
		Checker:   hs.checker,
		Clock:     cfg.Clock,
		Logger:    logger,
	})
	opts := []coordinator.Option{coordinator.WithLogger(logger)}
	if cfg.Clock != nil {
		opts = append(opts, coordinator.WithClock(cfg.Clock))
	}
	if cfg.IDs != nil {
		opts = append(opts, coordinator.WithIDs(cfg.IDs))
	}
	hs.coord = coordinator.New(hs.db, hs.router, opts...)

	if err := hs.loadDefaultPolicies(ctx); err != nil {
		hs.Close()
		return nil, fmt.Errorf("open health store: %w", err)
	}
	logger.Debug("health store open", "path", hs.db.Path(), "authority", cfg.Authority)
	return hs, nil
}

// loadDefaultPolicies applies cfg.PolicyFile once. The flag is only set
// when every entry was written.
func (hs *HealthStore) loadDefaultPolicies(ctx context.Context) error {
	if hs.cfg.PolicyFile == "" {
		return nil
	}
	loaded, _, err := hs.cfg.Preferences.String(PrefPoliciesLoaded)
	if err != nil {
		return fmt.Errorf("read preferences: %w", err)
	}
	if loaded == "true" {
		return nil
	}

	entries, err := policy.LoadFile(hs.cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("load default policies: %w", err)
	}
	values := make([]record.Values, len(entries))
	for i, e := range entries {
		values[i] = e.Values()
	}
	n, err := hs.coord.BulkInsert(hs.AsOwner(ctx), hs.router.AccessURI("", record.Unknown), values)
	if err != nil {
		return fmt.Errorf("apply default policies: %w", err)
	}
	if n != int64(len(entries)) {
		hs.logger.Warn("default policies partially applied", "applied", n, "entries", len(entries))
		return nil
	}
	if err := hs.cfg.Preferences.SetStrings(map[string]string{PrefPoliciesLoaded: "true"}); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	hs.logger.Info("default policies applied", "entries", n, "file", hs.cfg.PolicyFile)
	return nil
}

// Close releases the database unless it belongs to a shared registry.
func (hs *HealthStore) Close() error {
	if hs.ownsRegistry {
		return hs.registry.Close()
	}
	return nil
}

// AsOwner returns ctx acting as the owner.
func (hs *HealthStore) AsOwner(ctx context.Context) context.Context {
	return coordinator.WithCaller(ctx, hs.cfg.Owner)
}

// Owner returns the caller allowed to manage access entries.
func (hs *HealthStore) Owner() string { return hs.cfg.Owner }

// Router returns the address router, mainly for building URIs.
func (hs *HealthStore) Router() *provider.Router { return hs.router }

// Checker returns the token checker built from the live schema.
func (hs *HealthStore) Checker() *sqlcheck.Checker { return hs.checker }

// Insert adds one row at uri. See coordinator.Coordinator.Insert.
func (hs *HealthStore) Insert(ctx context.Context, uri string, values record.Values) (string, error) {
	return hs.coord.Insert(ctx, uri, values)
}

// Update changes the rows at uri.
func (hs *HealthStore) Update(ctx context.Context, uri string, values record.Values, where string, args []any) (int64, error) {
	return hs.coord.Update(ctx, uri, values, where, args)
}

// Delete removes the rows at uri.
func (hs *HealthStore) Delete(ctx context.Context, uri string, where string, args []any) (int64, error) {
	return hs.coord.Delete(ctx, uri, where, args)
}

// BulkInsert inserts values at uri in one transaction.
func (hs *HealthStore) BulkInsert(ctx context.Context, uri string, values []record.Values) (int64, error) {
	return hs.coord.BulkInsert(ctx, uri, values)
}

// ApplyBatch applies ops atomically.
func (hs *HealthStore) ApplyBatch(ctx context.Context, ops []coordinator.Operation) ([]coordinator.Result, error) {
	return hs.coord.ApplyBatch(ctx, ops)
}

// Query reads the rows at q.URI.
func (hs *HealthStore) Query(ctx context.Context, q coordinator.QueryRequest) (*store.Rows, error) {
	return hs.coord.Query(ctx, q)
}

// Profile returns the medical profile, or the default profile when none
// was set.
func (hs *HealthStore) Profile(ctx context.Context) (record.Values, error) {
	rows, err := hs.coord.Query(ctx, coordinator.QueryRequest{URI: hs.router.ProfileURI()})
	if err != nil {
		return nil, err
	}
	if rows.Len() == 0 {
		return record.DefaultProfile(), nil
	}
	v := rows.Record(0)
	delete(v, record.ColID)
	return v, nil
}

// Subscribe registers fn for committed changes.
func (hs *HealthStore) Subscribe(fn func(coordinator.Change)) (cancel func()) {
	return hs.coord.Subscribe(fn)
}

// Stats returns the per-caller activity statistics.
func (hs *HealthStore) Stats() *coordinator.Stats {
	return hs.coord.Stats()
}

// Dump writes the activity report.
func (hs *HealthStore) Dump(w io.Writer, prefix string) error {
	return hs.coord.Dump(w, prefix)
}
