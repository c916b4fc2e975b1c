package catalog

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rpattn/metriq/internal/config"
	"github.com/rpattn/metriq/internal/db"
	"github.com/rpattn/metriq/internal/store"
	"github.com/rpattn/metriq/internal/store/filestore"
	"github.com/rpattn/metriq/internal/store/pgstore"
)

// Open constructs one store per collection for the configured backend. The
// returned close function releases backend resources and must be called on
// shutdown.
func Open(ctx context.Context, cfg config.Config) (map[string]store.EntityStore, func(), error) {
	stores := make(map[string]store.EntityStore, len(Collections()))

	switch cfg.Store.Backend {
	case config.BackendFile:
		for name, schema := range Schemas() {
			path := filepath.Join(cfg.Store.Dir, name+".json")
			stores[name] = filestore.New(path, schema, filestore.WithGuardWait(cfg.Store.GuardWait))
		}
		return stores, func() {}, nil

	case config.BackendPostgres:
		if err := db.RunMigrations(cfg.Database); err != nil {
			return nil, nil, err
		}
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		for name, schema := range Schemas() {
			stores[name] = pgstore.New(conn.Pool, schema, pgstore.WithGuardWait(cfg.Store.GuardWait))
		}
		return stores, conn.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
