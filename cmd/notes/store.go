package main

import (
	"io"

	"notes/internal/adapter/memory"
	"notes/internal/adapter/postgres"
	"notes/internal/adapter/sqlite"
	"notes/internal/config"
	"notes/internal/domain"
	"notes/internal/obs"
)

// store is any backend implementing both repository ports.
type store interface {
	domain.NoteRepository
	domain.UserRepository
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore opens the backend named by DATABASE_URL.
func openStore(cfg *config.Config) (store, io.Closer, error) {
	kind, dsn, err := cfg.Backend()
	if err != nil {
		return nil, nil, err
	}
	switch kind {
	case config.BackendPostgres:
		db, err := postgres.Open(dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	case config.BackendSQLite:
		db, err := sqlite.Open(dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	default:
		obs.Pkg("main").Warn("using in-memory store; data is lost on exit")
		return memory.New(), nopCloser{}, nil
	}
}
