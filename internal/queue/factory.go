package queue

import (
	"database/sql"
	"fmt"
	"strings"

	"FeedPress/internal/config"
	"FeedPress/internal/infrastructure/storage"
	"FeedPress/internal/ports"
)

// NewStore selects the queue backend. With backend "auto" Postgres wins when db is set,
// then bolt when a path is configured, then memory. It returns the chosen backend name.
func NewStore(cfg config.QueueConfig, db *sql.DB) (ports.QueueStore, string, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = config.BackendAuto
	}
	if backend == config.BackendAuto {
		switch {
		case db != nil:
			backend = config.BackendPostgres
		case cfg.BoltPath != "":
			backend = config.BackendBolt
		default:
			backend = config.BackendMemory
		}
	}

	switch backend {
	case config.BackendPostgres:
		if db == nil {
			return nil, "", fmt.Errorf("queue backend postgres requires database.dsn")
		}
		return storage.NewPostgresQueueStore(db), backend, nil
	case config.BackendBolt:
		if cfg.BoltPath == "" {
			return nil, "", fmt.Errorf("queue backend bolt requires queue.boltPath")
		}
		store, err := storage.OpenBoltQueueStore(cfg.BoltPath)
		if err != nil {
			return nil, "", fmt.Errorf("open bolt queue: %w", err)
		}
		return store, backend, nil
	case config.BackendMemory:
		return NewMemoryStore(), backend, nil
	}
	return nil, "", fmt.Errorf("unknown queue backend %q", cfg.Backend)
}
