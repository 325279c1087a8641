package app

import (
	"fmt"

	"github.com/EcoWatch/EcoWatch-Backend/internal/config"
	"github.com/EcoWatch/EcoWatch-Backend/internal/db"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"go.uber.org/zap"
)

// OpenStore returns the store selected by cfg. For postgres the schema is
// migrated first. The returned func releases the connection pool.
func OpenStore(cfg config.Config, log *zap.Logger) (storage.Store, func(), error) {
	if cfg.Storage != config.StoragePostgres {
		log.Info("[storage] using in-memory store; data is lost on restart")
		return storage.NewMemStore(), func() {}, nil
	}

	conn, err := db.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	}

	store := storage.NewGormStore(conn)
	if err := store.Migrate(); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("[storage] connected to postgres", zap.String("schema", storage.Schema))
	return store, closeFn, nil
}
