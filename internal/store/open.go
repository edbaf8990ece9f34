package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/config"
)

// Open returns the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch cfg.Driver {
	case "", "memory":
		log.Warn("using in-memory auction store; records are lost on restart")
		return NewMemoryStore(), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, err
		}
		return NewSQLiteStore(cfg.SQLitePath)
	case "mongo":
		return NewMongoStore(ctx, MongoConfig{
			URI:            cfg.MongoURI,
			Database:       cfg.MongoDatabase,
			Collection:     cfg.MongoCollection,
			ConnectTimeout: cfg.ConnectTimeout,
		})
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
