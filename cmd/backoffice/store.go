package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/go_fashionary/internal/config"
	"github.com/fjod/go_fashionary/internal/repository"
	"github.com/sirupsen/logrus"
)

// openRepository connects the order store selected by STORE and brings its
// schema up to date. The memory store starts with the sample orders.
func openRepository(ctx context.Context, cfg *config.Config, log *logrus.Entry) (repository.OrderRepository, error) {
	switch cfg.Store {
	case config.StoreMemory:
		repo := repository.NewMemoryRepository()
		n, err := repository.Seed(ctx, repo, repository.SampleOrders(time.Now()))
		if err != nil {
			return nil, err
		}
		log.WithField("orders", n).Info("using in-memory order store with sample data")
		return repo, nil
	case config.StoreSQLite, config.StorePostgres:
		repo, err := openSQL(cfg)
		if err != nil {
			return nil, err
		}
		if err := repo.RunMigrations(cfg.MigrationsPath); err != nil {
			repo.Close()
			return nil, err
		}
		log.WithField("store", cfg.Store).Info("database migrations completed")
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func openSQL(cfg *config.Config) (*repository.SQLRepository, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		return repository.NewSQLiteRepository(cfg.SQLitePath)
	case config.StorePostgres:
		return repository.NewPostgresRepository(&repository.Credentials{
			Host:              cfg.DB.Host,
			Port:              cfg.DB.Port,
			User:              cfg.DB.User,
			Password:          cfg.DB.Password,
			DBName:            cfg.DB.Name,
			MigrationsDirPath: cfg.MigrationsPath,
		})
	default:
		return nil, fmt.Errorf("STORE=%s has no database, use sqlite or postgres", cfg.Store)
	}
}
