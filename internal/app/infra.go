package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/joshuamichael7/whattowatch-sub004/internal/config"
	"github.com/joshuamichael7/whattowatch-sub004/internal/db"
	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
	"github.com/joshuamichael7/whattowatch-sub004/internal/reccache"
	"github.com/joshuamichael7/whattowatch-sub004/internal/redis"
)

type Infra struct {
	DB     *db.DB
	Redis  *redis.Client
	Badger *badger.DB // only with the badger cache backend
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	database, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := db.RunMigrations(ctx, database.DB); err != nil {
		_ = database.Close()
		return nil, err
	}

	logger.Info("database ready", nil)

	redisClient, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	logger.Info("redis ready", map[string]any{
		"addr": cfg.RedisAddr,
	})

	return &Infra{
		DB:    database,
		Redis: redisClient,
	}, nil
}

// recommendationStorage picks the cache backend named in cfg. A badger
// database opened here is kept on infra so Close can release it.
func (infra *Infra) recommendationStorage(cfg config.Config) (reccache.Storage, error) {
	switch cfg.CacheBackend {
	case "redis":
		return reccache.NewRedisStorage(infra.Redis.Client), nil
	case "badger":
		bdb, err := reccache.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}
		infra.Badger = bdb
		logger.Info("badger cache ready", map[string]any{
			"path": cfg.BadgerPath,
		})
		return reccache.NewBadgerStorage(bdb), nil
	case "memory":
		return reccache.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("app: unknown cache backend %q", cfg.CacheBackend)
	}
}

func (infra *Infra) Close() error {
	var errs []error
	if infra.Badger != nil {
		errs = append(errs, infra.Badger.Close())
	}
	errs = append(errs, infra.Redis.Close(), infra.DB.Close())
	return errors.Join(errs...)
}
