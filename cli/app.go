package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"ogsm-service/cache"
	"ogsm-service/config"
	"ogsm-service/db"
	"ogsm-service/hierarchy"
	"ogsm-service/logger"
	"ogsm-service/service"
	"ogsm-service/store"
)

// app is everything a command needs, wired from the loaded configuration.
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	conn       *sql.DB
	repo       store.Repository
	trees      cache.TreeCache
	closers    []func() error
	components *service.ComponentService
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

func newApp(ctx context.Context, path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	a := &app{cfg: cfg, log: log}

	switch cfg.Storage.Driver {
	case "memory":
		a.repo = store.NewMemStore()
		log.Warn("Using in-memory storage; data is lost on exit")
	default:
		conn, err := db.Open(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		a.conn = conn
		a.closers = append(a.closers, conn.Close)
		a.repo = store.NewComponentStore(conn)
	}

	switch cfg.Cache.Driver {
	case "redis":
		rc, err := cache.NewRedisTreeCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.Key, cfg.Cache.TTL, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.trees = rc
		a.closers = append(a.closers, rc.Close)
	case "memory":
		a.trees = cache.NewMemoryTreeCache(cfg.Cache.TTL)
	default:
		a.trees = cache.NopTreeCache{}
	}

	validator := hierarchy.NewValidator(hierarchy.DefaultRules(), cfg.Hierarchy.MaxDepth)
	a.components = service.NewComponentService(a.repo, validator, a.trees, log)
	return a, nil
}

// postgres returns the database connection or explains why there is none.
func (a *app) postgres() (*sql.DB, error) {
	if a.conn == nil {
		return nil, fmt.Errorf("storage driver %q has no database; set STORAGE_DRIVER=postgres", a.cfg.Storage.Driver)
	}
	return a.conn, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("Close failed", "error", err)
		}
	}
	a.log.Sync()
}
