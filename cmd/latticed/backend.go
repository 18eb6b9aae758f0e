package main

import (
	"context"
	"fmt"

	"github.com/latticedb/lattice/internal/config"
	"github.com/latticedb/lattice/internal/sqladapter"
	"github.com/latticedb/lattice/internal/sqladapter/doltdialect"
	"github.com/latticedb/lattice/internal/sqladapter/mysqldialect"
	"github.com/latticedb/lattice/internal/sqladapter/sqlitedialect"
)

// openBackend resolves cfg.Backend into a live Adapter, dispatching on
// Kind the same way the spec's test-harness CLI dispatches on its
// "sqlite <file> | mysql ... | dolt ..." positional form, here read from
// config instead of argv.
func openBackend(ctx context.Context, cfg config.Backend) (sqladapter.Adapter, error) {
	switch cfg.Kind {
	case "", "sqlite":
		return sqlitedialect.Open(ctx, cfg.Path)
	case "mysql":
		return mysqldialect.Open(ctx, mysqldialect.Config{
			Host:     cfg.MySQL.Host,
			Port:     cfg.MySQL.Port,
			User:     cfg.MySQL.User,
			Password: cfg.MySQL.Password,
			Database: cfg.MySQL.Database,
		})
	case "dolt":
		return doltdialect.Open(ctx, doltdialect.Config{
			DataDir:  cfg.Dolt.DataDir,
			Database: cfg.Dolt.Database,
		})
	default:
		return nil, fmt.Errorf("unsupported backend kind %q (must be sqlite, mysql, or dolt)", cfg.Kind)
	}
}

func loadConfig() (config.Config, error) {
	w, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return w.Current(), nil
}
