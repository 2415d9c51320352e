package db

import (
	"fmt"

	"github.com/sdstation/middleware/internal/config"
	"github.com/sdstation/middleware/internal/db/drivers"
	"github.com/uptrace/bun/extra/bundebug"
)

func NewConnection(cfg *config.Config) (drivers.Driver, error) {
	var (
		driver drivers.Driver
		err    error
	)

	switch cfg.DB.Driver {
	case "sqlite":
		driver, err = drivers.NewSQLiteDriver(cfg.DB.DSN)
	case "pg":
		driver, err = drivers.NewPGDriver(cfg.DB.DSN)
	default:
		return nil, fmt.Errorf("invalid database driver: %s", cfg.DB.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Environment != "prod" {
		driver.GetDB().AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(false)))
	}

	return driver, nil
}
