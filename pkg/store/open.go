package store

import (
	"context"
	"fmt"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Open builds the backend named by driver. databaseURL is ignored for the
// memory backend.
func Open(ctx context.Context, driver, databaseURL string, opts ...Option) (Store, error) {
	switch driver {
	case DriverPostgres:
		return NewPostgres(ctx, databaseURL, opts...)
	case DriverSQLite:
		return NewSQLite(databaseURL, opts...)
	case DriverMemory:
		return NewMemory(opts...), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
