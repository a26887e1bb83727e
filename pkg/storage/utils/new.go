// Package storageutils builds a storage.Driver from configuration.
package storageutils

import (
	"context"
	"errors"
	"fmt"

	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/storage/inmemory"
	"github.com/papercomputeco/recall/pkg/storage/mongo"
	"github.com/papercomputeco/recall/pkg/storage/postgres"
	"github.com/papercomputeco/recall/pkg/storage/sqlite"
)

type NewDriverOpts struct {
	// DriverType is one of "memory", "sqlite", "postgres" or "mongo".
	DriverType string

	SQLitePath    string
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string
}

func NewDriver(ctx context.Context, o *NewDriverOpts) (storage.Driver, error) {
	switch o.DriverType {
	case "memory", "inmemory":
		return inmemory.NewDriver(), nil
	case "sqlite", "":
		if o.SQLitePath == "" {
			return nil, errors.New("sqlite path is required")
		}
		return sqlite.NewDriver(ctx, o.SQLitePath)
	case "postgres", "postgresql":
		if o.PostgresDSN == "" {
			return nil, errors.New("postgres dsn is required")
		}
		return postgres.NewDriver(ctx, o.PostgresDSN)
	case "mongo", "mongodb":
		if o.MongoURI == "" {
			return nil, errors.New("mongo uri is required")
		}
		return mongo.NewDriver(ctx, o.MongoURI, o.MongoDatabase)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", o.DriverType)
	}
}
