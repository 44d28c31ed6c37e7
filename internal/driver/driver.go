// Package driver holds the backup engine drivers. Each supported engine
// family wraps its native dump/restore tooling; the engine set is closed
// and dispatching on an unknown tag is a checked error.
package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/model"
)

// ErrUnknownEngine marks an engine family tag outside the supported set.
var ErrUnknownEngine = errors.New("unknown engine family")

// Driver produces and restores database dumps for one engine family.
type Driver interface {
	// Backup writes a plain dump of databaseName to destPath.
	Backup(ctx context.Context, databaseName string, group *model.ResourceGroup, destPath string) error
	// Restore imports the dump at srcPath into databaseName.
	Restore(ctx context.Context, databaseName string, group *model.ResourceGroup, srcPath string) error
	// TestConnectivity verifies the group's database server is reachable.
	TestConnectivity(ctx context.Context, group *model.ResourceGroup) error
}

// ForEngine returns the driver for the given engine family tag.
func ForEngine(engine string, logger zerolog.Logger) (Driver, error) {
	switch engine {
	case model.EngineMySQL:
		return NewMySQL(logger), nil
	case model.EnginePostgres:
		return NewPostgres(logger), nil
	case model.EngineSQLServer:
		return NewSQLServer(logger), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, engine)
}
