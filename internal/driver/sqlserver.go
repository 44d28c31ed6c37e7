package driver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/model"
)

// SQLServer drives sqlcmd native BACKUP/RESTORE for the sqlserver engine
// family. The server writes the backup file itself, so destPath must be
// reachable by the server process.
type SQLServer struct {
	logger zerolog.Logger
}

func NewSQLServer(logger zerolog.Logger) *SQLServer {
	return &SQLServer{logger: logger.With().Str("component", "sqlserver-driver").Logger()}
}

func (d *SQLServer) run(ctx context.Context, group *model.ResourceGroup, query string) error {
	server := group.Host
	if group.Port != 0 {
		server = fmt.Sprintf("%s,%d", group.Host, group.Port)
	}

	args := []string{"-S", server, "-b", "-Q", query}
	if group.Username != "" {
		args = append(args, "-U", group.Username, "-P", group.Password)
	} else {
		args = append(args, "-E")
	}

	cmd := exec.CommandContext(ctx, "sqlcmd", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("sqlcmd failed: %w: %s", err, string(out))
	}
	return nil
}

// Backup issues a native BACKUP DATABASE to destPath.
func (d *SQLServer) Backup(ctx context.Context, databaseName string, group *model.ResourceGroup, destPath string) error {
	d.logger.Info().Str("database", databaseName).Str("path", destPath).Msg("running BACKUP DATABASE")

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	query := fmt.Sprintf("BACKUP DATABASE [%s] TO DISK = N'%s' WITH INIT", databaseName, destPath)
	return d.run(ctx, group, query)
}

// Restore issues a native RESTORE DATABASE from srcPath.
func (d *SQLServer) Restore(ctx context.Context, databaseName string, group *model.ResourceGroup, srcPath string) error {
	d.logger.Info().Str("database", databaseName).Str("path", srcPath).Msg("running RESTORE DATABASE")

	query := fmt.Sprintf("RESTORE DATABASE [%s] FROM DISK = N'%s' WITH REPLACE", databaseName, srcPath)
	return d.run(ctx, group, query)
}

// TestConnectivity runs a trivial query against the server.
func (d *SQLServer) TestConnectivity(ctx context.Context, group *model.ResourceGroup) error {
	if err := d.run(ctx, group, "SELECT 1"); err != nil {
		return fmt.Errorf("sqlserver unreachable: %w", err)
	}
	return nil
}
