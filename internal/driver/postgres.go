package driver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/model"
)

// Postgres drives pg_dump/psql for the postgres engine family.
type Postgres struct {
	logger zerolog.Logger
}

func NewPostgres(logger zerolog.Logger) *Postgres {
	return &Postgres{logger: logger.With().Str("component", "postgres-driver").Logger()}
}

func (d *Postgres) connArgs(group *model.ResourceGroup) []string {
	args := []string{"-h", group.Host}
	if group.Port != 0 {
		args = append(args, "-p", strconv.Itoa(group.Port))
	}
	if group.Username != "" {
		args = append(args, "-U", group.Username)
	}
	return args
}

func (d *Postgres) env(group *model.ResourceGroup) []string {
	return append(os.Environ(), "PGPASSWORD="+group.Password)
}

// Backup runs pg_dump and writes the plain dump to destPath.
func (d *Postgres) Backup(ctx context.Context, databaseName string, group *model.ResourceGroup, destPath string) error {
	d.logger.Info().Str("database", databaseName).Str("path", destPath).Msg("running pg_dump")

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	args := append(d.connArgs(group), "--no-owner", "-f", destPath, databaseName)
	cmd := exec.CommandContext(ctx, "pg_dump", args...)
	cmd.Env = d.env(group)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pg_dump failed: %w: %s", err, string(out))
	}

	return nil
}

// Restore imports a dump file via psql.
func (d *Postgres) Restore(ctx context.Context, databaseName string, group *model.ResourceGroup, srcPath string) error {
	d.logger.Info().Str("database", databaseName).Str("path", srcPath).Msg("restoring postgres dump")

	args := append(d.connArgs(group), "-d", databaseName, "-f", srcPath)
	cmd := exec.CommandContext(ctx, "psql", args...)
	cmd.Env = d.env(group)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("psql restore failed: %w: %s", err, string(out))
	}

	return nil
}

// TestConnectivity checks the server with pg_isready.
func (d *Postgres) TestConnectivity(ctx context.Context, group *model.ResourceGroup) error {
	cmd := exec.CommandContext(ctx, "pg_isready", d.connArgs(group)...)
	cmd.Env = d.env(group)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("postgres server unreachable: %w: %s", err, string(out))
	}
	return nil
}
