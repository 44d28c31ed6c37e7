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

// MySQL drives mysqldump/mysql for the mysql engine family.
type MySQL struct {
	logger zerolog.Logger
}

func NewMySQL(logger zerolog.Logger) *MySQL {
	return &MySQL{logger: logger.With().Str("component", "mysql-driver").Logger()}
}

func (d *MySQL) args(databaseName string, group *model.ResourceGroup) []string {
	args := []string{"-h", group.Host}
	if group.Port != 0 {
		args = append(args, "-P", strconv.Itoa(group.Port))
	}
	if group.Username != "" {
		args = append(args, "-u", group.Username)
	}
	return append(args, databaseName)
}

// Backup runs mysqldump and writes the plain dump to destPath.
func (d *MySQL) Backup(ctx context.Context, databaseName string, group *model.ResourceGroup, destPath string) error {
	d.logger.Info().Str("database", databaseName).Str("path", destPath).Msg("running mysqldump")

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, "mysqldump", append([]string{"--single-transaction", "-r", destPath}, d.args(databaseName, group)...)...)
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+group.Password)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("mysqldump failed: %w: %s", err, string(out))
	}

	return nil
}

// Restore imports a dump file into the database via the mysql client.
func (d *MySQL) Restore(ctx context.Context, databaseName string, group *model.ResourceGroup, srcPath string) error {
	d.logger.Info().Str("database", databaseName).Str("path", srcPath).Msg("restoring mysql dump")

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open dump file: %w", err)
	}
	defer src.Close()

	cmd := exec.CommandContext(ctx, "mysql", d.args(databaseName, group)...)
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+group.Password)
	cmd.Stdin = src
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("mysql restore failed: %w: %s", err, string(out))
	}

	return nil
}

// TestConnectivity pings the server with mysqladmin.
func (d *MySQL) TestConnectivity(ctx context.Context, group *model.ResourceGroup) error {
	args := []string{"-h", group.Host}
	if group.Port != 0 {
		args = append(args, "-P", strconv.Itoa(group.Port))
	}
	if group.Username != "" {
		args = append(args, "-u", group.Username)
	}
	args = append(args, "ping")

	cmd := exec.CommandContext(ctx, "mysqladmin", args...)
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+group.Password)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("mysql server unreachable: %w: %s", err, string(out))
	}
	return nil
}
