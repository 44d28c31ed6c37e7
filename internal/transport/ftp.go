package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/model"
)

const ftpDialTimeout = 30 * time.Second

// FTP uploads backup files to an FTP server.
type FTP struct {
	logger zerolog.Logger
	cfg    *model.FTPConfig
}

func NewFTP(cfg *model.FTPConfig, logger zerolog.Logger) (*FTP, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ftp channel not configured")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid ftp config: %w", err)
	}
	return &FTP{
		logger: logger.With().Str("component", "ftp-transport").Logger(),
		cfg:    cfg,
	}, nil
}

func (t *FTP) Deliver(ctx context.Context, record *model.BackupRecord) (string, error) {
	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)

	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(ftpDialTimeout))
	if err != nil {
		return "", fmt.Errorf("ftp connect %s: %w", addr, err)
	}
	defer conn.Quit()

	if err := conn.Login(t.cfg.Username, t.cfg.Password); err != nil {
		return "", fmt.Errorf("ftp login: %w", err)
	}

	if t.cfg.Dir != "" && t.cfg.Dir != "/" {
		if err := conn.ChangeDir(t.cfg.Dir); err != nil {
			// Directory may not exist yet; create and retry.
			conn.MakeDir(t.cfg.Dir)
			if err := conn.ChangeDir(t.cfg.Dir); err != nil {
				return "", fmt.Errorf("ftp change dir %s: %w", t.cfg.Dir, err)
			}
		}
	}

	file, err := os.Open(record.Path)
	if err != nil {
		return "", fmt.Errorf("open backup file: %w", err)
	}
	defer file.Close()

	name := filepath.Base(record.Path)
	if err := conn.Stor(name, file); err != nil {
		return "", fmt.Errorf("ftp upload %s: %w", name, err)
	}

	t.logger.Info().Int64("record", record.ID).Str("file", name).Str("host", t.cfg.Host).Msg("uploaded backup to ftp")
	return fmt.Sprintf("uploaded %s to ftp://%s", name, t.cfg.Host), nil
}
