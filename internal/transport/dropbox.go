package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/model"
)

// Dropbox uploads backup files to a Dropbox app folder.
type Dropbox struct {
	logger zerolog.Logger
	cfg    *model.DropboxConfig
	client files.Client
}

func NewDropbox(cfg *model.DropboxConfig, logger zerolog.Logger) (*Dropbox, error) {
	if cfg == nil {
		return nil, fmt.Errorf("dropbox channel not configured")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid dropbox config: %w", err)
	}
	return &Dropbox{
		logger: logger.With().Str("component", "dropbox-transport").Logger(),
		cfg:    cfg,
		client: files.New(dropbox.Config{Token: cfg.AccessToken}),
	}, nil
}

// remotePath is the Dropbox path for a record's backup file. Dropbox
// requires a leading slash.
func (t *Dropbox) remotePath(record *model.BackupRecord) string {
	dir := t.cfg.Dir
	if dir == "" {
		dir = "/"
	}
	return filepath.Join("/", dir, record.GroupID, filepath.Base(record.Path))
}

func (t *Dropbox) Deliver(ctx context.Context, record *model.BackupRecord) (string, error) {
	file, err := os.Open(record.Path)
	if err != nil {
		return "", fmt.Errorf("open backup file: %w", err)
	}
	defer file.Close()

	arg := files.NewUploadArg(t.remotePath(record))
	arg.Mode.Tag = "overwrite"

	if _, err := t.client.Upload(arg, file); err != nil {
		return "", fmt.Errorf("dropbox upload %s: %w", arg.Path, err)
	}

	t.logger.Info().Int64("record", record.ID).Str("path", arg.Path).Msg("uploaded backup to dropbox")
	return fmt.Sprintf("uploaded %s to dropbox", arg.Path), nil
}

// RemoteDelete removes the uploaded file.
func (t *Dropbox) RemoteDelete(ctx context.Context, record *model.BackupRecord) error {
	remote := t.remotePath(record)
	if _, err := t.client.DeleteV2(files.NewDeleteArg(remote)); err != nil {
		return fmt.Errorf("dropbox delete %s: %w", remote, err)
	}
	return nil
}
