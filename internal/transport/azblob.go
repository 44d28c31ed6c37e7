package transport

import (
	"context"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/model"
)

// AzureBlob uploads backup files to an Azure Blob Storage container.
type AzureBlob struct {
	logger zerolog.Logger
	cfg    *model.AzureBlobConfig
	client *azblob.Client
}

func NewAzureBlob(cfg *model.AzureBlobConfig, logger zerolog.Logger) (*AzureBlob, error) {
	if cfg == nil {
		return nil, fmt.Errorf("azure blob channel not configured")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid azure blob config: %w", err)
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure blob client: %w", err)
	}

	return &AzureBlob{
		logger: logger.With().Str("component", "azblob-transport").Logger(),
		cfg:    cfg,
		client: client,
	}, nil
}

func (t *AzureBlob) Deliver(ctx context.Context, record *model.BackupRecord) (string, error) {
	file, err := os.Open(record.Path)
	if err != nil {
		return "", fmt.Errorf("open backup file: %w", err)
	}
	defer file.Close()

	name := remoteName(record)
	if _, err := t.client.UploadFile(ctx, t.cfg.Container, name, file, nil); err != nil {
		return "", fmt.Errorf("upload blob %s: %w", name, err)
	}

	t.logger.Info().Int64("record", record.ID).Str("container", t.cfg.Container).Str("blob", name).Msg("uploaded backup to azure blob storage")
	return fmt.Sprintf("uploaded %s to container %s", name, t.cfg.Container), nil
}

// RemoteDelete removes the uploaded blob.
func (t *AzureBlob) RemoteDelete(ctx context.Context, record *model.BackupRecord) error {
	name := remoteName(record)
	if _, err := t.client.DeleteBlob(ctx, t.cfg.Container, name, nil); err != nil {
		return fmt.Errorf("delete blob %s: %w", name, err)
	}
	return nil
}
