package model

import "time"

// Engine family constants for backup drivers.
const (
	EngineMySQL     = "mysql"
	EnginePostgres  = "postgres"
	EngineSQLServer = "sqlserver"
)

// ResourceGroup is the tenant boundary: it owns databases and schedules,
// and carries the concurrency budget and delivery policy for all of them.
type ResourceGroup struct {
	ID                 string          `json:"id" db:"id"`
	Name               string          `json:"name" db:"name"`
	Engine             string          `json:"engine" db:"engine"`
	Host               string          `json:"host" db:"host"`
	Port               int             `json:"port" db:"port"`
	Username           string          `json:"username" db:"username"`
	Password           string          `json:"password" db:"password"`
	MaxConcurrentBots  int             `json:"max_concurrent_bots" db:"max_concurrent_bots"`
	CompressionEnabled bool            `json:"compression_enabled" db:"compression_enabled"`
	RetentionDays      int             `json:"retention_days" db:"retention_days"`
	Delivery           *DeliveryConfig `json:"delivery,omitempty" db:"delivery"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// DeliveryConfig holds one optional sub-config per delivery channel.
// A nil sub-config or a disabled one means the channel is off.
type DeliveryConfig struct {
	DownloadLink  *DownloadLinkConfig  `json:"download_link,omitempty"`
	FTP           *FTPConfig           `json:"ftp,omitempty"`
	SMTP          *SMTPConfig          `json:"smtp,omitempty"`
	Dropbox       *DropboxConfig       `json:"dropbox,omitempty"`
	AzureBlob     *AzureBlobConfig     `json:"azure_blob,omitempty"`
	ObjectStorage *ObjectStorageConfig `json:"object_storage,omitempty"`
}

// ChannelEnabled reports whether the given channel is configured and enabled.
func (c *DeliveryConfig) ChannelEnabled(channel string) bool {
	if c == nil {
		return false
	}
	switch channel {
	case ChannelDownloadLink:
		return c.DownloadLink != nil && c.DownloadLink.Enabled
	case ChannelFTP:
		return c.FTP != nil && c.FTP.Enabled
	case ChannelSMTP:
		return c.SMTP != nil && c.SMTP.Enabled
	case ChannelDropbox:
		return c.Dropbox != nil && c.Dropbox.Enabled
	case ChannelAzureBlob:
		return c.AzureBlob != nil && c.AzureBlob.Enabled
	case ChannelObjectStorage:
		return c.ObjectStorage != nil && c.ObjectStorage.Enabled
	}
	return false
}

// EnabledChannels returns the channels enabled in this config, in the
// canonical dispatch order.
func (c *DeliveryConfig) EnabledChannels() []string {
	var enabled []string
	for _, ch := range Channels {
		if c.ChannelEnabled(ch) {
			enabled = append(enabled, ch)
		}
	}
	return enabled
}

// FTPConfig configures delivery to an FTP server.
type FTPConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host" validate:"required"`
	Port     int    `json:"port" validate:"required,min=1,max=65535"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password"`
	Dir      string `json:"dir"`
}

// SMTPConfig configures delivery of the backup as a mail attachment.
type SMTPConfig struct {
	Enabled  bool     `json:"enabled"`
	Host     string   `json:"host" validate:"required"`
	Port     int      `json:"port" validate:"required,min=1,max=65535"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	From     string   `json:"from" validate:"required,email"`
	To       []string `json:"to" validate:"required,min=1,dive,email"`
}

// DropboxConfig configures delivery to a Dropbox app folder.
type DropboxConfig struct {
	Enabled     bool   `json:"enabled"`
	AccessToken string `json:"access_token" validate:"required"`
	Dir         string `json:"dir"`
}

// AzureBlobConfig configures delivery to an Azure Blob Storage container.
type AzureBlobConfig struct {
	Enabled     bool   `json:"enabled"`
	AccountName string `json:"account_name" validate:"required"`
	AccountKey  string `json:"account_key" validate:"required"`
	Container   string `json:"container" validate:"required"`
}

// ObjectStorageConfig configures delivery to an S3-compatible bucket.
// It also backs the download-link channel, which presigns a GET against
// the same bucket.
type ObjectStorageConfig struct {
	Enabled         bool   `json:"enabled"`
	Endpoint        string `json:"endpoint"`
	Region          string `json:"region" validate:"required"`
	Bucket          string `json:"bucket" validate:"required"`
	AccessKeyID     string `json:"access_key_id" validate:"required"`
	SecretAccessKey string `json:"secret_access_key" validate:"required"`
	LinkTTLHours    int    `json:"link_ttl_hours"`
}

// DownloadLinkConfig configures presigned download-link generation.
type DownloadLinkConfig struct {
	Enabled bool `json:"enabled"`
}
