// Package transport holds the delivery channel clients. Each channel in
// the closed set maps to one Transport; dispatching on an unknown channel
// is a checked error. Channels that can remove a previously delivered copy
// also implement RemoteDeleter.
package transport

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/model"
)

var validate = validator.New()

// ErrUnknownChannel marks a channel tag outside the supported set.
var ErrUnknownChannel = errors.New("unknown delivery channel")

// Transport performs one channel-specific delivery of a backup file.
// Deliver returns a human-readable result message for the delivery feed.
type Transport interface {
	Deliver(ctx context.Context, record *model.BackupRecord) (string, error)
}

// RemoteDeleter removes the remote copy of a delivered backup. Used by the
// expiry sweeper when in-depth delete is enabled.
type RemoteDeleter interface {
	RemoteDelete(ctx context.Context, record *model.BackupRecord) error
}

// ForChannel builds the transport for the given channel tag from the
// group's delivery configuration. The channel's config is validated here
// so a misconfigured channel fails with a readable message instead of a
// connection attempt with garbage parameters.
func ForChannel(channel string, group *model.ResourceGroup, logger zerolog.Logger) (Transport, error) {
	cfg := group.Delivery
	if cfg == nil {
		return nil, fmt.Errorf("group %s has no delivery configuration", group.ID)
	}

	switch channel {
	case model.ChannelFTP:
		return NewFTP(cfg.FTP, logger)
	case model.ChannelSMTP:
		return NewSMTP(cfg.SMTP, logger)
	case model.ChannelObjectStorage:
		return NewObjectStorage(cfg.ObjectStorage, logger)
	case model.ChannelDownloadLink:
		// Links presign against the object storage bucket.
		return NewDownloadLink(cfg.ObjectStorage, logger)
	case model.ChannelAzureBlob:
		return NewAzureBlob(cfg.AzureBlob, logger)
	case model.ChannelDropbox:
		return NewDropbox(cfg.Dropbox, logger)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
}

// SupportsRemoteDelete reports whether the channel can remove a remote copy.
func SupportsRemoteDelete(channel string) bool {
	switch channel {
	case model.ChannelObjectStorage, model.ChannelAzureBlob, model.ChannelDropbox:
		return true
	}
	return false
}

// remoteName is the object/blob/file name for a record's backup file,
// namespaced by resource group.
func remoteName(record *model.BackupRecord) string {
	return record.GroupID + "/" + filepath.Base(record.Path)
}
