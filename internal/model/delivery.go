package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Delivery channel constants. The set is closed; dispatching on an unknown
// channel is a checked error path.
const (
	ChannelDownloadLink  = "download_link"
	ChannelFTP           = "ftp"
	ChannelSMTP          = "smtp"
	ChannelDropbox       = "dropbox"
	ChannelAzureBlob     = "azure_blob"
	ChannelObjectStorage = "object_storage"
)

// Channels lists every delivery channel in dispatch order.
var Channels = []string{
	ChannelDownloadLink,
	ChannelFTP,
	ChannelSMTP,
	ChannelDropbox,
	ChannelAzureBlob,
	ChannelObjectStorage,
}

// deliveryNamespace is the fixed UUID namespace for delivery identities.
var deliveryNamespace = uuid.MustParse("3f1a5b2e-9c47-4d8a-b1f0-6e2d74c3a911")

// DeliveryID derives the identity of a delivery from its backup record,
// resource group, and channel. The result is a pure function of its inputs,
// so re-running fan-out for the same record upserts instead of duplicating.
func DeliveryID(recordID int64, groupID, channel string) string {
	return uuid.NewSHA1(deliveryNamespace, []byte(fmt.Sprintf("%d/%s/%s", recordID, groupID, channel))).String()
}

// BackupRecordDelivery is one (backup record x channel) delivery attempt.
type BackupRecordDelivery struct {
	ID              string    `json:"id" db:"id"`
	RecordID        int64     `json:"record_id" db:"record_id"`
	Channel         string    `json:"channel" db:"channel"`
	Status          string    `json:"status" db:"status"`
	Message         *string   `json:"message,omitempty" db:"message"`
	DurationMS      int64     `json:"duration_ms" db:"duration_ms"`
	RegisteredAt    time.Time `json:"registered_at" db:"registered_at"`
	StatusUpdatedAt time.Time `json:"status_updated_at" db:"status_updated_at"`
}
