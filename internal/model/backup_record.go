package model

import "time"

// BackupRecord is one requested or executed backup of a tenant database.
type BackupRecord struct {
	ID              int64      `json:"id" db:"id"`
	DatabaseID      string     `json:"database_id" db:"database_id"`
	GroupID         string     `json:"group_id" db:"group_id"`
	Status          string     `json:"status" db:"status"`
	RestoreStatus   string     `json:"restore_status" db:"restore_status"`
	Path            string     `json:"path" db:"path"`
	Message         *string    `json:"message,omitempty" db:"message"`
	DurationMS      int64      `json:"duration_ms" db:"duration_ms"`
	DeliveryRun     bool       `json:"delivery_run" db:"delivery_run"`
	DeliveryOutcome *string    `json:"delivery_outcome,omitempty" db:"delivery_outcome"`
	RegisteredAt    time.Time  `json:"registered_at" db:"registered_at"`
	StatusUpdatedAt time.Time  `json:"status_updated_at" db:"status_updated_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty" db:"expires_at"`
}
