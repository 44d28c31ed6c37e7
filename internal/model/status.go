package model

// Backup record status constants.
const (
	StatusQueued      = "queued"
	StatusExecuting   = "executing"
	StatusCompleted   = "completed"
	StatusCompressing = "compressing"
	StatusReady       = "ready"
	StatusError       = "error"
)

// Restore status constants.
const (
	RestoreNone      = "none"
	RestorePending   = "pending_restore"
	RestoreExecuting = "executing_restore"
	RestoreCompleted = "restore_completed"
	RestoreFailed    = "failed_restore"
)

// Delivery run outcome constants.
const (
	DeliveryRunSuccess = "success"
	DeliveryRunSkipped = "skipped"
)
