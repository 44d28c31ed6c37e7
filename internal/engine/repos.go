package engine

import (
	"context"
	"errors"
	"time"

	"github.com/edvin/backhaul/internal/model"
)

// ErrNotFound is returned by the repositories when a referenced entity no
// longer exists. Dispatchers treat it as an orphan reference, not a
// transient failure.
var ErrNotFound = errors.New("not found")

// BackupRecordRepo is the engine's view of backup record persistence.
// Listing methods return records oldest-registered-first. Individual calls
// are atomic per record.
type BackupRecordRepo interface {
	Create(ctx context.Context, record *model.BackupRecord) error
	GetByID(ctx context.Context, id int64) (*model.BackupRecord, error)
	ListByStatus(ctx context.Context, status string) ([]model.BackupRecord, error)
	ListByRestoreStatus(ctx context.Context, restoreStatus string) ([]model.BackupRecord, error)
	ListReadyUndelivered(ctx context.Context) ([]model.BackupRecord, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.BackupRecord, error)
	ListNonResponsive(ctx context.Context, statuses []string, olderThan time.Duration) ([]int64, error)
	ListNonResponsiveRestores(ctx context.Context, restoreStatuses []string, olderThan time.Duration) ([]int64, error)
	UpdateStatusFeed(ctx context.Context, id int64, status, message string, elapsed time.Duration) error
	UpdateRestoreStatus(ctx context.Context, id int64, restoreStatus, message string) error
	SetPath(ctx context.Context, id int64, path string) error
	MarkDeliveryRun(ctx context.Context, id int64, outcome string) error
	Remove(ctx context.Context, id int64) error
}

// DeliveryRepo is the engine's view of delivery record persistence.
type DeliveryRepo interface {
	ListByStatus(ctx context.Context, status string) ([]model.BackupRecordDelivery, error)
	ListByRecord(ctx context.Context, recordID int64) ([]model.BackupRecordDelivery, error)
	ListNonResponsive(ctx context.Context, statuses []string, olderThan time.Duration) ([]string, error)
	Upsert(ctx context.Context, delivery *model.BackupRecordDelivery) error
	UpdateStatusFeed(ctx context.Context, id string, status, message string, elapsed time.Duration) error
	Remove(ctx context.Context, id string) error
}

// ScheduleRepo is the engine's view of recurring schedule persistence.
type ScheduleRepo interface {
	ListDue(ctx context.Context, now time.Time) ([]model.BackupSchedule, error)
	MarkFired(ctx context.Context, id int64, lastRun, nextRun time.Time) error
	RemoveBatch(ctx context.Context, ids []int64) error
}

// GroupRepo resolves resource groups.
type GroupRepo interface {
	GetByID(ctx context.Context, id string) (*model.ResourceGroup, error)
}

// DatabaseRepo resolves tenant databases.
type DatabaseRepo interface {
	GetByID(ctx context.Context, id string) (*model.Database, error)
}

// Stores bundles the repositories every dispatcher shares.
type Stores struct {
	Records    BackupRecordRepo
	Deliveries DeliveryRepo
	Schedules  ScheduleRepo
	Groups     GroupRepo
	Databases  DatabaseRepo
}
