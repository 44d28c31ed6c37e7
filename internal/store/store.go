package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/backhaul/internal/engine"
)

// Notifier is a fire-and-forget record-changed callback for live-update
// consumers. The stores invoke it after a status write succeeds; it must
// not block and its failures are the consumer's problem.
type Notifier func(entity, id string)

// DB is the subset of pgxpool.Pool the stores need.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New bundles the pgx-backed stores for the engine. A nil notify is
// fine; status changes are then simply not announced.
func New(db DB, notify Notifier) engine.Stores {
	records := NewBackupRecordStore(db)
	records.Notify = notify
	deliveries := NewDeliveryStore(db)
	deliveries.Notify = notify

	return engine.Stores{
		Records:    records,
		Deliveries: deliveries,
		Schedules:  NewScheduleStore(db),
		Groups:     NewResourceGroupStore(db),
		Databases:  NewDatabaseStore(db),
	}
}
