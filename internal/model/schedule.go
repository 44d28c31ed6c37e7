package model

import "time"

// BackupSchedule is a recurring backup definition for one database.
type BackupSchedule struct {
	ID            int64     `json:"id" db:"id"`
	DatabaseID    string    `json:"database_id" db:"database_id"`
	IntervalHours int       `json:"interval_hours" db:"interval_hours"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty" db:"last_run_at"`
	NextRunAt     time.Time `json:"next_run_at" db:"next_run_at"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Advance returns the schedule's next firing time after now.
func (s *BackupSchedule) Advance(now time.Time) time.Time {
	return now.Add(time.Duration(s.IntervalHours) * time.Hour)
}
