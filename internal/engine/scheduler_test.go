package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backhaul/internal/model"
)

func newTestScheduler(stores *mockStores, now time.Time) *Scheduler {
	s := NewScheduler(testLogger(), stores.stores(), "/backups")
	s.now = func() time.Time { return now }
	return s
}

func TestSchedulerFiresDueSchedule(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	ms := newMockStores()
	s := newTestScheduler(ms, now)

	sched := model.BackupSchedule{ID: 1, DatabaseID: "db-1", IntervalHours: 24, NextRunAt: now.Add(-time.Minute)}
	db := &model.Database{ID: "db-1", GroupID: "g1", Name: "shop"}
	group := testGroup("g1")

	ms.schedules.On("ListDue", mock.Anything, now).Return([]model.BackupSchedule{sched}, nil)
	ms.databases.On("GetByID", mock.Anything, "db-1").Return(db, nil)
	ms.groups.On("GetByID", mock.Anything, "g1").Return(group, nil)
	ms.records.On("Create", mock.Anything, mock.MatchedBy(func(r *model.BackupRecord) bool {
		return r.DatabaseID == "db-1" &&
			r.GroupID == "g1" &&
			r.Status == model.StatusQueued &&
			r.RestoreStatus == model.RestoreNone &&
			r.Path == filepath.Join("/backups", "g1", "shop-20260314-120000.sql") &&
			r.ExpiresAt != nil && r.ExpiresAt.Equal(now.AddDate(0, 0, group.RetentionDays))
	})).Return(nil)
	ms.schedules.On("MarkFired", mock.Anything, int64(1), now, now.Add(24*time.Hour)).Return(nil)

	require.NoError(t, s.Pass(context.Background()))
	ms.assertExpectations(t)
}

func TestSchedulerUsesEngineExtension(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	ms := newMockStores()
	s := newTestScheduler(ms, now)

	group := testGroup("g1")
	group.Engine = model.EngineSQLServer

	ms.schedules.On("ListDue", mock.Anything, now).
		Return([]model.BackupSchedule{{ID: 1, DatabaseID: "db-1", IntervalHours: 6}}, nil)
	ms.databases.On("GetByID", mock.Anything, "db-1").
		Return(&model.Database{ID: "db-1", GroupID: "g1", Name: "crm"}, nil)
	ms.groups.On("GetByID", mock.Anything, "g1").Return(group, nil)
	ms.records.On("Create", mock.Anything, mock.MatchedBy(func(r *model.BackupRecord) bool {
		return filepath.Ext(r.Path) == ".bak"
	})).Return(nil)
	ms.schedules.On("MarkFired", mock.Anything, int64(1), now, now.Add(6*time.Hour)).Return(nil)

	require.NoError(t, s.Pass(context.Background()))
	ms.assertExpectations(t)
}

func TestSchedulerRemovesOrphanedSchedules(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	ms := newMockStores()
	s := newTestScheduler(ms, now)

	due := []model.BackupSchedule{
		{ID: 1, DatabaseID: "gone-db"},
		{ID: 2, DatabaseID: "db-2"},
	}
	ms.schedules.On("ListDue", mock.Anything, now).Return(due, nil)
	ms.databases.On("GetByID", mock.Anything, "gone-db").Return(nil, ErrNotFound)
	ms.databases.On("GetByID", mock.Anything, "db-2").
		Return(&model.Database{ID: "db-2", GroupID: "gone-group", Name: "x"}, nil)
	ms.groups.On("GetByID", mock.Anything, "gone-group").Return(nil, ErrNotFound)
	ms.schedules.On("RemoveBatch", mock.Anything, []int64{1, 2}).Return(nil)

	require.NoError(t, s.Pass(context.Background()))
	ms.assertExpectations(t)
	ms.records.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSchedulerFiringFailureDoesNotBlockOthers(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	ms := newMockStores()
	s := newTestScheduler(ms, now)

	due := []model.BackupSchedule{
		{ID: 1, DatabaseID: "db-1", IntervalHours: 1},
		{ID: 2, DatabaseID: "db-2", IntervalHours: 1},
	}
	ms.schedules.On("ListDue", mock.Anything, now).Return(due, nil)
	ms.databases.On("GetByID", mock.Anything, "db-1").
		Return(&model.Database{ID: "db-1", GroupID: "g1", Name: "a"}, nil)
	ms.databases.On("GetByID", mock.Anything, "db-2").
		Return(&model.Database{ID: "db-2", GroupID: "g1", Name: "b"}, nil)
	ms.groups.On("GetByID", mock.Anything, "g1").Return(testGroup("g1"), nil)
	ms.records.On("Create", mock.Anything, mock.MatchedBy(func(r *model.BackupRecord) bool {
		return r.DatabaseID == "db-1"
	})).Return(assert.AnError)
	ms.records.On("Create", mock.Anything, mock.MatchedBy(func(r *model.BackupRecord) bool {
		return r.DatabaseID == "db-2"
	})).Return(nil)
	ms.schedules.On("MarkFired", mock.Anything, int64(2), now, now.Add(time.Hour)).Return(nil)

	require.NoError(t, s.Pass(context.Background()))
	ms.assertExpectations(t)
	ms.schedules.AssertNotCalled(t, "MarkFired", mock.Anything, int64(1), mock.Anything, mock.Anything)
}
