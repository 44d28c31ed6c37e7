package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/edvin/backhaul/internal/model"
)

// ---------- backup records ----------

type mockRecordRepo struct {
	mock.Mock
}

func (m *mockRecordRepo) Create(ctx context.Context, record *model.BackupRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockRecordRepo) GetByID(ctx context.Context, id int64) (*model.BackupRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BackupRecord), args.Error(1)
}

func (m *mockRecordRepo) ListByStatus(ctx context.Context, status string) ([]model.BackupRecord, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BackupRecord), args.Error(1)
}

func (m *mockRecordRepo) ListByRestoreStatus(ctx context.Context, restoreStatus string) ([]model.BackupRecord, error) {
	args := m.Called(ctx, restoreStatus)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BackupRecord), args.Error(1)
}

func (m *mockRecordRepo) ListReadyUndelivered(ctx context.Context) ([]model.BackupRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BackupRecord), args.Error(1)
}

func (m *mockRecordRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.BackupRecord, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BackupRecord), args.Error(1)
}

func (m *mockRecordRepo) ListNonResponsive(ctx context.Context, statuses []string, olderThan time.Duration) ([]int64, error) {
	args := m.Called(ctx, statuses, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *mockRecordRepo) ListNonResponsiveRestores(ctx context.Context, restoreStatuses []string, olderThan time.Duration) ([]int64, error) {
	args := m.Called(ctx, restoreStatuses, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *mockRecordRepo) UpdateStatusFeed(ctx context.Context, id int64, status, message string, elapsed time.Duration) error {
	args := m.Called(ctx, id, status, message, elapsed)
	return args.Error(0)
}

func (m *mockRecordRepo) UpdateRestoreStatus(ctx context.Context, id int64, restoreStatus, message string) error {
	args := m.Called(ctx, id, restoreStatus, message)
	return args.Error(0)
}

func (m *mockRecordRepo) SetPath(ctx context.Context, id int64, path string) error {
	args := m.Called(ctx, id, path)
	return args.Error(0)
}

func (m *mockRecordRepo) MarkDeliveryRun(ctx context.Context, id int64, outcome string) error {
	args := m.Called(ctx, id, outcome)
	return args.Error(0)
}

func (m *mockRecordRepo) Remove(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// ---------- deliveries ----------

type mockDeliveryRepo struct {
	mock.Mock
}

func (m *mockDeliveryRepo) ListByStatus(ctx context.Context, status string) ([]model.BackupRecordDelivery, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BackupRecordDelivery), args.Error(1)
}

func (m *mockDeliveryRepo) ListByRecord(ctx context.Context, recordID int64) ([]model.BackupRecordDelivery, error) {
	args := m.Called(ctx, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BackupRecordDelivery), args.Error(1)
}

func (m *mockDeliveryRepo) ListNonResponsive(ctx context.Context, statuses []string, olderThan time.Duration) ([]string, error) {
	args := m.Called(ctx, statuses, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockDeliveryRepo) Upsert(ctx context.Context, delivery *model.BackupRecordDelivery) error {
	args := m.Called(ctx, delivery)
	return args.Error(0)
}

func (m *mockDeliveryRepo) UpdateStatusFeed(ctx context.Context, id string, status, message string, elapsed time.Duration) error {
	args := m.Called(ctx, id, status, message, elapsed)
	return args.Error(0)
}

func (m *mockDeliveryRepo) Remove(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// ---------- schedules ----------

type mockScheduleRepo struct {
	mock.Mock
}

func (m *mockScheduleRepo) ListDue(ctx context.Context, now time.Time) ([]model.BackupSchedule, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BackupSchedule), args.Error(1)
}

func (m *mockScheduleRepo) MarkFired(ctx context.Context, id int64, lastRun, nextRun time.Time) error {
	args := m.Called(ctx, id, lastRun, nextRun)
	return args.Error(0)
}

func (m *mockScheduleRepo) RemoveBatch(ctx context.Context, ids []int64) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

// ---------- groups and databases ----------

type mockGroupRepo struct {
	mock.Mock
}

func (m *mockGroupRepo) GetByID(ctx context.Context, id string) (*model.ResourceGroup, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ResourceGroup), args.Error(1)
}

type mockDatabaseRepo struct {
	mock.Mock
}

func (m *mockDatabaseRepo) GetByID(ctx context.Context, id string) (*model.Database, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Database), args.Error(1)
}

// ---------- fixtures ----------

type mockStores struct {
	records    *mockRecordRepo
	deliveries *mockDeliveryRepo
	schedules  *mockScheduleRepo
	groups     *mockGroupRepo
	databases  *mockDatabaseRepo
}

func newMockStores() *mockStores {
	return &mockStores{
		records:    &mockRecordRepo{},
		deliveries: &mockDeliveryRepo{},
		schedules:  &mockScheduleRepo{},
		groups:     &mockGroupRepo{},
		databases:  &mockDatabaseRepo{},
	}
}

func (m *mockStores) stores() Stores {
	return Stores{
		Records:    m.records,
		Deliveries: m.deliveries,
		Schedules:  m.schedules,
		Groups:     m.groups,
		Databases:  m.databases,
	}
}

func (m *mockStores) assertExpectations(t mock.TestingT) {
	m.records.AssertExpectations(t)
	m.deliveries.AssertExpectations(t)
	m.schedules.AssertExpectations(t)
	m.groups.AssertExpectations(t)
	m.databases.AssertExpectations(t)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func testPool() *Pool {
	return NewPool(testLogger(), testMetrics())
}

func testGroup(id string) *model.ResourceGroup {
	return &model.ResourceGroup{
		ID:                id,
		Name:              "group " + id,
		Engine:            model.EnginePostgres,
		Host:              "db.internal",
		Port:              5432,
		Username:          "backup",
		Password:          "secret",
		MaxConcurrentBots: 2,
		RetentionDays:     7,
	}
}
