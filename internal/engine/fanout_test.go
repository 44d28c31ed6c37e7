package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backhaul/internal/model"
)

func newTestFanout(stores *mockStores) *FanoutScheduler {
	return NewFanoutScheduler(testLogger(), stores.stores(), testMetrics())
}

func readyRecord(id int64, groupID string) model.BackupRecord {
	return model.BackupRecord{ID: id, GroupID: groupID, Status: model.StatusReady}
}

func TestFanoutSchedulesOneDeliveryPerEnabledChannel(t *testing.T) {
	ms := newMockStores()
	f := newTestFanout(ms)

	group := testGroup("g1")
	group.Delivery = &model.DeliveryConfig{
		FTP:     &model.FTPConfig{Enabled: true, Host: "ftp.internal", Port: 21, Username: "u"},
		Dropbox: &model.DropboxConfig{Enabled: true, AccessToken: "tok"},
		SMTP:    &model.SMTPConfig{Enabled: false},
	}

	ms.records.On("ListReadyUndelivered", mock.Anything).
		Return([]model.BackupRecord{readyRecord(1, "g1")}, nil)
	ms.groups.On("GetByID", mock.Anything, "g1").Return(group, nil)

	var seen []string
	ms.deliveries.On("Upsert", mock.Anything, mock.MatchedBy(func(d *model.BackupRecordDelivery) bool {
		seen = append(seen, d.Channel)
		return d.RecordID == 1 &&
			d.Status == model.StatusQueued &&
			d.ID == model.DeliveryID(1, "g1", d.Channel)
	})).Return(nil)
	ms.records.On("MarkDeliveryRun", mock.Anything, int64(1), model.DeliveryRunSuccess).Return(nil)

	require.NoError(t, f.Pass(context.Background()))
	assert.ElementsMatch(t, []string{model.ChannelFTP, model.ChannelDropbox}, seen)
	ms.assertExpectations(t)
}

func TestFanoutIsIdempotentAcrossPasses(t *testing.T) {
	ms := newMockStores()
	f := newTestFanout(ms)

	group := testGroup("g1")
	group.Delivery = &model.DeliveryConfig{
		Dropbox: &model.DropboxConfig{Enabled: true, AccessToken: "tok"},
	}

	ms.records.On("ListReadyUndelivered", mock.Anything).
		Return([]model.BackupRecord{readyRecord(1, "g1")}, nil)
	ms.groups.On("GetByID", mock.Anything, "g1").Return(group, nil)

	var ids []string
	ms.deliveries.On("Upsert", mock.Anything, mock.MatchedBy(func(d *model.BackupRecordDelivery) bool {
		ids = append(ids, d.ID)
		return true
	})).Return(nil)
	ms.records.On("MarkDeliveryRun", mock.Anything, int64(1), model.DeliveryRunSuccess).Return(nil)

	require.NoError(t, f.Pass(context.Background()))
	require.NoError(t, f.Pass(context.Background()))

	// Same record, same channel: both passes target the same identity, so
	// the second run is an upsert of the first, never a duplicate row.
	require.Len(t, ids, 2)
	assert.Equal(t, ids[0], ids[1])
}

func TestFanoutSkipsRecordWithNoChannels(t *testing.T) {
	ms := newMockStores()
	f := newTestFanout(ms)

	ms.records.On("ListReadyUndelivered", mock.Anything).
		Return([]model.BackupRecord{readyRecord(1, "g1")}, nil)
	ms.groups.On("GetByID", mock.Anything, "g1").Return(testGroup("g1"), nil)
	ms.records.On("MarkDeliveryRun", mock.Anything, int64(1), model.DeliveryRunSkipped).Return(nil)

	require.NoError(t, f.Pass(context.Background()))
	ms.assertExpectations(t)
	ms.deliveries.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestFanoutSkipsRecordWithDeletedGroup(t *testing.T) {
	ms := newMockStores()
	f := newTestFanout(ms)

	ms.records.On("ListReadyUndelivered", mock.Anything).
		Return([]model.BackupRecord{readyRecord(2, "gone")}, nil)
	ms.groups.On("GetByID", mock.Anything, "gone").Return(nil, ErrNotFound)
	ms.records.On("MarkDeliveryRun", mock.Anything, int64(2), model.DeliveryRunSkipped).Return(nil)

	require.NoError(t, f.Pass(context.Background()))
	ms.assertExpectations(t)
}

func TestFanoutClosesRunDespiteUpsertFailure(t *testing.T) {
	ms := newMockStores()
	f := newTestFanout(ms)

	group := testGroup("g1")
	group.Delivery = &model.DeliveryConfig{
		Dropbox: &model.DropboxConfig{Enabled: true, AccessToken: "tok"},
	}

	ms.records.On("ListReadyUndelivered", mock.Anything).
		Return([]model.BackupRecord{readyRecord(1, "g1")}, nil)
	ms.groups.On("GetByID", mock.Anything, "g1").Return(group, nil)
	ms.deliveries.On("Upsert", mock.Anything, mock.Anything).Return(assert.AnError)

	// The failed channel is logged, not retried; replaying the fan-out
	// would race deliveries that already landed.
	ms.records.On("MarkDeliveryRun", mock.Anything, int64(1), model.DeliveryRunSuccess).Return(nil)

	require.NoError(t, f.Pass(context.Background()))
	ms.assertExpectations(t)
}

// ---------- insert-only delivery fixture ----------

// fakeDeliveryRepo keeps deliveries in memory with the persistence
// layer's conflict handling: an upsert of an existing identity is a
// no-op.
type fakeDeliveryRepo struct {
	mu         sync.Mutex
	deliveries map[string]model.BackupRecordDelivery
	failNext   map[string]bool
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{
		deliveries: make(map[string]model.BackupRecordDelivery),
		failNext:   make(map[string]bool),
	}
}

func (f *fakeDeliveryRepo) Upsert(ctx context.Context, d *model.BackupRecordDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext[d.Channel] {
		delete(f.failNext, d.Channel)
		return assert.AnError
	}
	if _, exists := f.deliveries[d.ID]; exists {
		return nil
	}
	f.deliveries[d.ID] = *d
	return nil
}

func (f *fakeDeliveryRepo) UpdateStatusFeed(ctx context.Context, id string, status, message string, elapsed time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.deliveries[id]
	d.Status = status
	f.deliveries[id] = d
	return nil
}

func (f *fakeDeliveryRepo) get(id string) model.BackupRecordDelivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deliveries[id]
}

func (f *fakeDeliveryRepo) ListByStatus(ctx context.Context, status string) ([]model.BackupRecordDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.BackupRecordDelivery
	for _, d := range f.deliveries {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDeliveryRepo) ListByRecord(ctx context.Context, recordID int64) ([]model.BackupRecordDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.BackupRecordDelivery
	for _, d := range f.deliveries {
		if d.RecordID == recordID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDeliveryRepo) ListNonResponsive(ctx context.Context, statuses []string, olderThan time.Duration) ([]string, error) {
	return nil, nil
}

func (f *fakeDeliveryRepo) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.deliveries, id)
	return nil
}

func TestFanoutRetryCannotRewindLandedDelivery(t *testing.T) {
	ms := newMockStores()
	deliveries := newFakeDeliveryRepo()
	deliveries.failNext[model.ChannelFTP] = true
	stores := ms.stores()
	stores.Deliveries = deliveries
	f := NewFanoutScheduler(testLogger(), stores, testMetrics())

	group := testGroup("g1")
	group.Delivery = &model.DeliveryConfig{
		FTP:     &model.FTPConfig{Enabled: true, Host: "ftp.internal", Port: 21, Username: "u"},
		Dropbox: &model.DropboxConfig{Enabled: true, AccessToken: "tok"},
	}

	ms.records.On("ListReadyUndelivered", mock.Anything).
		Return([]model.BackupRecord{readyRecord(1, "g1")}, nil)
	ms.groups.On("GetByID", mock.Anything, "g1").Return(group, nil)

	// Closing the run fails on the first pass, so the record is picked up
	// again and the whole fan-out is replayed.
	ms.records.On("MarkDeliveryRun", mock.Anything, int64(1), model.DeliveryRunSuccess).
		Return(assert.AnError).Once()
	ms.records.On("MarkDeliveryRun", mock.Anything, int64(1), model.DeliveryRunSuccess).
		Return(nil).Once()

	require.NoError(t, f.Pass(context.Background()))

	// The dropbox delivery completes before the replay.
	dropboxID := model.DeliveryID(1, "g1", model.ChannelDropbox)
	require.NoError(t, deliveries.UpdateStatusFeed(context.Background(), dropboxID, model.StatusReady, "uploaded", time.Second))

	require.NoError(t, f.Pass(context.Background()))

	// The replay enqueues the channel that failed and leaves the landed
	// delivery alone.
	assert.Equal(t, model.StatusReady, deliveries.get(dropboxID).Status)
	assert.Equal(t, model.StatusQueued, deliveries.get(model.DeliveryID(1, "g1", model.ChannelFTP)).Status)
	ms.assertExpectations(t)
}
