package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backhaul/internal/model"
)

func newTestSweeper(stores *mockStores, pool *Pool, inDepth bool) *ExpirySweeper {
	return NewExpirySweeper(testLogger(), stores.stores(), pool, 50, inDepth)
}

func TestSweeperRemovesExpiredRecordAndLocalFile(t *testing.T) {
	ms := newMockStores()
	pool := testPool()
	s := newTestSweeper(ms, pool, false)

	dump := filepath.Join(t.TempDir(), "dump.sql.zst")
	require.NoError(t, os.WriteFile(dump, []byte("data"), 0o600))

	ms.records.On("ListExpired", mock.Anything, mock.Anything, 50).
		Return([]model.BackupRecord{{ID: 1, GroupID: "g1", Path: dump}}, nil)
	ms.records.On("Remove", mock.Anything, int64(1)).Return(nil)

	require.NoError(t, s.Pass(context.Background()))
	assert.NoFileExists(t, dump)
	assert.Equal(t, 0, pool.Size())
	ms.deliveries.AssertNotCalled(t, "ListByRecord", mock.Anything, mock.Anything)
	ms.assertExpectations(t)
}

func TestSweeperMissingLocalFileIsNotFatal(t *testing.T) {
	ms := newMockStores()
	s := newTestSweeper(ms, testPool(), false)

	ms.records.On("ListExpired", mock.Anything, mock.Anything, 50).
		Return([]model.BackupRecord{{ID: 1, GroupID: "g1", Path: "/nonexistent/dump.sql"}}, nil)
	ms.records.On("Remove", mock.Anything, int64(1)).Return(nil)

	require.NoError(t, s.Pass(context.Background()))
	ms.assertExpectations(t)
}

func TestSweeperInDepthDeleteScrubsRemoteCopies(t *testing.T) {
	ms := newMockStores()
	pool := testPool()
	s := newTestSweeper(ms, pool, true)

	group := testGroup("g1")
	group.MaxConcurrentBots = 1
	group.Delivery = &model.DeliveryConfig{
		Dropbox: &model.DropboxConfig{Enabled: true, AccessToken: "tok"},
		FTP:     &model.FTPConfig{Enabled: true, Host: "ftp.internal", Port: 21, Username: "u"},
	}

	// The group's only slot is taken; retention must not care.
	pool.Add(idleBot("g1", backupKey(99)))

	record := model.BackupRecord{ID: 3, GroupID: "g1", Path: "/backups/g1/dump.sql.zst"}
	deliveries := []model.BackupRecordDelivery{
		// Scrubbed: delivered and the channel supports remote delete.
		{ID: model.DeliveryID(3, "g1", model.ChannelDropbox), RecordID: 3, Channel: model.ChannelDropbox, Status: model.StatusReady},
		// FTP has no remote delete.
		{ID: model.DeliveryID(3, "g1", model.ChannelFTP), RecordID: 3, Channel: model.ChannelFTP, Status: model.StatusReady},
		// Never delivered, nothing to scrub.
		{ID: model.DeliveryID(3, "g1", model.ChannelObjectStorage), RecordID: 3, Channel: model.ChannelObjectStorage, Status: model.StatusError},
	}

	ms.records.On("ListExpired", mock.Anything, mock.Anything, 50).
		Return([]model.BackupRecord{record}, nil)
	ms.deliveries.On("ListByRecord", mock.Anything, int64(3)).Return(deliveries, nil)
	ms.records.On("Remove", mock.Anything, int64(3)).Return(nil)
	ms.groups.On("GetByID", mock.Anything, "g1").Return(group, nil)

	require.NoError(t, s.Pass(context.Background()))

	// One delete bot for the Dropbox copy, on top of the pre-existing bot.
	assert.Equal(t, 2, pool.Size())
	ms.assertExpectations(t)
}

func TestSweeperInDepthDeleteWithDeletedGroupLeavesCopies(t *testing.T) {
	ms := newMockStores()
	pool := testPool()
	s := newTestSweeper(ms, pool, true)

	ms.records.On("ListExpired", mock.Anything, mock.Anything, 50).
		Return([]model.BackupRecord{{ID: 3, GroupID: "gone"}}, nil)
	ms.deliveries.On("ListByRecord", mock.Anything, int64(3)).
		Return([]model.BackupRecordDelivery{
			{ID: "d1", RecordID: 3, Channel: model.ChannelDropbox, Status: model.StatusReady},
		}, nil)
	ms.records.On("Remove", mock.Anything, int64(3)).Return(nil)
	ms.groups.On("GetByID", mock.Anything, "gone").Return(nil, ErrNotFound)

	require.NoError(t, s.Pass(context.Background()))
	assert.Equal(t, 0, pool.Size())
	ms.assertExpectations(t)
}

func TestSweeperRemoveFailureKeepsRecordAndFile(t *testing.T) {
	ms := newMockStores()
	s := newTestSweeper(ms, testPool(), false)

	dump := filepath.Join(t.TempDir(), "dump.sql")
	require.NoError(t, os.WriteFile(dump, []byte("data"), 0o600))

	ms.records.On("ListExpired", mock.Anything, mock.Anything, 50).
		Return([]model.BackupRecord{{ID: 1, GroupID: "g1", Path: dump}}, nil)
	ms.records.On("Remove", mock.Anything, int64(1)).Return(assert.AnError)

	require.NoError(t, s.Pass(context.Background()))

	// The store still owns the record, so the file stays for the retry.
	assert.FileExists(t, dump)
	ms.assertExpectations(t)
}
