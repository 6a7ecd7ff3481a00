package services

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/skilsnap/backend/internal/config"
	"github.com/skilsnap/backend/internal/feed"
)

func newLedgerService(t *testing.T) (*CoinLedgerService, sqlmock.Sqlmock, *feed.Hub) {
	t.Helper()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hub := feed.NewHub()
	cfg := &config.AppConfig{
		TipCreditAmount:  10,
		HireLeadCost:     50,
		TipRetryAttempts: 3,
	}
	return NewCoinLedgerService(db, hub, cfg), mock, hub
}

func expectVideoLock(mock sqlmock.Sqlmock, videoID, creatorID string, tips, version int) {
	mock.ExpectQuery("SELECT id, user_id, tips, version, updated_at").
		WithArgs(videoID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "tips", "version", "updated_at"}).
			AddRow(videoID, creatorID, tips, version, time.Now()))
}

func expectProfileLock(mock sqlmock.Sqlmock, userID string, coins int64, version int) {
	mock.ExpectQuery("SELECT user_id, v_coins, version, updated_at").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "v_coins", "version", "updated_at"}).
			AddRow(userID, coins, version, time.Now()))
}

func TestCoinLedgerService_TipVideo(t *testing.T) {
	const (
		videoID   = "9f1c2d3e-0000-4000-8000-000000000001"
		creatorID = "42"
		tipperID  = "77"
	)

	t.Run("successful tip commits counter and credit together", func(t *testing.T) {
		service, mock, hub := newLedgerService(t)

		feedEvents, cancel := hub.Subscribe(feed.TopicFeed)
		defer cancel()

		mock.ExpectBegin()
		expectVideoLock(mock, videoID, creatorID, 3, 1)
		expectProfileLock(mock, creatorID, 100, 2)
		mock.ExpectExec("UPDATE videos").
			WithArgs(sqlmock.AnyArg(), videoID, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE profiles").
			WithArgs(int64(10), sqlmock.AnyArg(), creatorID, 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), "TIP_CREDIT", sqlmock.AnyArg(), creatorID, int64(10), int64(110), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := service.TipVideo(videoID, creatorID, tipperID)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())

		select {
		case event := <-feedEvents:
			assert.Equal(t, feed.KindVideoUpdated, event.Kind)
			assert.Equal(t, videoID, event.DocID)
		case <-time.After(time.Second):
			t.Fatal("expected a feed event after commit")
		}
	})

	t.Run("missing video rolls back without crediting", func(t *testing.T) {
		service, mock, _ := newLedgerService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, user_id, tips, version, updated_at").
			WithArgs(videoID).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := service.TipVideo(videoID, creatorID, tipperID)
		assert.ErrorIs(t, err, ErrVideoNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing profile rolls back the counter bump", func(t *testing.T) {
		service, mock, _ := newLedgerService(t)

		mock.ExpectBegin()
		expectVideoLock(mock, videoID, creatorID, 3, 1)
		mock.ExpectQuery("SELECT user_id, v_coins, version, updated_at").
			WithArgs(creatorID).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := service.TipVideo(videoID, creatorID, tipperID)
		assert.ErrorIs(t, err, ErrProfileNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version retries and succeeds", func(t *testing.T) {
		service, mock, _ := newLedgerService(t)

		// First attempt loses the version race.
		mock.ExpectBegin()
		expectVideoLock(mock, videoID, creatorID, 3, 1)
		expectProfileLock(mock, creatorID, 100, 2)
		mock.ExpectExec("UPDATE videos").
			WithArgs(sqlmock.AnyArg(), videoID, 1).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		// Second attempt sees the new version and wins.
		mock.ExpectBegin()
		expectVideoLock(mock, videoID, creatorID, 4, 2)
		expectProfileLock(mock, creatorID, 110, 3)
		mock.ExpectExec("UPDATE videos").
			WithArgs(sqlmock.AnyArg(), videoID, 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE profiles").
			WithArgs(int64(10), sqlmock.AnyArg(), creatorID, 3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := service.TipVideo(videoID, creatorID, tipperID)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict surfaces after the retry budget", func(t *testing.T) {
		service, mock, _ := newLedgerService(t)

		for i := 0; i < 3; i++ {
			mock.ExpectBegin()
			expectVideoLock(mock, videoID, creatorID, 3, 1)
			expectProfileLock(mock, creatorID, 100, 2)
			mock.ExpectExec("UPDATE videos").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectRollback()
		}

		err := service.TipVideo(videoID, creatorID, tipperID)
		assert.ErrorIs(t, err, ErrTipConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCoinLedgerService_HireTransfer(t *testing.T) {
	const (
		requesterID = "11"
		creatorID   = "42"
		referenceID = "ref-1"
	)

	t.Run("moves the lead cost and writes paired entries", func(t *testing.T) {
		service, mock, _ := newLedgerService(t)

		mock.ExpectBegin()
		// Lexicographic lock order: "11" before "42".
		expectProfileLock(mock, requesterID, 200, 1)
		expectProfileLock(mock, creatorID, 30, 5)
		mock.ExpectExec("UPDATE profiles").
			WithArgs(int64(-50), sqlmock.AnyArg(), requesterID, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE profiles").
			WithArgs(int64(50), sqlmock.AnyArg(), creatorID, 5).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(referenceID, "HIRE_DEBIT", sqlmock.AnyArg(), requesterID, int64(-50), int64(150), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(referenceID, "HIRE_CREDIT", sqlmock.AnyArg(), creatorID, int64(50), int64(80), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectCommit()

		err := service.HireTransfer(referenceID, requesterID, creatorID, 50)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance aborts before any write", func(t *testing.T) {
		service, mock, _ := newLedgerService(t)

		mock.ExpectBegin()
		expectProfileLock(mock, requesterID, 20, 1)
		expectProfileLock(mock, creatorID, 30, 5)
		mock.ExpectRollback()

		err := service.HireTransfer(referenceID, requesterID, creatorID, 50)
		assert.ErrorIs(t, err, ErrInsufficientCoins)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIsRetryableConflict(t *testing.T) {
	assert.True(t, isRetryableConflict(errStaleVersion))
	assert.False(t, isRetryableConflict(errors.New("connection refused")))
	assert.False(t, isRetryableConflict(ErrVideoNotFound))
}
