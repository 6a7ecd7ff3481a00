package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/skilsnap/backend/internal/audit"
	"github.com/skilsnap/backend/internal/config"
	"github.com/skilsnap/backend/internal/feed"
	"github.com/skilsnap/backend/internal/models"
)

var (
	ErrVideoNotFound     = errors.New("video not found")
	ErrProfileNotFound   = errors.New("profile not found")
	ErrTipConflict       = errors.New("concurrent update conflict")
	ErrInsufficientCoins = errors.New("insufficient V-Coin balance")

	errStaleVersion = errors.New("optimistic lock failed")
)

// CoinLedgerService couples V-Coin movements with their counters so the two
// writes commit together or not at all. A tip increments a video's tip
// counter and credits the creator's balance; a hire transfer moves the lead
// cost between two profiles.
type CoinLedgerService struct {
	db            *sql.DB
	hub           *feed.Hub
	audit         *audit.Logger
	tipCredit     int64
	retryAttempts int
}

func NewCoinLedgerService(db *sql.DB, hub *feed.Hub, cfg *config.AppConfig) *CoinLedgerService {
	return &CoinLedgerService{
		db:            db,
		hub:           hub,
		audit:         audit.NewLogger(),
		tipCredit:     cfg.TipCreditAmount,
		retryAttempts: cfg.TipRetryAttempts,
	}
}

// TipCredit returns the fixed coin amount credited per tip.
func (s *CoinLedgerService) TipCredit() int64 {
	return s.tipCredit
}

// TipVideo atomically increments the video's tip counter and credits the
// creator's coin balance. Write conflicts with concurrent tips are retried
// internally; after the retry budget is spent the failure surfaces as
// ErrTipConflict.
func (s *CoinLedgerService) TipVideo(videoID, creatorID, tipperID string) error {
	referenceID := uuid.New().String()

	var lastErr error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		err := s.tipOnce(referenceID, videoID, creatorID, tipperID)
		if err == nil {
			s.audit.LogTip(referenceID, videoID, creatorID, tipperID, s.tipCredit, "SUCCESS")
			if s.hub != nil {
				s.hub.Publish(feed.TopicFeed, feed.KindVideoUpdated, videoID)
				s.hub.Publish(feed.ProfileTopic(creatorID), feed.KindProfileUpdated, creatorID)
			}
			return nil
		}
		if !isRetryableConflict(err) {
			s.audit.LogError(referenceID, tipperID, err)
			return err
		}
		lastErr = err
	}

	s.audit.LogError(referenceID, tipperID, lastErr)
	return fmt.Errorf("%w after %d attempts: %v", ErrTipConflict, s.retryAttempts, lastErr)
}

func (s *CoinLedgerService) tipOnce(referenceID, videoID, creatorID, tipperID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Lock order is fixed: video row first, then profile row.
	video, err := s.lockVideo(tx, videoID)
	if err != nil {
		return err
	}

	creator, err := s.lockProfile(tx, creatorID)
	if err != nil {
		return err
	}

	if err := s.bumpVideoTips(tx, video); err != nil {
		return err
	}

	if err := s.creditProfile(tx, creator, s.tipCredit); err != nil {
		return err
	}

	if err := s.createLedgerEntry(tx, referenceID, models.EntryTypeTipCredit, videoID, creator.UserID, s.tipCredit, creator.VCoins+s.tipCredit); err != nil {
		return err
	}

	return tx.Commit()
}

// HireTransfer moves the quoted lead cost from the requester to the creator
// when a hire request is accepted. Both balance updates and the paired
// ledger entries commit as one unit.
func (s *CoinLedgerService) HireTransfer(referenceID, requesterID, creatorID string, amount int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.HireTransferTx(tx, referenceID, requesterID, creatorID, amount); err != nil {
		s.audit.LogError(referenceID, requesterID, err)
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.HireTransferCommitted(referenceID, requesterID, creatorID, amount)
	return nil
}

// HireTransferCommitted emits the audit line and both profile events for a
// transfer whose enclosing transaction has already committed. Callers that
// own the transaction (HireTransferTx) must invoke this after a successful
// commit, never before.
func (s *CoinLedgerService) HireTransferCommitted(referenceID, requesterID, creatorID string, amount int64) {
	s.audit.LogTransfer(referenceID, requesterID, creatorID, amount, "SUCCESS")
	if s.hub != nil {
		s.hub.Publish(feed.ProfileTopic(requesterID), feed.KindProfileUpdated, requesterID)
		s.hub.Publish(feed.ProfileTopic(creatorID), feed.KindProfileUpdated, creatorID)
	}
}

// HireTransferTx runs the transfer inside a caller-owned transaction so the
// hire request status flip commits together with the balance movement.
func (s *CoinLedgerService) HireTransferTx(tx *sql.Tx, referenceID, requesterID, creatorID string, amount int64) error {
	// Lock profiles in consistent order to prevent deadlocks.
	firstLock, secondLock := requesterID, creatorID
	if requesterID > creatorID {
		firstLock, secondLock = creatorID, requesterID
	}

	first, err := s.lockProfile(tx, firstLock)
	if err != nil {
		return err
	}

	second, err := s.lockProfile(tx, secondLock)
	if err != nil {
		return err
	}

	requester, creator := first, second
	if firstLock != requesterID {
		requester, creator = second, first
	}

	if requester.VCoins < amount {
		return ErrInsufficientCoins
	}

	if err := s.creditProfile(tx, requester, -amount); err != nil {
		return err
	}

	if err := s.creditProfile(tx, creator, amount); err != nil {
		return err
	}

	if err := s.createLedgerEntry(tx, referenceID, models.EntryTypeHireDebit, "", requester.UserID, -amount, requester.VCoins-amount); err != nil {
		return err
	}

	return s.createLedgerEntry(tx, referenceID, models.EntryTypeHireCredit, "", creator.UserID, amount, creator.VCoins+amount)
}

func (s *CoinLedgerService) lockVideo(tx *sql.Tx, videoID string) (*models.Video, error) {
	var video models.Video
	err := tx.QueryRow(`
		SELECT id, user_id, tips, version, updated_at
		FROM videos
		WHERE id = $1
		FOR UPDATE`, videoID).Scan(&video.ID, &video.UserID, &video.Tips, &video.Version, &video.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, err
	}
	return &video, nil
}

func (s *CoinLedgerService) lockProfile(tx *sql.Tx, userID string) (*models.Profile, error) {
	var profile models.Profile
	err := tx.QueryRow(`
		SELECT user_id, v_coins, version, updated_at
		FROM profiles
		WHERE user_id = $1
		FOR UPDATE`, userID).Scan(&profile.UserID, &profile.VCoins, &profile.Version, &profile.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *CoinLedgerService) bumpVideoTips(tx *sql.Tx, video *models.Video) error {
	result, err := tx.Exec(`
		UPDATE videos
		SET tips = tips + 1, version = version + 1, updated_at = $1
		WHERE id = $2 AND version = $3`,
		time.Now(), video.ID, video.Version)

	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w for video %s", errStaleVersion, video.ID)
	}

	return nil
}

func (s *CoinLedgerService) creditProfile(tx *sql.Tx, profile *models.Profile, amount int64) error {
	result, err := tx.Exec(`
		UPDATE profiles
		SET v_coins = v_coins + $1, version = version + 1, updated_at = $2
		WHERE user_id = $3 AND version = $4`,
		amount, time.Now(), profile.UserID, profile.Version)

	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w for profile %s", errStaleVersion, profile.UserID)
	}

	return nil
}

func (s *CoinLedgerService) createLedgerEntry(tx *sql.Tx, referenceID, entryType, videoID, userID string, amount, balance int64) error {
	var videoRef sql.NullString
	if videoID != "" {
		videoRef = sql.NullString{String: videoID, Valid: true}
	}

	_, err := tx.Exec(`
		INSERT INTO ledger_entries (reference_id, entry_type, video_id, user_id, amount, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		referenceID, entryType, videoRef, userID, amount, balance, time.Now())
	return err
}

// isRetryableConflict reports whether the store signalled a transient write
// conflict: a serialization failure, a deadlock, or a stale version observed
// by the CAS update.
func isRetryableConflict(err error) bool {
	if errors.Is(err, errStaleVersion) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
