package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/skilsnap/backend/internal/config"
	"github.com/skilsnap/backend/internal/feed"
	"github.com/skilsnap/backend/internal/models"
)

type VideoService struct {
	db        *sql.DB
	hub       *feed.Hub
	ledger    *CoinLedgerService
	validator *ValidationHelper
	cfg       *config.AppConfig
}

func NewVideoService(db *sql.DB, hub *feed.Hub, ledger *CoinLedgerService, cfg *config.AppConfig) *VideoService {
	return &VideoService{
		db:        db,
		hub:       hub,
		ledger:    ledger,
		validator: NewValidationHelper(),
		cfg:       cfg,
	}
}

// CreateVideo handles video upload
// @Summary Create a new video
// @Description Publish a skill tutorial video to the catalog
// @Tags videos
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param video body models.CreateVideoRequest true "Video data"
// @Success 201 {object} models.Video
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /videos [post]
func (vs *VideoService) CreateVideo(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req models.CreateVideoRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := vs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	video, err := vs.insertVideo(userID, &req)
	if err != nil {
		log.Printf("[CATALOG] Failed to create video for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to create video", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[CATALOG] Video created: %s (user: %s, skill: %s)", video.ID, userID, video.SkillTag)
	if vs.hub != nil {
		vs.hub.Publish(feed.TopicFeed, feed.KindVideoCreated, video.ID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(video)
}

// GetVideo retrieves a video by id
// @Summary Get video by ID
// @Tags videos
// @Produce json
// @Param videoId path string true "Video ID"
// @Success 200 {object} models.Video
// @Failure 404 {object} ErrorResponse
// @Router /videos/{videoId} [get]
func (vs *VideoService) GetVideo(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoId")

	video, err := vs.fetchVideo(videoID)
	if err != nil {
		if errors.Is(err, ErrVideoNotFound) {
			SendErrorResponse(w, "Video not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch video", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(video)
}

// GetFeed serves the recent-first feed window once
// @Summary Get the video feed
// @Description Up to limit most recent videos, newest first
// @Tags feed
// @Produce json
// @Param limit query int false "Window size (default 50, max 100)"
// @Success 200 {object} object{videos=[]models.Video,count=int}
// @Router /feed [get]
func (vs *VideoService) GetFeed(w http.ResponseWriter, r *http.Request) {
	limit := vs.ParseFeedLimit(r.URL.Query().Get("limit"))

	videos, err := vs.FetchFeedWindow(limit)
	if err != nil {
		log.Printf("[CATALOG] Failed to fetch feed: %v", err)
		SendErrorResponse(w, "Failed to fetch feed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"videos": videos,
		"count":  len(videos),
	})
}

// LikeVideo increments a video's like counter, once per user
// @Summary Like a video
// @Description Idempotent per user; repeat likes are acknowledged without effect
// @Tags videos
// @Produce json
// @Security BearerAuth
// @Param videoId path string true "Video ID"
// @Success 200 {object} object{liked=bool,alreadyLiked=bool,likes=int}
// @Failure 404 {object} ErrorResponse
// @Router /videos/{videoId}/like [post]
func (vs *VideoService) LikeVideo(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	videoID := chi.URLParam(r, "videoId")

	likes, alreadyLiked, err := vs.likeVideo(videoID, userID)
	if err != nil {
		if errors.Is(err, ErrVideoNotFound) {
			SendErrorResponse(w, "Video not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[CATALOG] Like failed for video %s by user %s: %v", videoID, userID, err)
			SendErrorResponse(w, "Failed to like video", http.StatusInternalServerError, nil)
		}
		return
	}

	if !alreadyLiked {
		log.Printf("[CATALOG] Video %s liked by user %s (total: %d)", videoID, userID, likes)
		if vs.hub != nil {
			vs.hub.Publish(feed.TopicFeed, feed.KindVideoUpdated, videoID)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"liked":        true,
		"alreadyLiked": alreadyLiked,
		"likes":        likes,
	})
}

// TipVideo tips a video's creator with V-Coins
// @Summary Tip a video
// @Description Atomically increments the tip counter and credits the creator's balance
// @Tags videos
// @Produce json
// @Security BearerAuth
// @Param videoId path string true "Video ID"
// @Success 200 {object} object{tipped=bool,creditAmount=int64}
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /videos/{videoId}/tip [post]
func (vs *VideoService) TipVideo(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	videoID := chi.URLParam(r, "videoId")

	video, err := vs.fetchVideo(videoID)
	if err != nil {
		if errors.Is(err, ErrVideoNotFound) {
			SendErrorResponse(w, "Video not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch video", http.StatusInternalServerError, nil)
		}
		return
	}

	err = vs.ledger.TipVideo(videoID, video.UserID, userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrVideoNotFound):
			SendErrorResponse(w, "Video not found", http.StatusNotFound, nil)
		case errors.Is(err, ErrProfileNotFound):
			SendErrorResponse(w, "Creator profile not found", http.StatusNotFound, nil)
		case errors.Is(err, ErrTipConflict):
			SendErrorResponse(w, "Tip conflicted with concurrent updates, try again", http.StatusConflict, nil)
		default:
			log.Printf("[CATALOG] Tip failed for video %s by user %s: %v", videoID, userID, err)
			SendErrorResponse(w, "Failed to process tip", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"tipped":       true,
		"creditAmount": vs.ledger.TipCredit(),
	})
}

// ParseFeedLimit clamps a raw limit parameter to the configured window bounds.
func (vs *VideoService) ParseFeedLimit(raw string) int {
	limit := vs.cfg.FeedDefaultLimit
	if raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > vs.cfg.FeedMaxLimit {
		limit = vs.cfg.FeedMaxLimit
	}
	return limit
}

// FetchFeedWindow returns up to limit videos, most recent first. Equal
// creation times break toward the larger id so the window is stable.
func (vs *VideoService) FetchFeedWindow(limit int) ([]models.Video, error) {
	rows, err := vs.db.Query(`
		SELECT id, user_id, title, skill_tag, video_url,
		       COALESCE(thumbnail_url, '') as thumbnail_url,
		       COALESCE(creator_name, '') as creator_name,
		       likes, tips, version, created_at, updated_at
		FROM videos
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	videos := []models.Video{}
	for rows.Next() {
		var v models.Video
		err := rows.Scan(
			&v.ID, &v.UserID, &v.Title, &v.SkillTag, &v.VideoURL,
			&v.ThumbnailURL, &v.CreatorName, &v.Likes, &v.Tips, &v.Version,
			&v.CreatedAt, &v.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}

	return videos, rows.Err()
}

// Database helper functions

func (vs *VideoService) insertVideo(userID string, req *models.CreateVideoRequest) (*models.Video, error) {
	now := time.Now()
	video := &models.Video{
		ID:           uuid.New().String(),
		UserID:       userID,
		Title:        req.Title,
		SkillTag:     req.SkillTag,
		VideoURL:     req.VideoURL,
		ThumbnailURL: req.ThumbnailURL,
		Likes:        0,
		Tips:         0,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := vs.db.Exec(`
		INSERT INTO videos (id, user_id, title, skill_tag, video_url, thumbnail_url, likes, tips, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 1, $7, $8)`,
		video.ID, video.UserID, video.Title, video.SkillTag, video.VideoURL,
		video.ThumbnailURL, video.CreatedAt, video.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return video, nil
}

func (vs *VideoService) fetchVideo(videoID string) (*models.Video, error) {
	var v models.Video
	err := vs.db.QueryRow(`
		SELECT id, user_id, title, skill_tag, video_url,
		       COALESCE(thumbnail_url, '') as thumbnail_url,
		       COALESCE(creator_name, '') as creator_name,
		       likes, tips, version, created_at, updated_at
		FROM videos
		WHERE id = $1`, videoID).Scan(
		&v.ID, &v.UserID, &v.Title, &v.SkillTag, &v.VideoURL,
		&v.ThumbnailURL, &v.CreatorName, &v.Likes, &v.Tips, &v.Version,
		&v.CreatedAt, &v.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// likeVideo records the (user, video) like and bumps the counter when the
// like is new. The dedup record and the counter update share one transaction.
func (vs *VideoService) likeVideo(videoID, userID string) (int, bool, error) {
	tx, err := vs.db.Begin()
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	var likes int
	err = tx.QueryRow(`
		SELECT likes FROM videos
		WHERE id = $1
		FOR UPDATE`, videoID).Scan(&likes)
	if err == sql.ErrNoRows {
		return 0, false, ErrVideoNotFound
	}
	if err != nil {
		return 0, false, err
	}

	result, err := tx.Exec(`
		INSERT INTO video_likes (video_id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (video_id, user_id) DO NOTHING`,
		videoID, userID, time.Now())
	if err != nil {
		return 0, false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, false, err
	}

	if rowsAffected == 0 {
		// Already liked; nothing to change.
		return likes, true, tx.Commit()
	}

	err = tx.QueryRow(`
		UPDATE videos
		SET likes = likes + 1, version = version + 1, updated_at = $1
		WHERE id = $2
		RETURNING likes`,
		time.Now(), videoID).Scan(&likes)
	if err != nil {
		return 0, false, err
	}

	return likes, false, tx.Commit()
}
