package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skilsnap/backend/internal/feed"
	"github.com/skilsnap/backend/internal/models"
)

var ErrProfileExists = errors.New("profile already exists")

// ProfileService owns the one-profile-per-user documents: lazy creation on
// first authenticated access, self-edits, and reads. Coin balances are only
// ever touched by the ledger.
type ProfileService struct {
	db        *sql.DB
	hub       *feed.Hub
	validator *ValidationHelper
}

func NewProfileService(db *sql.DB, hub *feed.Hub) *ProfileService {
	return &ProfileService{
		db:        db,
		hub:       hub,
		validator: NewValidationHelper(),
	}
}

// GetMyProfile returns the caller's profile, creating it on first access
// @Summary Get own profile
// @Description Returns the authenticated user's profile, creating an empty one if absent
// @Tags profiles
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Profile
// @Failure 401 {object} ErrorResponse
// @Router /profiles/me [get]
func (ps *ProfileService) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	profile, err := ps.fetchProfile(userID)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		log.Printf("[PROFILE] Failed to fetch profile %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch profile", http.StatusInternalServerError, nil)
		return
	}

	if profile == nil {
		// Absence is expected pre-onboarding; first access creates the document.
		profile, err = ps.createProfile(userID, &models.ProfileUpdateRequest{})
		if err != nil && !errors.Is(err, ErrProfileExists) {
			log.Printf("[PROFILE] Lazy creation failed for %s: %v", userID, err)
			SendErrorResponse(w, "Failed to create profile", http.StatusInternalServerError, nil)
			return
		}
		if errors.Is(err, ErrProfileExists) {
			// Lost a creation race; the winner's document is authoritative.
			profile, err = ps.fetchProfile(userID)
			if err != nil {
				SendErrorResponse(w, "Failed to fetch profile", http.StatusInternalServerError, nil)
				return
			}
		} else {
			log.Printf("[PROFILE] Profile created lazily for user %s", userID)
			if ps.hub != nil {
				ps.hub.Publish(feed.ProfileTopic(userID), feed.KindProfileCreated, userID)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profile)
}

// CreateProfile explicitly creates the caller's profile
// @Summary Create profile
// @Description Creates the authenticated user's profile with a zero coin balance
// @Tags profiles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param profile body models.ProfileUpdateRequest true "Initial profile fields"
// @Success 201 {object} models.Profile
// @Failure 409 {object} ErrorResponse
// @Router /profiles [post]
func (ps *ProfileService) CreateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req models.ProfileUpdateRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ps.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	profile, err := ps.createProfile(userID, &req)
	if err != nil {
		if errors.Is(err, ErrProfileExists) {
			SendErrorResponse(w, "Profile already exists", http.StatusConflict, nil)
			return
		}
		log.Printf("[PROFILE] Creation failed for %s: %v", userID, err)
		SendErrorResponse(w, "Failed to create profile", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[PROFILE] Profile created for user %s (guru: %t)", userID, profile.IsGuru)
	if ps.hub != nil {
		ps.hub.Publish(feed.ProfileTopic(userID), feed.KindProfileCreated, userID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(profile)
}

// GetProfile retrieves a profile by user id
// @Summary Get profile by user ID
// @Tags profiles
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} models.Profile
// @Failure 404 {object} ErrorResponse
// @Router /profiles/{userId} [get]
func (ps *ProfileService) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	profile, err := ps.fetchProfile(userID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			SendErrorResponse(w, "Profile not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch profile", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profile)
}

// UpdateProfile self-edits name/skill/location/guru flag
// @Summary Update own profile
// @Description Updates identity fields; the coin balance is not writable here
// @Tags profiles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param profile body models.ProfileUpdateRequest true "Profile fields"
// @Success 200 {object} models.Profile
// @Failure 404 {object} ErrorResponse
// @Router /profiles/me [put]
func (ps *ProfileService) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req models.ProfileUpdateRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ps.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	profile, err := ps.updateProfile(userID, &req)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			SendErrorResponse(w, "Profile not found", http.StatusNotFound, nil)
		} else if errors.Is(err, ErrTipConflict) {
			SendErrorResponse(w, "Profile was modified concurrently, retry", http.StatusConflict, nil)
		} else {
			log.Printf("[PROFILE] Update failed for %s: %v", userID, err)
			SendErrorResponse(w, "Failed to update profile", http.StatusInternalServerError, nil)
		}
		return
	}

	log.Printf("[PROFILE] Profile updated for user %s", userID)
	if ps.hub != nil {
		ps.hub.Publish(feed.ProfileTopic(userID), feed.KindProfileUpdated, userID)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profile)
}

// FetchProfile returns the profile document, or ErrProfileNotFound. Used by
// the stream handler for initial snapshots and resyncs.
func (ps *ProfileService) FetchProfile(userID string) (*models.Profile, error) {
	return ps.fetchProfile(userID)
}

// Database helper functions

func (ps *ProfileService) createProfile(userID string, req *models.ProfileUpdateRequest) (*models.Profile, error) {
	now := time.Now()
	profile := &models.Profile{
		UserID:    userID,
		Name:      req.Name,
		SkillTag:  req.SkillTag,
		Location:  req.Location,
		VCoins:    0,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.IsGuru != nil {
		profile.IsGuru = *req.IsGuru
	}

	// Guarded create: the first writer wins, a racing second create conflicts
	// instead of silently overwriting.
	result, err := ps.db.Exec(`
		INSERT INTO profiles (user_id, name, skill_tag, location, v_coins, is_guru, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, 1, $6, $7)
		ON CONFLICT (user_id) DO NOTHING`,
		profile.UserID, profile.Name, profile.SkillTag, profile.Location,
		profile.IsGuru, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, ErrProfileExists
	}

	return profile, nil
}

func (ps *ProfileService) fetchProfile(userID string) (*models.Profile, error) {
	var p models.Profile
	err := ps.db.QueryRow(`
		SELECT user_id, name, skill_tag, location, v_coins, is_guru, version, created_at, updated_at
		FROM profiles
		WHERE user_id = $1`, userID).Scan(
		&p.UserID, &p.Name, &p.SkillTag, &p.Location, &p.VCoins, &p.IsGuru,
		&p.Version, &p.CreatedAt, &p.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const profileUpdateRetries = 3

// updateProfile merges the request into the current document under the
// version CAS, retrying when a concurrent writer (another edit, a tip
// credit) bumps the version first.
func (ps *ProfileService) updateProfile(userID string, req *models.ProfileUpdateRequest) (*models.Profile, error) {
	var lastErr error
	for attempt := 0; attempt < profileUpdateRetries; attempt++ {
		profile, err := ps.updateProfileOnce(userID, req)
		if err == nil {
			return profile, nil
		}
		if !isRetryableConflict(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrTipConflict, profileUpdateRetries, lastErr)
}

func (ps *ProfileService) updateProfileOnce(userID string, req *models.ProfileUpdateRequest) (*models.Profile, error) {
	current, err := ps.fetchProfile(userID)
	if err != nil {
		return nil, err
	}

	if req.Name != "" {
		current.Name = req.Name
	}
	if req.SkillTag != "" {
		current.SkillTag = req.SkillTag
	}
	if req.Location != "" {
		current.Location = req.Location
	}
	if req.IsGuru != nil {
		current.IsGuru = *req.IsGuru
	}
	current.UpdatedAt = time.Now()

	result, err := ps.db.Exec(`
		UPDATE profiles
		SET name = $1, skill_tag = $2, location = $3, is_guru = $4, version = version + 1, updated_at = $5
		WHERE user_id = $6 AND version = $7`,
		current.Name, current.SkillTag, current.Location, current.IsGuru,
		current.UpdatedAt, userID, current.Version)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		// A lost race, or the row vanished. The retry's re-fetch tells the
		// two apart.
		return nil, fmt.Errorf("%w for profile %s", errStaleVersion, userID)
	}

	current.Version++
	return current, nil
}
