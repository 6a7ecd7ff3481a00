package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/skilsnap/backend/internal/config"
	"github.com/skilsnap/backend/internal/models"
)

var ErrHireNotFound = errors.New("hire request not found")

// HireService manages hire leads between learners and creators. Creating a
// request only quotes the lead cost; the V-Coin transfer happens when the
// creator accepts, inside the same transaction as the status flip.
type HireService struct {
	db        *sql.DB
	ledger    *CoinLedgerService
	validator *validator.Validate
	cfg       *config.AppConfig
}

func NewHireService(db *sql.DB, ledger *CoinLedgerService, cfg *config.AppConfig) *HireService {
	return &HireService{
		db:        db,
		ledger:    ledger,
		validator: validator.New(),
		cfg:       cfg,
	}
}

// CreateHire submits a hire request to a creator
// @Summary Request to hire a creator
// @Description Submit a hire lead with contact details; the lead cost is quoted but not debited
// @Tags hire
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateHireRequest true "Hire request"
// @Success 201 {object} models.HireRequest
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /hire [post]
func (hs *HireService) CreateHire(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := r.Context().Value("userID").(string)
	if !ok || requesterID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req models.CreateHireRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := hs.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.CreatorID == requesterID {
		SendErrorResponse(w, "Cannot hire yourself", http.StatusBadRequest, nil)
		return
	}

	now := time.Now()
	hire := models.HireRequest{
		ID:           uuid.New().String(),
		VideoID:      req.VideoID,
		CreatorID:    req.CreatorID,
		RequesterID:  requesterID,
		ContactName:  req.ContactName,
		ContactPhone: req.ContactPhone,
		Message:      req.Message,
		LeadCost:     hs.cfg.HireLeadCost,
		Status:       models.HireStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	videoRef := sql.NullString{String: hire.VideoID, Valid: hire.VideoID != ""}
	_, err := hs.db.Exec(`INSERT INTO hire_requests
		(id, video_id, creator_id, requester_id, contact_name, contact_phone, message, lead_cost, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		hire.ID, videoRef, hire.CreatorID, hire.RequesterID, hire.ContactName,
		hire.ContactPhone, hire.Message, hire.LeadCost, hire.Status, hire.CreatedAt, hire.UpdatedAt)
	if err != nil {
		log.Printf("[HIRE] Failed to create hire request from %s to %s: %v", requesterID, req.CreatorID, err)
		SendErrorResponse(w, "Failed to create hire request", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[HIRE] Hire request %s created: %s -> %s (lead cost %d)", hire.ID, requesterID, req.CreatorID, hire.LeadCost)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(hire)
}

// ListIncoming serves hire requests addressed to the caller
// @Summary List incoming hire requests
// @Tags hire
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.HireRequest
// @Failure 401 {object} ErrorResponse
// @Router /hire/incoming [get]
func (hs *HireService) ListIncoming(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	hs.listByColumn(w, "creator_id", userID)
}

// ListOutgoing serves hire requests the caller has sent
// @Summary List outgoing hire requests
// @Tags hire
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.HireRequest
// @Failure 401 {object} ErrorResponse
// @Router /hire/outgoing [get]
func (hs *HireService) ListOutgoing(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	hs.listByColumn(w, "requester_id", userID)
}

func (hs *HireService) listByColumn(w http.ResponseWriter, column, userID string) {
	query := `SELECT id, COALESCE(video_id::text, ''), creator_id, requester_id, contact_name, contact_phone, message, lead_cost, status, created_at, updated_at
		FROM hire_requests WHERE ` + column + ` = $1 ORDER BY created_at DESC`

	rows, err := hs.db.Query(query, userID)
	if err != nil {
		log.Printf("[HIRE] Failed to list hire requests for %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch hire requests", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	requests := []models.HireRequest{}
	for rows.Next() {
		var h models.HireRequest
		if err := rows.Scan(&h.ID, &h.VideoID, &h.CreatorID, &h.RequesterID, &h.ContactName,
			&h.ContactPhone, &h.Message, &h.LeadCost, &h.Status, &h.CreatedAt, &h.UpdatedAt); err != nil {
			log.Printf("[HIRE] Failed to scan hire request: %v", err)
			SendErrorResponse(w, "Failed to fetch hire requests", http.StatusInternalServerError, nil)
			return
		}
		requests = append(requests, h)
	}
	if err := rows.Err(); err != nil {
		log.Printf("[HIRE] Row iteration failed: %v", err)
		SendErrorResponse(w, "Failed to fetch hire requests", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(requests)
}

// AcceptHire accepts a pending hire request and transfers the lead cost
// @Summary Accept a hire request
// @Description Accept a pending hire request; the lead cost moves from requester to creator atomically with the status change
// @Tags hire
// @Produce json
// @Security BearerAuth
// @Param id path string true "Hire request ID"
// @Success 200 {object} models.HireRequest
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /hire/{id}/accept [post]
func (hs *HireService) AcceptHire(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	hireID := chi.URLParam(r, "id")

	var hire *models.HireRequest
	var err error
	for attempt := 1; attempt <= hs.cfg.TipRetryAttempts; attempt++ {
		hire, err = hs.acceptOnce(hireID, userID)
		if err == nil || !isRetryableConflict(err) {
			break
		}
		log.Printf("[HIRE] Accept attempt %d for %s hit a conflict, retrying: %v", attempt, hireID, err)
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrHireNotFound):
			SendErrorResponse(w, "Hire request not found", http.StatusNotFound, nil)
		case errors.Is(err, ErrInsufficientCoins):
			// The request stays PENDING so it can be retried once the
			// requester tops up.
			SendErrorResponse(w, "Requester has insufficient V-Coins", http.StatusBadRequest, nil)
		case errors.Is(err, errHireNotPending):
			SendErrorResponse(w, "Hire request is no longer pending", http.StatusConflict, nil)
		default:
			log.Printf("[HIRE] Failed to accept hire request %s: %v", hireID, err)
			SendErrorResponse(w, "Failed to accept hire request", http.StatusInternalServerError, nil)
		}
		return
	}

	log.Printf("[HIRE] Hire request %s accepted by %s, %d V-Coins transferred", hireID, userID, hire.LeadCost)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hire)
}

var errHireNotPending = errors.New("hire request is not pending")

func (hs *HireService) acceptOnce(hireID, creatorID string) (*models.HireRequest, error) {
	tx, err := hs.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var hire models.HireRequest
	err = tx.QueryRow(`SELECT id, COALESCE(video_id::text, ''), creator_id, requester_id, contact_name, contact_phone, message, lead_cost, status, created_at, updated_at
		FROM hire_requests WHERE id = $1 AND creator_id = $2 FOR UPDATE`, hireID, creatorID).
		Scan(&hire.ID, &hire.VideoID, &hire.CreatorID, &hire.RequesterID, &hire.ContactName,
			&hire.ContactPhone, &hire.Message, &hire.LeadCost, &hire.Status, &hire.CreatedAt, &hire.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrHireNotFound
	}
	if err != nil {
		return nil, err
	}

	if hire.Status != models.HireStatusPending {
		return nil, errHireNotPending
	}

	referenceID := uuid.New().String()
	if err := hs.ledger.HireTransferTx(tx, referenceID, hire.RequesterID, hire.CreatorID, hire.LeadCost); err != nil {
		return nil, err
	}

	now := time.Now()
	if _, err := tx.Exec("UPDATE hire_requests SET status = $1, updated_at = $2 WHERE id = $3",
		models.HireStatusAccepted, now, hireID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	hs.ledger.HireTransferCommitted(referenceID, hire.RequesterID, hire.CreatorID, hire.LeadCost)

	hire.Status = models.HireStatusAccepted
	hire.UpdatedAt = now
	return &hire, nil
}

// DeclineHire declines a pending hire request
// @Summary Decline a hire request
// @Tags hire
// @Produce json
// @Security BearerAuth
// @Param id path string true "Hire request ID"
// @Success 200 {object} map[string]string
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /hire/{id}/decline [post]
func (hs *HireService) DeclineHire(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	hireID := chi.URLParam(r, "id")

	result, err := hs.db.Exec(`UPDATE hire_requests SET status = $1, updated_at = NOW()
		WHERE id = $2 AND creator_id = $3 AND status = $4`,
		models.HireStatusDeclined, hireID, userID, models.HireStatusPending)
	if err != nil {
		log.Printf("[HIRE] Failed to decline hire request %s: %v", hireID, err)
		SendErrorResponse(w, "Failed to decline hire request", http.StatusInternalServerError, nil)
		return
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		SendErrorResponse(w, "Hire request not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[HIRE] Hire request %s declined by %s", hireID, userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Hire request declined"})
}
