package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/skilsnap/backend/internal/services"
)

type QRHandler struct {
	service   *services.QRService
	profiles  *services.ProfileService
	validator *services.ValidationHelper
}

func NewQRHandler(service *services.QRService, profiles *services.ProfileService) *QRHandler {
	return &QRHandler{
		service:   service,
		profiles:  profiles,
		validator: services.NewValidationHelper(),
	}
}

// GenerateQR generates a profile share QR code
// @Summary Generate profile share QR
// @Description Generate a short-lived QR code that links to the caller's profile
// @Tags QR
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{shareCode=string,qrImage=string}
// @Failure 401 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /qr/generate [post]
func (h *QRHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	shareCode, qrImage, err := h.service.GenerateShareCode(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrShareUnavailable) {
			services.SendErrorResponse(w, "Share codes temporarily unavailable", http.StatusServiceUnavailable, nil)
			return
		}
		services.SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":   true,
		"shareCode": shareCode,
		"qrImage":   qrImage,
	})
}

// ScanQR resolves a scanned share code to its profile
// @Summary Resolve a scanned share code
// @Description Resolve a scanned QR share code to the profile it points at
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{shareCode=string} true "Scanned share code"
// @Success 200 {object} models.Profile
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /qr/scan [post]
func (h *QRHandler) ScanQR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShareCode string `json:"shareCode" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	userID, err := h.service.ResolveShareCode(r.Context(), req.ShareCode)
	if err != nil {
		if errors.Is(err, services.ErrShareUnavailable) {
			services.SendErrorResponse(w, "Share codes temporarily unavailable", http.StatusServiceUnavailable, nil)
			return
		}
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	profile, err := h.profiles.FetchProfile(userID)
	if err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			services.SendErrorResponse(w, "Profile not found", http.StatusNotFound, nil)
			return
		}
		services.SendErrorResponse(w, "Failed to fetch profile", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"profile": profile,
	})
}
