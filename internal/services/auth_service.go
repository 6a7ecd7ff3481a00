package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/skilsnap/backend/internal/config"
	"github.com/skilsnap/backend/internal/models"
)

const (
	maxFailedLogins = 5
	lockoutDuration = 15 * time.Minute
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *validator.Validate
	cfg       *config.AppConfig
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required" example:"+919812345678"` // User phone number
	Password    string `json:"password" validate:"required,min=6" example:"password123"` // User password
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email" example:"user@example.com"` // User email address
	Password    string `json:"password" validate:"required,min=6" example:"password123"`   // User password
	DisplayName string `json:"displayName" validate:"required,min=2" example:"Asha Kumar"` // Display name
	PhoneNumber string `json:"phoneNumber" validate:"required" example:"+919812345678"`    // Phone number
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token string      `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	User  models.User `json:"user"`                                                    // User information
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, cfg *config.AppConfig) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: validator.New(),
		cfg:       cfg,
	}
}

func (s *AuthService) sendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	SendErrorResponse(w, message, statusCode, validationErr)
}

// Register handles user registration
// @Summary Register a new user
// @Description Register a new user with email, password, display name and phone number
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse "Registration successful"
// @Failure 400 {string} string "Invalid request"
// @Failure 409 {string} string "Email already exists"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Registration failed - invalid request: %v", err)
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		s.sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	log.Printf("[AUTH] Registration request for email: %s", req.Email)

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	var userID int
	err = s.db.QueryRow("INSERT INTO users (email, password, display_name, phone_number) VALUES ($1, $2, $3, $4) RETURNING id",
		strings.ToLower(req.Email), hashedPassword, req.DisplayName, req.PhoneNumber).Scan(&userID)
	if err != nil {
		log.Printf("[AUTH] User creation failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Email Already Exists", http.StatusConflict, nil)
		return
	}

	log.Printf("[AUTH] User created successfully - ID: %d, Email: %s", userID, req.Email)

	token, err := generateJWT(userID)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %d: %v", userID, err)
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	response := AuthResponse{
		Token: token,
		User:  models.User{ID: userID, Email: strings.ToLower(req.Email), DisplayName: req.DisplayName, PhoneNumber: req.PhoneNumber},
	}

	log.Printf("[AUTH] Registration successful for user %d", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate user with phone number and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {string} string "Invalid request"
// @Failure 401 {string} string "Invalid credentials"
// @Failure 423 {string} string "Account locked"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		s.sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	log.Printf("[AUTH] Login request for phone number: %s", req.PhoneNumber)

	var user models.User
	var hashedPassword string
	err := s.db.QueryRow("SELECT id, email, display_name, phone_number, phone_verified, password, failed_login_attempts, locked_until FROM users WHERE phone_number = $1",
		req.PhoneNumber).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PhoneNumber, &user.PhoneVerified, &hashedPassword, &user.FailedLoginAttempts, &user.LockedUntil)
	if err != nil {
		log.Printf("[AUTH] User not found for phone number: %s", req.PhoneNumber)
		s.sendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if user.LockedUntil != nil && user.LockedUntil.After(time.Now()) {
		log.Printf("[AUTH] Login rejected for locked user %d", user.ID)
		s.sendErrorResponse(w, "Account temporarily locked", http.StatusLocked, nil)
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for user: %s", req.PhoneNumber)
		s.recordFailedLogin(user.ID, user.FailedLoginAttempts)
		s.sendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	log.Printf("[AUTH] Password verified for user ID: %d", user.ID)

	if _, err := s.db.Exec("UPDATE users SET failed_login_attempts = 0, locked_until = NULL, last_login = NOW() WHERE id = $1", user.ID); err != nil {
		log.Printf("[AUTH] Failed to reset login counters for user %d: %v", user.ID, err)
	}

	token, err := generateJWT(user.ID)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %d: %v", user.ID, err)
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	response := AuthResponse{
		Token: token,
		User:  user,
	}

	log.Printf("[AUTH] Login successful for user %d", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *AuthService) recordFailedLogin(userID, previousAttempts int) {
	attempts := previousAttempts + 1
	if attempts >= maxFailedLogins {
		lockedUntil := time.Now().Add(lockoutDuration)
		if _, err := s.db.Exec("UPDATE users SET failed_login_attempts = $1, locked_until = $2 WHERE id = $3", attempts, lockedUntil, userID); err != nil {
			log.Printf("[AUTH] Failed to lock user %d: %v", userID, err)
		}
		log.Printf("[AUTH] User %d locked after %d failed attempts", userID, attempts)
		return
	}
	if _, err := s.db.Exec("UPDATE users SET failed_login_attempts = $1 WHERE id = $2", attempts, userID); err != nil {
		log.Printf("[AUTH] Failed to record failed login for user %d: %v", userID, err)
	}
}

// Logout handles user logout
// @Summary Logout user
// @Description Logout user and blacklist token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			// Blacklist token until its expiration
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// RequestOTP sends a verification code to a phone number
// @Summary Request phone OTP
// @Description Generate a one-time code for phone number verification
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{phoneNumber=string} true "OTP request"
// @Success 200 {object} map[string]interface{} "OTP sent successfully"
// @Failure 400 {string} string "Invalid request"
// @Router /auth/request-otp [post]
func (s *AuthService) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phoneNumber" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	otp := generateOTP(s.cfg.OTPLength)
	key := fmt.Sprintf("phone_otp:%s", req.PhoneNumber)

	if s.redis != nil {
		ctx := context.Background()
		if err := s.redis.Set(ctx, key, otp, s.cfg.OTPTimeout).Err(); err != nil {
			log.Printf("[AUTH] Failed to store OTP in Redis: %v", err)
			s.sendErrorResponse(w, "Failed to generate OTP", http.StatusInternalServerError, nil)
			return
		}
	}

	// SMS delivery is stubbed; the code is surfaced in the server log.
	log.Printf("[AUTH] OTP generated for phone %s: %s", req.PhoneNumber, otp)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message": "OTP Sent Successfully",
		"valid":   true,
	})
}

// VerifyOTP verifies a phone verification code
// @Summary Verify phone OTP
// @Description Verify the one-time code sent for phone number verification
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{phoneNumber=string,otp=string} true "OTP verification request"
// @Success 200 {object} map[string]interface{} "OTP verified successfully"
// @Failure 400 {string} string "Invalid request"
// @Failure 401 {string} string "Invalid or expired OTP"
// @Router /auth/verify-otp [post]
func (s *AuthService) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phoneNumber" validate:"required"`
		OTP         string `json:"otp" validate:"required,len=6"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	key := fmt.Sprintf("phone_otp:%s", req.PhoneNumber)

	if s.redis != nil {
		ctx := context.Background()
		storedOTP, err := s.redis.Get(ctx, key).Result()
		if err != nil {
			log.Printf("[AUTH] OTP not found or expired for phone %s", req.PhoneNumber)
			s.sendErrorResponse(w, "Invalid or expired OTP", http.StatusUnauthorized, nil)
			return
		}

		if storedOTP != req.OTP {
			log.Printf("[AUTH] Invalid OTP for phone %s", req.PhoneNumber)
			s.sendErrorResponse(w, "Invalid or expired OTP", http.StatusUnauthorized, nil)
			return
		}

		s.redis.Del(ctx, key)
	}

	if _, err := s.db.Exec("UPDATE users SET phone_verified = TRUE WHERE phone_number = $1", req.PhoneNumber); err != nil {
		log.Printf("[AUTH] Failed to mark phone %s verified: %v", req.PhoneNumber, err)
	}

	log.Printf("[AUTH] OTP verified successfully for phone %s", req.PhoneNumber)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message": "OTP Verified Successfully",
		"valid":   true,
	})
}

// GetUserAccount retrieves user account details from auth token
// @Summary Get user account details
// @Description Get authenticated user's account information
// @Tags auth
// @Produce json
// @Success 200 {object} models.User "User account details"
// @Failure 401 {string} string "Unauthorized"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/account [get]
func (s *AuthService) GetUserAccount(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] User account request from IP: %s", r.RemoteAddr)

	userID := r.Context().Value("userID")
	if userID == nil {
		log.Printf("[AUTH] Unauthorized account request - no user ID in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	log.Printf("[AUTH] Fetching account details for user ID: %v", userID)
	var user models.User
	err := s.db.QueryRow("SELECT id, email, display_name, phone_number, phone_verified, last_login, created_at, updated_at FROM users WHERE id = $1",
		userID).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PhoneNumber, &user.PhoneVerified, &user.LastLogin, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Printf("[AUTH] User not found for ID: %v", userID)
			http.Error(w, "User not found", http.StatusNotFound)
		} else {
			log.Printf("[AUTH] Failed to fetch user details for ID %v: %v", userID, err)
			http.Error(w, "Failed to fetch user details", http.StatusInternalServerError)
		}
		return
	}

	log.Printf("[AUTH] Successfully fetched account details for user: %s (ID: %d)", user.Email, user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func generateJWT(userID int) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"nameid":  userID,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}

func generateOTP(length int) string {
	if length <= 0 {
		length = 6
	}
	const digits = "0123456789"
	b := make([]byte, length)
	cryptorand.Read(b)
	for i := range b {
		b[i] = digits[int(b[i])%len(digits)]
	}
	return string(b)
}
