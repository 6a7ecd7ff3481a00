package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// ErrShareUnavailable is returned when the share-code store is not
// reachable; handlers map it to 503 rather than panicking.
var ErrShareUnavailable = errors.New("share codes unavailable")

// QRService issues short-lived profile share codes. A code resolves to the
// profile exactly once; the redis entry is deleted on resolution.
type QRService struct {
	db      *sql.DB
	redis   *redis.Client
	timeout time.Duration
}

func NewQRService(db *sql.DB, redis *redis.Client, timeout time.Duration) *QRService {
	return &QRService{
		db:      db,
		redis:   redis,
		timeout: timeout,
	}
}

func (s *QRService) GenerateShareCode(ctx context.Context, userID string) (string, string, error) {
	if s.redis == nil {
		return "", "", ErrShareUnavailable
	}

	qrData := map[string]any{
		"userId":    userID,
		"timestamp": time.Now().Unix(),
		"nonce":     s.generateNonce(),
	}

	jsonData, err := json.Marshal(qrData)
	if err != nil {
		return "", "", err
	}

	shareCode := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("qr:%s", shareCode)
	if err := s.redis.Set(ctx, key, jsonData, s.timeout).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(shareCode, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	qrImage := base64.StdEncoding.EncodeToString(buf.Bytes())

	return shareCode, qrImage, nil
}

func (s *QRService) ResolveShareCode(ctx context.Context, shareCode string) (string, error) {
	if s.redis == nil {
		return "", ErrShareUnavailable
	}

	key := fmt.Sprintf("qr:%s", shareCode)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return "", fmt.Errorf("invalid or expired share code")
	}
	if err != nil {
		return "", err
	}

	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", err
	}

	s.redis.Del(ctx, key)

	return payload.UserID, nil
}

func (s *QRService) generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
