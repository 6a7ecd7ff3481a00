package config

import (
	"os"
	"strconv"
	"time"
)

// AppConfig holds the platform constants that the mobile client used to read
// from ambient globals. Everything is explicit and loaded once at startup.
type AppConfig struct {
	TipCreditAmount  int64
	HireLeadCost     int64
	FeedDefaultLimit int
	FeedMaxLimit     int
	TipRetryAttempts int
	OTPLength        int
	OTPTimeout       time.Duration
	QRShareTimeout   time.Duration
}

func LoadAppConfig() *AppConfig {
	return &AppConfig{
		TipCreditAmount:  getEnvAsInt64("TIP_CREDIT_AMOUNT", 10),
		HireLeadCost:     getEnvAsInt64("HIRE_LEAD_COST", 50),
		FeedDefaultLimit: getEnvAsInt("FEED_DEFAULT_LIMIT", 50),
		FeedMaxLimit:     getEnvAsInt("FEED_MAX_LIMIT", 100),
		TipRetryAttempts: getEnvAsInt("TIP_RETRY_ATTEMPTS", 3),
		OTPLength:        getEnvAsInt("OTP_LENGTH", 6),
		OTPTimeout:       getEnvAsDuration("OTP_TIMEOUT", 10*time.Minute),
		QRShareTimeout:   getEnvAsDuration("QR_SHARE_TIMEOUT", 5*time.Minute),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
