package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"event_type"`
	ReferenceID string    `json:"reference_id"`
	UserID      string    `json:"user_id"`
	Amount      int64     `json:"amount"`
	Status      string    `json:"status"`
	Details     any       `json:"details"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogTip(referenceID, videoID, creatorID, tipperID string, amount int64, status string) {
	event := Event{
		Timestamp:   time.Now(),
		EventType:   "TIP",
		ReferenceID: referenceID,
		UserID:      creatorID,
		Amount:      amount,
		Status:      status,
		Details: map[string]string{
			"video_id":  videoID,
			"tipper_id": tipperID,
		},
	}
	a.log(event)
}

func (a *Logger) LogTransfer(referenceID, fromUser, toUser string, amount int64, status string) {
	event := Event{
		Timestamp:   time.Now(),
		EventType:   "TRANSFER",
		ReferenceID: referenceID,
		Amount:      amount,
		Status:      status,
		Details: map[string]string{
			"from_user": fromUser,
			"to_user":   toUser,
		},
	}
	a.log(event)
}

func (a *Logger) LogError(referenceID, userID string, err error) {
	event := Event{
		Timestamp:   time.Now(),
		EventType:   "ERROR",
		ReferenceID: referenceID,
		UserID:      userID,
		Status:      "FAILED",
		Details:     map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *Logger) LogOperation(referenceID, userID, operation, details string) {
	event := Event{
		Timestamp:   time.Now(),
		EventType:   operation,
		ReferenceID: referenceID,
		UserID:      userID,
		Status:      "SUCCESS",
		Details:     map[string]string{"details": details},
	}
	a.log(event)
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
