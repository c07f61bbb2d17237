package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeSettlementCompleted = "settlement.completed"
	EventTypeSettlementFailed    = "settlement.failed"
)

type SettlementCompletedEvent struct {
	BaseEvent
	RequestID     string `json:"request_id"`
	UserID        string `json:"user_id"`
	Direction     string `json:"direction"`
	Amount        int64  `json:"amount"`
	LedgerTxRef   string `json:"ledger_tx_ref"`
	FailureReason string `json:"failure_reason,omitempty"`
}

func NewSettlementCompletedEvent(requestID, userID, direction string, amount int64, ledgerTxRef, failureReason string) *SettlementCompletedEvent {
	return &SettlementCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeSettlementCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"request_id":     requestID,
				"user_id":        userID,
				"direction":      direction,
				"amount":         amount,
				"ledger_tx_ref":  ledgerTxRef,
				"failure_reason": failureReason,
			},
		},
		RequestID:     requestID,
		UserID:        userID,
		Direction:     direction,
		Amount:        amount,
		LedgerTxRef:   ledgerTxRef,
		FailureReason: failureReason,
	}
}

type SettlementFailedEvent struct {
	BaseEvent
	RequestID     string `json:"request_id"`
	UserID        string `json:"user_id"`
	Direction     string `json:"direction"`
	Amount        int64  `json:"amount"`
	FailureReason string `json:"failure_reason"`
	Attempts      int    `json:"attempts"`
}

func NewSettlementFailedEvent(requestID, userID, direction string, amount int64, failureReason string, attempts int) *SettlementFailedEvent {
	return &SettlementFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeSettlementFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"request_id":     requestID,
				"user_id":        userID,
				"direction":      direction,
				"amount":         amount,
				"failure_reason": failureReason,
				"attempts":       attempts,
			},
		},
		RequestID:     requestID,
		UserID:        userID,
		Direction:     direction,
		Amount:        amount,
		FailureReason: failureReason,
		Attempts:      attempts,
	}
}
