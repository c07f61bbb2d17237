package settlement

import (
	"encoding/json"
	"time"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const (
	DirectionDeposit    = "deposit"
	DirectionWithdrawal = "withdrawal"
)

// Record is the durable settlement record, keyed by the idempotency request
// id. Once status reaches completed or failed the row is immutable except for
// operator tooling.
type Record struct {
	ID               string          `gorm:"primaryKey"`
	Direction        string          `gorm:"column:direction;not null;index"`
	UserID           string          `gorm:"column:user_id;not null;index"`
	Amount           int64           `gorm:"column:amount;not null"`
	Status           string          `gorm:"column:status;default:pending;index"`
	LedgerTxRef      *string         `gorm:"column:ledger_tx_ref"`
	PaymentReference string          `gorm:"column:payment_reference"`
	BalanceBefore    *int64          `gorm:"column:balance_before"`
	BalanceAfter     *int64          `gorm:"column:balance_after"`
	Attempts         int             `gorm:"column:attempts;default:0"`
	FailureReason    *string         `gorm:"column:failure_reason"`
	BankDetails      json.RawMessage `gorm:"column:bank_details;type:jsonb"`
	CreatedAt        time.Time       `gorm:"column:created_at;default:now()"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;default:now()"`
	ProcessedAt      *time.Time      `gorm:"column:processed_at"`
}

func (Record) TableName() string {
	return "settlement_records"
}

func (r *Record) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Wallet mirrors the on-ledger balance for display. The ledger is the source
// of truth; settlement correctness never reads this table.
type Wallet struct {
	ID               int64     `gorm:"primaryKey"`
	UserID           string    `gorm:"column:user_id;not null;uniqueIndex"`
	TotalBalance     int64     `gorm:"column:total_balance;default:0"`
	AvailableBalance int64     `gorm:"column:available_balance;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt        time.Time `gorm:"column:updated_at;default:now()"`
}

func (Wallet) TableName() string {
	return "wallets"
}

// WalletTransaction is the display/audit row written after a settlement
// reaches a terminal completed state.
type WalletTransaction struct {
	ID              int64     `gorm:"primaryKey"`
	WalletID        int64     `gorm:"column:wallet_id;not null;index"`
	Type            string    `gorm:"column:type;not null"`
	Amount          int64     `gorm:"column:amount;not null"`
	Description     string    `gorm:"column:description"`
	Status          string    `gorm:"column:status;default:completed"`
	TransactionHash string    `gorm:"column:transaction_hash"`
	CreatedAt       time.Time `gorm:"column:created_at;default:now()"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
