package settlement

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/frahmantamala/wallet-settlement/internal/core/datamodel/settlement"
	"github.com/frahmantamala/wallet-settlement/internal/ledger"
	"github.com/frahmantamala/wallet-settlement/internal/payout"
)

// RepositoryAPI is the record-store boundary for settlement records. The
// conditional TransitionStatus is the at-most-once gate for the whole
// pipeline: exactly one reconciler wins the pending->processing transition.
type RepositoryAPI interface {
	InsertIfAbsent(rec *settlement.Record) (bool, error)
	GetByID(id string) (*settlement.Record, error)
	TransitionStatus(id, from, to string) (bool, error)
	MarkCompleted(id string, ledgerTxRef string, balanceBefore, balanceAfter *int64, attempts int, failureReason *string) error
	MarkFailed(id string, failureReason string, attempts int) error
}

// WalletRepositoryAPI maintains the display-only wallet mirror. Mirror
// updates are best effort; the ledger is the source of truth.
type WalletRepositoryAPI interface {
	GetByUserID(userID string) (*settlement.Wallet, error)
	Credit(userID string, amount int64) error
	Debit(userID string, amount int64) error
	Unlock(userID string, amount int64) error
	CreateTransaction(tx *settlement.WalletTransaction) error
}

type LedgerAPI interface {
	Invoke(ctx context.Context, contract, function string, args ...string) (ledger.Receipt, error)
}

type OracleAPI interface {
	BalanceOf(ctx context.Context, userID string) (int64, error)
}

type PayoutAPI interface {
	Transfer(ctx context.Context, req *payout.Request) (*payout.Result, error)
}

// ServiceAPI is what the HTTP handlers depend on.
type ServiceAPI interface {
	Settle(ctx context.Context, req *Request) (*Outcome, error)
	GetOutcome(requestID string) (*Outcome, error)
	BalanceOf(ctx context.Context, userID string) (int64, error)
}

// Config carries the reconciliation tunables. The delay and attempt counts
// bound every retry loop in the reconciler.
type Config struct {
	TokenContract  string
	SinkAccount    string
	SettleDelay    time.Duration
	VerifyAttempts int
	DeltaTolerance int64
	MaxConcurrent  int64
	SyncWait       time.Duration
}

var settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "settlements_total",
	Help: "Settlement records driven to a terminal state, by direction and status.",
}, []string{"direction", "status"})

var verificationAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "settlement_verification_attempts",
	Help:    "Balance-delta verification rounds needed per unconfirmed receipt.",
	Buckets: []float64{1, 2, 3},
})
