package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
)

// LedgerAPI is the read path the oracle needs from the ledger client.
type LedgerAPI interface {
	Query(ctx context.Context, contract, function string, args ...string) (string, error)
}

// BalanceOracle reads the token contract's balance for an account. It is the
// verification signal for settlement: a query failure is surfaced to the
// caller, never silently defaulted to zero, because a bogus zero would
// corrupt delta verification.
type BalanceOracle struct {
	ledger   LedgerAPI
	contract string
	logger   *slog.Logger
}

func NewBalanceOracle(ledger LedgerAPI, contract string, logger *slog.Logger) *BalanceOracle {
	return &BalanceOracle{
		ledger:   ledger,
		contract: contract,
		logger:   logger,
	}
}

// BalanceOf returns the whole-unit token balance of userID. An account that
// has never transacted reads as zero (absent-key semantics on the contract).
func (o *BalanceOracle) BalanceOf(ctx context.Context, userID string) (int64, error) {
	raw, err := o.ledger.Query(ctx, o.contract, "balanceOf", userID)
	if err != nil {
		return 0, fmt.Errorf("balance query for %s: %w", userID, err)
	}

	if raw == "" {
		return 0, nil
	}

	balance, err := strconv.ParseInt(raw, 10, 64)
	if err == nil {
		if balance < 0 {
			// Only possible with corrupted pre-big.Int chaincode state.
			o.logger.Warn("ledger returned negative balance",
				"user_id", userID,
				"balance", balance)
		}
		return balance, nil
	}

	// The contract is specified to return whole-unit integers. A fractional
	// value is a protocol violation; log it loudly and round rather than
	// failing an otherwise observable balance read.
	f, ferr := strconv.ParseFloat(raw, 64)
	if ferr != nil {
		return 0, fmt.Errorf("unparseable balance %q for %s: %w", raw, userID, err)
	}

	rounded := int64(math.Round(f))
	o.logger.Error("protocol violation: token contract returned fractional balance",
		"user_id", userID,
		"raw_balance", raw,
		"rounded", rounded)
	return rounded, nil
}
